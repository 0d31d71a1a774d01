package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/typhoonlens/internal/services"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"

	"github.com/gin-gonic/gin"
)

type analyzeController struct {
	svc          services.AnalysisService
	maxBodyBytes int64
}

func NewAnalyzeController(svc services.AnalysisService, maxBodyBytes int64) *analyzeController {
	return &analyzeController{svc: svc, maxBodyBytes: maxBodyBytes}
}

func (h *analyzeController) Handle(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	var req domain.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: img and pdf are required"})
		return
	}

	res, err := h.svc.Analyze(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "analysis failed"})
		return
	}

	cache := "miss"
	if res.Cached {
		cache = "hit"
	}
	c.Header("X-Report-Id", res.Report.ID)
	c.Header("X-Report-Cache", cache)
	c.JSON(http.StatusOK, domain.AnalysisResponse{Text: res.Report.Text})
}
