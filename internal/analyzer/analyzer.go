// Package analyzer turns a scene image and a report document into a
// markdown impact report.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/osvaldoandrade/typhoonlens/pkg/config"
)

const DefaultSystemPrompt = `You are a disaster response analyst. You receive a CCTV frame of a location and a typhoon
bulletin in PDF form. Compare what the image shows (flooding, debris, damaged structures, blocked roads,
people at risk) with the storm track, wind speeds and rainfall described in the bulletin.

Answer in markdown with these sections:
## Scene Assessment
## Typhoon Exposure
## Expected Impact
## Recommended Actions

Be specific about what is visible. If the image shows no relevant hazard, say so plainly.`

var ErrEmptyReport = errors.New("analyzer returned an empty report")

type Attachment struct {
	MediaType string
	Data      []byte
}

type Input struct {
	Image    Attachment
	Document Attachment
}

type Analyzer interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, in Input) (string, error)
	Close() error
}

// New builds the analyzer named by cfg.Provider.
func New(ctx context.Context, cfg config.AnalyzerConfig) (Analyzer, error) {
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, prompt)
	case "dummy", "":
		return NewDummy(), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q", cfg.Provider)
	}
}

// Retryable reports whether a failed Analyze call may succeed if repeated.
// Client-side API errors other than throttling are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyReport) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
	}
	return true
}
