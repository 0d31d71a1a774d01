package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/typhoonlens/internal/analyzer"
	"github.com/osvaldoandrade/typhoonlens/internal/backoff"
	"github.com/osvaldoandrade/typhoonlens/internal/metrics"
	"github.com/osvaldoandrade/typhoonlens/internal/providers"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	"github.com/osvaldoandrade/typhoonlens/pkg/encoder"
	"github.com/osvaldoandrade/typhoonlens/pkg/persistence"
)

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrAnalyzerFailed = errors.New("analysis failed")
)

type AnalysisResult struct {
	Report *domain.Report
	Cached bool
}

type AnalysisService interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*AnalysisResult, error)
}

type RetryPolicy struct {
	MaxAttempts    int
	Policy         string
	Base           time.Duration
	Max            time.Duration
	AttemptTimeout time.Duration
}

type analysisService struct {
	analyzer analyzer.Analyzer
	store    persistence.ReportStorage
	archive  providers.Archive
	retry    RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

func NewAnalysisService(an analyzer.Analyzer, store persistence.ReportStorage, archive providers.Archive, retry RetryPolicy, logger *slog.Logger, now func() time.Time) AnalysisService {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &analysisService{analyzer: an, store: store, archive: archive, retry: retry, logger: logger, now: now}
}

func (s *analysisService) Analyze(ctx context.Context, req domain.AnalysisRequest) (res *AnalysisResult, err error) {
	start := s.now()
	ctx, span := otel.Tracer("typhoonlens/analysis").Start(ctx, "typhoonlens.analysis",
		trace.WithAttributes(attribute.String("typhoonlens.analyzer", s.analyzer.Name())),
	)
	defer span.End()
	defer func() {
		outcome := "success"
		switch {
		case errors.Is(err, ErrInvalidPayload):
			outcome = "invalid"
		case err != nil:
			outcome = "failed"
		case res.Cached:
			outcome = "cached"
		}
		metrics.AnalysisRequestsTotal.WithLabelValues(outcome).Inc()
		metrics.AnalysisLatencySeconds.WithLabelValues(outcome).Observe(s.now().Sub(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	img, err := decodeAttachment("img", req.Image)
	if err != nil {
		return nil, err
	}
	doc, err := decodeAttachment("pdf", req.Document)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(img.MediaType, "image/") {
		s.logger.Warn("scene payload is not an image", "mediaType", img.MediaType)
	}
	if doc.MediaType != "application/pdf" {
		s.logger.Warn("report payload is not a pdf", "mediaType", doc.MediaType)
	}
	span.SetAttributes(
		attribute.String("typhoonlens.image.media_type", img.MediaType),
		attribute.Int("typhoonlens.image.bytes", len(img.Data)),
		attribute.String("typhoonlens.document.media_type", doc.MediaType),
		attribute.Int("typhoonlens.document.bytes", len(doc.Data)),
	)

	key := CacheKey(img.Data, doc.Data)
	if rep := s.lookup(ctx, key); rep != nil {
		s.logger.Info("analysis served from cache", "reportId", rep.ID, "key", key[:12])
		return &AnalysisResult{Report: rep, Cached: true}, nil
	}

	text, err := s.runAnalyzer(ctx, analyzer.Input{Image: img, Document: doc})
	if err != nil {
		return nil, err
	}

	rep := &domain.Report{
		ID:        uuid.NewString(),
		Key:       key,
		Text:      text,
		Provider:  s.analyzer.Name(),
		Model:     s.analyzer.Model(),
		CreatedAt: s.now().UTC(),
	}
	if s.store != nil {
		if err := s.store.Save(ctx, rep); err != nil {
			s.logger.Warn("report cache save failed", "reportId", rep.ID, "err", err)
		}
	}
	s.archiveReport(ctx, rep)

	s.logger.Info("analysis completed", "reportId", rep.ID, "provider", rep.Provider, "chars", len(text))
	return &AnalysisResult{Report: rep}, nil
}

func (s *analysisService) lookup(ctx context.Context, key string) *domain.Report {
	if s.store == nil {
		return nil
	}
	rep, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		metrics.ReportCacheTotal.WithLabelValues("hit").Inc()
		return rep
	case errors.Is(err, persistence.ErrNotFound):
		metrics.ReportCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.ReportCacheTotal.WithLabelValues("error").Inc()
		s.logger.Warn("report cache lookup failed", "err", err)
	}
	return nil
}

func (s *analysisService) runAnalyzer(ctx context.Context, in analyzer.Input) (string, error) {
	rng := rand.New(rand.NewSource(s.now().UnixNano()))
	provider := s.analyzer.Name()

	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		actx, cancel := ctx, context.CancelFunc(func() {})
		if s.retry.AttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, s.retry.AttemptTimeout)
		}
		text, err := s.analyzer.Analyze(actx, in)
		cancel()
		if err == nil {
			metrics.AnalyzerAttemptsTotal.WithLabelValues(provider, "success").Inc()
			return text, nil
		}
		metrics.AnalyzerAttemptsTotal.WithLabelValues(provider, "error").Inc()
		lastErr = err

		if !analyzer.Retryable(err) || attempt == s.retry.MaxAttempts-1 {
			break
		}
		delay := backoff.Compute(s.retry.Policy, s.retry.Base, s.retry.Max, attempt, rng)
		s.logger.Warn("analyzer attempt failed, retrying", "provider", provider, "attempt", attempt+1, "delay", delay.String(), "err", err)
		if !backoff.Sleep(ctx.Done(), delay) {
			lastErr = ctx.Err()
			break
		}
	}
	s.logger.Error("analyzer failed", "provider", provider, "err", lastErr)
	return "", fmt.Errorf("%w: %v", ErrAnalyzerFailed, lastErr)
}

func (s *analysisService) archiveReport(ctx context.Context, rep *domain.Report) {
	if s.archive == nil {
		return
	}
	objectPath := path.Join("reports", rep.CreatedAt.Format("2006/01/02"), rep.ID+".md")
	url, err := s.archive.Put(ctx, objectPath, "text/markdown", []byte(rep.Text))
	if err != nil {
		s.logger.Warn("report archive failed", "reportId", rep.ID, "err", err)
		return
	}
	s.logger.Debug("report archived", "reportId", rep.ID, "url", url)
}

func decodeAttachment(field, payload string) (analyzer.Attachment, error) {
	data, hint, err := encoder.Decode(payload)
	if err != nil {
		return analyzer.Attachment{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, field, err)
	}
	mediaType := strings.TrimSpace(hint)
	if mediaType == "" {
		mediaType = mimetype.Detect(data).String()
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return analyzer.Attachment{MediaType: mediaType, Data: data}, nil
}

// CacheKey identifies a pair of files. Each part is tagged with its role and
// length so swapping or re-splitting the bytes changes the key.
func CacheKey(image, document []byte) string {
	h := sha256.New()
	var n [8]byte
	for _, part := range []struct {
		role domain.Role
		data []byte
	}{{domain.RoleImage, image}, {domain.RoleDocument, document}} {
		h.Write([]byte(part.role))
		binary.BigEndian.PutUint64(n[:], uint64(len(part.data)))
		h.Write(n[:])
		h.Write(part.data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
