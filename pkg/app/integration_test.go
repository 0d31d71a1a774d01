package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/osvaldoandrade/typhoonlens/pkg/client"
	"github.com/osvaldoandrade/typhoonlens/pkg/config"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	_ "github.com/osvaldoandrade/typhoonlens/pkg/persistence/memory"
	_ "github.com/osvaldoandrade/typhoonlens/pkg/persistence/none"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
)

func testConfig(redisAddr, archiveDir string) *config.Config {
	return &config.Config{
		Port:         8080,
		RedisAddr:    redisAddr,
		LogLevel:     "debug",
		LogFormat:    "text",
		Env:          "dev",
		MaxBodyBytes: 1 << 20,
		ArchiveDir:   archiveDir,
		Analyzer: config.AnalyzerConfig{
			Provider:          "dummy",
			MaxAttempts:       1,
			BackoffPolicy:     "fixed",
			BackoffBaseMillis: 1,
			BackoffMaxMillis:  1,
			TimeoutSeconds:    5,
		},
		Cache:     config.CacheConfig{Provider: "redis", TTLSeconds: 3600, MaxEntries: 16},
		RateLimit: config.RateLimitConfig{Analyze: config.RateLimitBucketConfig{RequestsPerMinute: 1, BurstSize: 3}},
		Tracing:   config.TracingConfig{ServiceName: "typhoonlens-test"},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	application, err := NewApplication(cfg, WithLogger(logger))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	t.Cleanup(func() { _ = application.Close() })
	SetupMappings(application)
	return application
}

func postAnalyze(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/ai", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPIntegrationFlow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	archiveDir := t.TempDir()
	application := newTestApp(t, testConfig(mr.Addr(), archiveDir))
	h := application.Engine

	payload := domain.AnalysisRequest{
		Image:    base64.StdEncoding.EncodeToString(pngBytes),
		Document: base64.StdEncoding.EncodeToString(pdfBytes),
	}

	rec := postAnalyze(t, h, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("first analyze: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp domain.AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Text, "No significant impact detected.") {
		t.Fatalf("unexpected report: %q", resp.Text)
	}
	if rec.Header().Get("X-Report-Cache") != "miss" {
		t.Fatalf("expected cache miss, got %q", rec.Header().Get("X-Report-Cache"))
	}
	reportID := rec.Header().Get("X-Report-Id")
	if reportID == "" {
		t.Fatal("missing X-Report-Id")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id")
	}

	rec = postAnalyze(t, h, payload)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Report-Cache") != "hit" {
		t.Fatalf("second analyze: status %d cache %q", rec.Code, rec.Header().Get("X-Report-Cache"))
	}
	if rec.Header().Get("X-Report-Id") != reportID {
		t.Fatal("cached response should carry the stored report id")
	}

	rec = postAnalyze(t, h, map[string]string{"img": payload.Image})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing pdf: status %d", rec.Code)
	}

	rec = postAnalyze(t, h, payload)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}

	var archived []string
	_ = filepath.WalkDir(archiveDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			archived = append(archived, path)
		}
		return nil
	})
	if len(archived) != 1 || !strings.HasSuffix(archived[0], reportID+".md") {
		t.Fatalf("archived = %v", archived)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, want := range []string{"typhoonlens_analysis_requests_total", "typhoonlens_rate_limit_hits_total"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}

	mr.Close()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz with redis down: %d", rec.Code)
	}
}

func TestClientAgainstServer(t *testing.T) {
	cfg := testConfig("127.0.0.1:0", "")
	cfg.Cache.Provider = "memory"
	cfg.RateLimit = config.RateLimitConfig{}
	application := newTestApp(t, cfg)

	srv := httptest.NewServer(application.Engine)
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	out, err := c.Analyze(context.Background(), domain.AnalysisRequest{
		Image:    base64.StdEncoding.EncodeToString(pngBytes),
		Document: base64.StdEncoding.EncodeToString(pdfBytes),
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out.Text, "Scene Assessment") {
		t.Fatalf("unexpected report: %q", out.Text)
	}

	_, err = c.Analyze(context.Background(), domain.AnalysisRequest{Image: "!!", Document: "??"})
	var se *client.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
}

func TestNewApplicationRejectsUnknownCache(t *testing.T) {
	cfg := testConfig("127.0.0.1:0", "")
	cfg.Cache.Provider = "sqlite"
	if _, err := NewApplication(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))); err == nil {
		t.Fatal("expected error for unknown cache provider")
	}
}
