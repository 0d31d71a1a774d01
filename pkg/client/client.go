// Package client is the HTTP transport for the analysis service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/osvaldoandrade/typhoonlens/internal/tracing"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

const AnalyzePath = "/api/ai"

// maxErrorBody bounds how much of a failed response is kept for logs.
const maxErrorBody = 2048

// maxResponseBody caps how much of a response is read. Reports are text and
// sit far below it.
const maxResponseBody = 16 << 20

type Client struct {
	baseURL    string
	httpClient *http.Client
	maxBody    int64
}

type Option func(*Client)

// WithHTTPClient sets the transport. Its Timeout is the only deadline a
// submission is subject to.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		maxBody:    maxResponseBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Analyze posts both payloads and returns the report. Network failures and
// non-2xx statuses are domain.KindTransport; a body without a text field is
// domain.KindProtocol.
func (c *Client) Analyze(ctx context.Context, in domain.AnalysisRequest) (domain.AnalysisResponse, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindUnexpected, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AnalyzePath, bytes.NewReader(b))
	if err != nil {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindTransport, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindTransport, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       errorDetail(body),
		})
	}
	if int64(len(body)) > c.maxBody {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindProtocol, fmt.Errorf("response exceeds %d bytes", c.maxBody))
	}

	var out struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindProtocol, fmt.Errorf("decode response: %w", err))
	}
	if out.Text == nil {
		return domain.AnalysisResponse{}, domain.NewError(domain.KindProtocol, errors.New("response has no text field"))
	}
	return domain.AnalysisResponse{Text: *out.Text}, nil
}

func errorDetail(body []byte) string {
	var e domain.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
