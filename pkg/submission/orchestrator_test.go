package submission

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osvaldoandrade/typhoonlens/pkg/acquisition"
	"github.com/osvaldoandrade/typhoonlens/pkg/client"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

type fakeTransport struct {
	calls   atomic.Int32
	resp    domain.AnalysisResponse
	err     error
	block   chan struct{}
	entered chan struct{}
	onCall  func(req domain.AnalysisRequest)
}

func (f *fakeTransport) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResponse, error) {
	f.calls.Add(1)
	if f.onCall != nil {
		f.onCall(req)
	}
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.resp, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func filledSurface() *acquisition.Surface {
	s := acquisition.NewSurface(quietLogger())
	s.Image.Drop([]domain.SelectedFile{{Name: "cctv.jpg", MediaType: "image/jpeg", Content: domain.BytesContent("jpeg-bytes")}})
	s.Document.Drop([]domain.SelectedFile{{Name: "report.pdf", MediaType: "application/pdf", Content: domain.BytesContent("%PDF-1.7")}})
	return s
}

func newOrchestrator(s *acquisition.Surface, tr Transport, opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(s.Image, s.Document, tr, opts...)
}

func TestSubmitSuccess(t *testing.T) {
	s := filledSurface()
	tr := &fakeTransport{resp: domain.AnalysisResponse{Text: "No significant impact detected."}}
	var sentDuring domain.SubmissionState
	o := newOrchestrator(s, tr)
	tr.onCall = func(req domain.AnalysisRequest) {
		sentDuring = o.State()
		if req.Image != base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")) {
			t.Errorf("img payload = %q", req.Image)
		}
		if req.Document != base64.StdEncoding.EncodeToString([]byte("%PDF-1.7")) {
			t.Errorf("pdf payload = %q", req.Document)
		}
	}

	if o.State() != domain.StateIdle {
		t.Fatal("expected Idle before submit")
	}
	out, err := o.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Failed() || out.Text != "No significant impact detected." {
		t.Fatalf("Outcome = %+v", out)
	}
	if text, ok := o.Result(); !ok || text != "No significant impact detected." {
		t.Fatalf("Result() = %q %v", text, ok)
	}
	if sentDuring != domain.StateSubmitting {
		t.Fatalf("state during request = %v, want submitting", sentDuring)
	}
	if o.State() != domain.StateIdle {
		t.Fatal("expected Idle after submit")
	}
	if tr.calls.Load() != 1 {
		t.Fatalf("calls = %d", tr.calls.Load())
	}
}

func TestSubmitMissingSlot(t *testing.T) {
	s := acquisition.NewSurface(quietLogger())
	s.Image.Drop([]domain.SelectedFile{{Name: "cctv.jpg", MediaType: "image/jpeg", Content: domain.BytesContent("x")}})

	encoded := atomic.Int32{}
	tr := &fakeTransport{}
	o := newOrchestrator(s, tr, WithEncoder(func(ctx context.Context, f domain.SelectedFile) (string, error) {
		encoded.Add(1)
		return "", nil
	}))

	notified := 0
	o.Subscribe(func() { notified++ })

	_, err := o.Submit(context.Background())
	if !errors.Is(err, domain.ErrMissingFiles) {
		t.Fatalf("err = %v, want ErrMissingFiles", err)
	}
	if domain.KindOf(err) != domain.KindUser {
		t.Fatalf("kind = %v", domain.KindOf(err))
	}
	if err.Error() != domain.MissingFilesMessage {
		t.Fatalf("message = %q", err.Error())
	}
	if tr.calls.Load() != 0 || encoded.Load() != 0 {
		t.Fatalf("no work expected: calls=%d encodes=%d", tr.calls.Load(), encoded.Load())
	}
	if notified != 0 || o.State() != domain.StateIdle {
		t.Fatal("state must not change on a user error")
	}
	if _, ok := o.Result(); ok {
		t.Fatal("no result expected")
	}
}

func TestSubmitFailuresShowPlaceholder(t *testing.T) {
	tests := []struct {
		name     string
		encode   EncodeFunc
		tr       *fakeTransport
		wantKind domain.ErrorKind
	}{
		{
			name: "io error",
			encode: func(ctx context.Context, f domain.SelectedFile) (string, error) {
				if f.Name == "report.pdf" {
					return "", errors.New("permission denied: /secret/report.pdf")
				}
				return "x", nil
			},
			tr:       &fakeTransport{},
			wantKind: domain.KindIO,
		},
		{
			name:     "transport error",
			tr:       &fakeTransport{err: domain.NewError(domain.KindTransport, errors.New("dial tcp 10.0.0.1:443: connection refused"))},
			wantKind: domain.KindTransport,
		},
		{
			name:     "unclassified transport error",
			tr:       &fakeTransport{err: errors.New("socket hang up")},
			wantKind: domain.KindTransport,
		},
		{
			name:     "protocol error",
			tr:       &fakeTransport{err: domain.NewError(domain.KindProtocol, errors.New("response has no text field"))},
			wantKind: domain.KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(filledSurface(), tt.tr, WithEncoder(tt.encode))
			out, err := o.Submit(context.Background())
			if err != nil {
				t.Fatalf("Submit returned %v; failures must be folded into the outcome", err)
			}
			if !out.Failed() || out.Kind != tt.wantKind {
				t.Fatalf("Outcome = %+v, want failure of kind %v", out, tt.wantKind)
			}
			text, _ := o.Result()
			if text != domain.FailurePlaceholder {
				t.Fatalf("Result() = %q, want placeholder", text)
			}
			if o.State() != domain.StateIdle {
				t.Fatal("state stuck in Submitting")
			}
		})
	}
}

func TestEncodeFailureSkipsRequest(t *testing.T) {
	tr := &fakeTransport{}
	o := newOrchestrator(filledSurface(), tr, WithEncoder(func(ctx context.Context, f domain.SelectedFile) (string, error) {
		return "", domain.NewError(domain.KindIO, os.ErrNotExist)
	}))
	out, _ := o.Submit(context.Background())
	if !out.Failed() || tr.calls.Load() != 0 {
		t.Fatalf("Outcome = %+v calls = %d", out, tr.calls.Load())
	}
}

func TestSubmitRecoversPanics(t *testing.T) {
	o := newOrchestrator(filledSurface(), &fakeTransport{}, WithEncoder(func(ctx context.Context, f domain.SelectedFile) (string, error) {
		panic("decoder exploded")
	}))
	out, err := o.Submit(context.Background())
	if err != nil || !out.Failed() || out.Kind != domain.KindUnexpected {
		t.Fatalf("Outcome = %+v err = %v", out, err)
	}
	if o.State() != domain.StateIdle {
		t.Fatal("state stuck after panic")
	}

	panicky := &panicTransport{}
	o = newOrchestrator(filledSurface(), panicky)
	out, _ = o.Submit(context.Background())
	if !out.Failed() || out.Text != domain.FailurePlaceholder || o.State() != domain.StateIdle {
		t.Fatalf("Outcome = %+v state = %v", out, o.State())
	}
}

func TestPanickingListenerDoesNotWedgeState(t *testing.T) {
	tr := &fakeTransport{resp: domain.AnalysisResponse{Text: "ok"}}
	o := newOrchestrator(filledSurface(), tr)

	var calls, seen atomic.Int32
	o.Subscribe(func() {
		if calls.Add(1) == 1 {
			panic("listener exploded")
		}
	})
	o.Subscribe(func() { seen.Add(1) })

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Submit panicked: %v", r)
			}
		}()
		if _, err := o.Submit(context.Background()); err != nil {
			t.Errorf("first Submit: %v", err)
		}
	}()
	if o.State() != domain.StateIdle {
		t.Fatalf("state = %v after a listener panic", o.State())
	}
	if seen.Load() != 3 {
		t.Fatalf("second listener saw %d notifications, want 3", seen.Load())
	}

	out, err := o.Submit(context.Background())
	if err != nil || out.Failed() {
		t.Fatalf("follow-up Submit: out=%+v err=%v", out, err)
	}
	if tr.calls.Load() != 2 {
		t.Fatalf("transport calls = %d, want 2", tr.calls.Load())
	}
}

func TestReleaseRunsWhenListenerPanicsEveryTime(t *testing.T) {
	tr := &fakeTransport{resp: domain.AnalysisResponse{Text: "ok"}}
	o := newOrchestrator(filledSurface(), tr)
	o.Subscribe(func() { panic("always") })

	for i := 0; i < 2; i++ {
		if _, err := o.Submit(context.Background()); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if o.State() != domain.StateIdle {
			t.Fatalf("Submit %d left state %v", i, o.State())
		}
	}
	if tr.calls.Load() != 2 {
		t.Fatalf("transport calls = %d, want 2", tr.calls.Load())
	}
}

type panicTransport struct{}

func (panicTransport) Analyze(context.Context, domain.AnalysisRequest) (domain.AnalysisResponse, error) {
	panic("nil map write")
}

func TestConcurrentSubmitIssuesOneRequest(t *testing.T) {
	tr := &fakeTransport{
		resp:    domain.AnalysisResponse{Text: "ok"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	o := newOrchestrator(filledSurface(), tr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := o.Submit(context.Background()); err != nil {
			t.Errorf("first Submit: %v", err)
		}
	}()

	<-tr.entered
	if o.State() != domain.StateSubmitting {
		t.Fatal("expected Submitting while the request is outstanding")
	}
	if _, ok := o.Result(); ok {
		t.Fatal("result must be cleared while submitting")
	}
	if _, err := o.Submit(context.Background()); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("second Submit err = %v, want ErrSubmissionInFlight", err)
	}

	close(tr.block)
	wg.Wait()

	if tr.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", tr.calls.Load())
	}
	if o.State() != domain.StateIdle {
		t.Fatal("expected Idle")
	}
}

func TestResultClearedOnResubmit(t *testing.T) {
	tr := &fakeTransport{resp: domain.AnalysisResponse{Text: "first"}}
	o := newOrchestrator(filledSurface(), tr)
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	var seen []string
	o.Subscribe(func() {
		text, ok := o.Result()
		if !ok {
			text = "<none>"
		}
		seen = append(seen, o.State().String()+":"+text)
	})
	tr.resp = domain.AnalysisResponse{Text: "second"}
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"submitting:<none>", "submitting:second", "idle:second"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
}

func TestEncodesRunConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	barrier := make(chan struct{})
	var once sync.Once
	enc := func(ctx context.Context, f domain.SelectedFile) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == 2 {
			once.Do(func() { close(barrier) })
		}
		select {
		case <-barrier:
		case <-time.After(time.Second):
		}
		inFlight.Add(-1)
		return f.Name, nil
	}

	tr := &fakeTransport{resp: domain.AnalysisResponse{Text: "ok"}}
	tr.onCall = func(req domain.AnalysisRequest) {
		if inFlight.Load() != 0 {
			t.Error("request issued before both encodes settled")
		}
		if req.Image != "cctv.jpg" || req.Document != "report.pdf" {
			t.Errorf("payloads = %+v", req)
		}
	}
	o := newOrchestrator(filledSurface(), tr, WithEncoder(enc))
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if peak.Load() != 2 {
		t.Fatalf("peak concurrent encodes = %d, want 2", peak.Load())
	}
}

func TestScenarioImageOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s := acquisition.NewSurface(quietLogger())
	s.Image.Drop([]domain.SelectedFile{{Name: "cctv.jpg", MediaType: "image/jpeg", Content: domain.BytesContent("x")}})
	o := newOrchestrator(s, client.New(srv.URL))

	if _, err := o.Submit(context.Background()); domain.KindOf(err) != domain.KindUser {
		t.Fatalf("err = %v, want user error", err)
	}
	if hits.Load() != 0 {
		t.Fatal("no request must be sent")
	}
}

func TestScenarioHTTP(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"success", http.StatusOK, `{"text": "No significant impact detected."}`, "No significant impact detected."},
		{"server error", http.StatusInternalServerError, `{"error":"stack trace here"}`, domain.FailurePlaceholder},
		{"malformed", http.StatusOK, `{"message":"hi"}`, domain.FailurePlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			o := newOrchestrator(filledSurface(), client.New(srv.URL))
			out, err := o.Submit(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if out.Text != tt.want {
				t.Fatalf("Text = %q, want %q", out.Text, tt.want)
			}
			if o.State() != domain.StateIdle {
				t.Fatal("expected Idle")
			}
		})
	}
}

func TestScenarioBypassedFilterStillSends(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("wind 180km/h"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := acquisition.Load(txt)
	if err != nil {
		t.Fatal(err)
	}

	s := filledSurface()
	s.Document.OnFilesDropped([]domain.SelectedFile{f})

	var got domain.AnalysisRequest
	tr := &fakeTransport{resp: domain.AnalysisResponse{Text: "ok"}, onCall: func(req domain.AnalysisRequest) { got = req }}
	o := newOrchestrator(s, tr)
	out, err := o.Submit(context.Background())
	if err != nil || out.Failed() {
		t.Fatalf("Outcome = %+v err = %v", out, err)
	}
	if got.Document != base64.StdEncoding.EncodeToString([]byte("wind 180km/h")) {
		t.Fatalf("document payload = %q", got.Document)
	}
}

func TestFileRemovedAfterSelection(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := acquisition.Load(pdf)
	if err != nil {
		t.Fatal(err)
	}
	s := filledSurface()
	s.Document.Drop([]domain.SelectedFile{f})
	if err := os.Remove(pdf); err != nil {
		t.Fatal(err)
	}

	tr := &fakeTransport{}
	o := newOrchestrator(s, tr)
	out, _ := o.Submit(context.Background())
	if !out.Failed() || out.Kind != domain.KindIO || tr.calls.Load() != 0 {
		t.Fatalf("Outcome = %+v calls = %d", out, tr.calls.Load())
	}
}
