// Package submission runs the single encode-and-analyze exchange behind the
// submit button.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	"github.com/osvaldoandrade/typhoonlens/pkg/encoder"
)

// ErrSubmissionInFlight rejects a Submit issued while another one has not
// settled yet.
var ErrSubmissionInFlight = errors.New("a submission is already in flight")

type Transport interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResponse, error)
}

// Source is a read-only view of one acquisition slot.
type Source interface {
	Selected() (domain.SelectedFile, bool)
}

type EncodeFunc func(ctx context.Context, f domain.SelectedFile) (string, error)

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusFailure {
		return "failure"
	}
	return "success"
}

// Outcome is the settled result of one submission. Text is the report on
// success and domain.FailurePlaceholder on failure.
type Outcome struct {
	Status Status
	Text   string
	Kind   domain.ErrorKind
}

func (o Outcome) Failed() bool { return o.Status == StatusFailure }

type Orchestrator struct {
	image     Source
	document  Source
	transport Transport
	encode    EncodeFunc
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     domain.SubmissionState
	last      *Outcome
	listeners []func()
}

type Option func(*Orchestrator)

func WithEncoder(fn EncodeFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.encode = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New(image, document Source, transport Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		image:     image,
		document:  document,
		transport: transport,
		encode:    encoder.Encode,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit checks that both slots are filled, encodes both files, posts them
// and records the outcome. A missing file returns domain.ErrMissingFiles
// before any work starts; every later failure is folded into a failure
// Outcome. The state is back to Idle whenever Submit returns.
func (o *Orchestrator) Submit(ctx context.Context) (Outcome, error) {
	img, okImg := o.image.Selected()
	doc, okDoc := o.document.Selected()
	if !okImg || !okDoc {
		return Outcome{}, domain.ErrMissingFiles
	}

	if !o.acquire() {
		return Outcome{}, ErrSubmissionInFlight
	}
	defer o.release()
	o.notify()

	out := o.run(ctx, img, doc)
	o.settle(out)
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, img, doc domain.SelectedFile) (out Outcome) {
	start := o.now()
	ctx, span := otel.Tracer("typhoonlens/submission").Start(ctx, "typhoonlens.submit",
		trace.WithAttributes(
			attribute.String("typhoonlens.image.name", img.Name),
			attribute.String("typhoonlens.image.media_type", img.MediaType),
			attribute.String("typhoonlens.document.name", doc.Name),
			attribute.String("typhoonlens.document.media_type", doc.MediaType),
		),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			out = o.fail(span, domain.NewError(domain.KindUnexpected, fmt.Errorf("panic: %v", r)))
		}
	}()

	var imgB64, docB64 string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := o.safeEncode(gctx, img)
		imgB64 = s
		return err
	})
	g.Go(func() error {
		s, err := o.safeEncode(gctx, doc)
		docB64 = s
		return err
	})
	if err := g.Wait(); err != nil {
		return o.fail(span, err)
	}

	resp, err := o.transport.Analyze(ctx, domain.AnalysisRequest{Image: imgB64, Document: docB64})
	if err != nil {
		if domain.KindOf(err) == domain.KindUnexpected {
			err = domain.NewError(domain.KindTransport, err)
		}
		return o.fail(span, err)
	}

	o.logger.Info("analysis received", "chars", len(resp.Text), "elapsed", o.now().Sub(start).String())
	span.SetStatus(codes.Ok, "")
	return Outcome{Status: StatusSuccess, Text: resp.Text}
}

func (o *Orchestrator) safeEncode(ctx context.Context, f domain.SelectedFile) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.KindUnexpected, fmt.Errorf("encode %s: panic: %v", f.Name, r))
		}
	}()
	s, err = o.encode(ctx, f)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnexpected {
			err = domain.NewError(domain.KindIO, err)
		}
		return "", fmt.Errorf("encode %s: %w", f.Name, err)
	}
	return s, nil
}

func (o *Orchestrator) fail(span trace.Span, err error) Outcome {
	kind := domain.KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	o.logger.Error("analysis submission failed", "kind", kind, "err", err)
	return Outcome{Status: StatusFailure, Text: domain.FailurePlaceholder, Kind: kind}
}

// acquire flips Idle to Submitting and clears the result. It does not notify:
// listeners only run once release is deferred.
func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == domain.StateSubmitting {
		return false
	}
	o.state = domain.StateSubmitting
	o.last = nil
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.state = domain.StateIdle
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) settle(out Outcome) {
	o.mu.Lock()
	o.last = &out
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) State() domain.SubmissionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Result returns the text to display: the report, the failure placeholder,
// or nothing before the first submission settles.
func (o *Orchestrator) Result() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return "", false
	}
	return o.last.Text, true
}

func (o *Orchestrator) LastOutcome() (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Outcome{}, false
	}
	return *o.last, true
}

// Subscribe registers fn to run after every state or result change.
func (o *Orchestrator) Subscribe(fn func()) {
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	ls := append([]func(){}, o.listeners...)
	o.mu.Unlock()
	for _, fn := range ls {
		o.call(fn)
	}
}

// call runs one listener. A panicking listener is logged and skipped so the
// remaining listeners still see the change.
func (o *Orchestrator) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("submission listener panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
