package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/osvaldoandrade/typhoonlens/pkg/acquisition"
	"github.com/osvaldoandrade/typhoonlens/pkg/client"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	"github.com/osvaldoandrade/typhoonlens/pkg/encoder"
	"github.com/osvaldoandrade/typhoonlens/pkg/presentation"
	"github.com/osvaldoandrade/typhoonlens/pkg/submission"
)

// errAnalysisFailed is returned after the failure placeholder was shown.
var errAnalysisFailed = fmt.Errorf("%w: analysis failed", errReported)

// pipeline wires the two pickers, the orchestrator and the view for one
// terminal. interactive enables the progress bar and spinner.
type pipeline struct {
	surface *acquisition.Surface
	orch    *submission.Orchestrator
	machine *presentation.Machine
	out     io.Writer
	ui      *ui

	interactive bool
	bar         *progressbar.ProgressBar
}

func newPipeline(baseURL string, timeout time.Duration, logger *slog.Logger, out io.Writer, ui *ui, interactive bool) *pipeline {
	p := &pipeline{
		surface:     acquisition.NewSurface(logger),
		out:         out,
		ui:          ui,
		interactive: interactive,
	}
	var transport submission.Transport = client.New(baseURL, client.WithHTTPClient(&http.Client{Timeout: timeout}))
	opts := []submission.Option{submission.WithLogger(logger)}
	if interactive {
		transport = &spinnerTransport{next: transport, out: out}
		opts = append(opts, submission.WithEncoder(p.encodeWithProgress))
	}
	p.orch = submission.New(p.surface.Image, p.surface.Document, transport, opts...)
	p.machine = presentation.NewMachine(p.surface, p.orch, logger)
	return p
}

func isInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// selectFile runs path through the slot's picker. Files outside the slot's
// filter are dropped without complaint, exactly like the drop zone.
func (p *pipeline) selectFile(role domain.Role, path string) error {
	f, err := acquisition.Load(path)
	if err != nil {
		return err
	}
	p.surface.Slot(role).Drop([]domain.SelectedFile{f})
	p.printSlot(role)
	return nil
}

func (p *pipeline) clear(role domain.Role) {
	p.surface.Slot(role).Clear()
	p.printSlot(role)
}

func (p *pipeline) printSlot(role domain.Role) {
	v := p.machine.View()
	sv := v.Image
	if role == domain.RoleDocument {
		sv = v.Document
	}
	if sv.Selected {
		fmt.Fprintf(p.out, "%s %s\n", p.ui.ok("[OK]"), sv.Label)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.ui.dim("[--]"), sv.Label)
}

func (p *pipeline) printStatus() {
	v := p.machine.View()
	fmt.Fprintf(p.out, "%s %s\n", p.ui.info("[PHASE]"), v.Phase)
	p.printSlot(domain.RoleImage)
	p.printSlot(domain.RoleDocument)
	button := p.ui.dim("[" + v.ButtonLabel + "]")
	if v.SubmitEnabled {
		button = p.ui.title("[" + v.ButtonLabel + "]")
	}
	fmt.Fprintln(p.out, button)
}

// analyze submits the current selection. A missing file is a user error;
// any other failure has already been rendered as the placeholder and comes
// back as errAnalysisFailed.
func (p *pipeline) analyze(ctx context.Context) (submission.Outcome, error) {
	if p.interactive {
		p.bar = p.newReadBar()
	}
	out, err := p.orch.Submit(ctx)
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
	if err != nil {
		return out, err
	}
	if out.Failed() {
		return out, errAnalysisFailed
	}
	return out, nil
}

func (p *pipeline) render(raw bool) {
	v := p.machine.View()
	if !v.HasReport {
		return
	}
	fmt.Fprintf(p.out, "\n%s\n\n", p.ui.title(presentation.ReportTitle))
	switch {
	case v.Phase == presentation.PhaseFailed:
		fmt.Fprintln(p.out, p.ui.err(v.Report))
	case raw:
		fmt.Fprintln(p.out, v.Report)
	default:
		fmt.Fprint(p.out, presentation.RenderTerminal(v.Report))
	}
}

func (p *pipeline) writeHTML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := presentation.WriteHTMLPage(f, p.machine.View()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "%s Report written to %s\n", p.ui.ok("[OK]"), path)
	return nil
}

func (p *pipeline) newReadBar() *progressbar.ProgressBar {
	var total int64
	for _, s := range []*acquisition.Slot{p.surface.Image, p.surface.Document} {
		if f, ok := s.Selected(); ok {
			total += f.Size
		}
	}
	if total <= 0 {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription("Reading files"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *pipeline) encodeWithProgress(ctx context.Context, f domain.SelectedFile) (string, error) {
	if bar := p.bar; bar != nil && f.Content != nil {
		f.Content = progressContent{Content: f.Content, w: bar}
	}
	return encoder.Encode(ctx, f)
}

// progressContent copies everything read from the file into w.
type progressContent struct {
	domain.Content
	w io.Writer
}

func (c progressContent) Open() (io.ReadCloser, error) {
	rc, err := c.Content.Open()
	if err != nil {
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{io.TeeReader(rc, c.w), rc}, nil
}

type spinnerTransport struct {
	next submission.Transport
	out  io.Writer
}

func (t *spinnerTransport) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResponse, error) {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(t.out))
	spin.Suffix = " " + presentation.ButtonSubmitting
	spin.Start()
	defer spin.Stop()
	return t.next.Analyze(ctx, req)
}
