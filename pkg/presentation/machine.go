// Package presentation derives what the submission screen shows from the
// acquisition slots and the orchestrator.
package presentation

import (
	"log/slog"
	"sync"

	"github.com/osvaldoandrade/typhoonlens/pkg/acquisition"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	"github.com/osvaldoandrade/typhoonlens/pkg/submission"
)

type Phase int

const (
	PhaseEmpty Phase = iota
	PhasePartiallySelected
	PhaseReadyToSubmit
	PhaseSubmitting
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhasePartiallySelected:
		return "partially-selected"
	case PhaseReadyToSubmit:
		return "ready"
	case PhaseSubmitting:
		return "submitting"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	ButtonIdle       = "Analyze Impact"
	ButtonSubmitting = "Analyzing..."
	ReportTitle      = "Analysis Report"
)

type slotText struct {
	title    string
	selected string
	prompt   string
	active   string
	preview  string
}

var texts = map[domain.Role]slotText{
	domain.RoleImage: {
		title:    "CCTV Image",
		selected: "Image selected: ",
		prompt:   "Drag & Drop a CCTV Image here or click to browse",
		active:   "Drop the Image ...",
		preview:  "CCTV Image Preview: ",
	},
	domain.RoleDocument: {
		title:    "Typhoon Report",
		selected: "PDF selected: ",
		prompt:   "Drag & Drop the Typhoon Report here or click to browse",
		active:   "Drop the PDF ...",
		preview:  "Selected PDF: ",
	},
}

// SlotView is one drop target as displayed. Hint is only set while a drag
// hovers over an empty slot.
type SlotView struct {
	Role     domain.Role
	Title    string
	Selected bool
	FileName string
	Label    string
	Hint     string
	Preview  string
	Active   bool
}

type View struct {
	Phase         Phase
	Image         SlotView
	Document      SlotView
	SubmitEnabled bool
	ButtonLabel   string
	HasReport     bool
	Report        string
}

// Observable is the read side of submission.Orchestrator.
type Observable interface {
	State() domain.SubmissionState
	LastOutcome() (submission.Outcome, bool)
	Subscribe(fn func())
}

// Machine recomputes the View whenever a slot or the orchestrator changes
// and hands it to the registered listeners.
type Machine struct {
	surface *acquisition.Surface
	orch    Observable
	logger  *slog.Logger

	mu        sync.Mutex
	phase     Phase
	listeners []func(View)
}

func NewMachine(surface *acquisition.Surface, orch Observable, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{surface: surface, orch: orch, logger: logger}
	m.phase = m.View().Phase
	surface.Subscribe(m.refresh)
	orch.Subscribe(m.refresh)
	return m
}

func (m *Machine) OnChange(fn func(View)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) View() View {
	img := slotView(m.surface.Image)
	doc := slotView(m.surface.Document)
	state := m.orch.State()
	out, settled := m.orch.LastOutcome()

	v := View{
		Phase:       derivePhase(img.Selected, doc.Selected, state, out, settled),
		Image:       img,
		Document:    doc,
		ButtonLabel: ButtonIdle,
	}
	if state == domain.StateSubmitting {
		v.ButtonLabel = ButtonSubmitting
	}
	v.SubmitEnabled = state == domain.StateIdle && img.Selected && doc.Selected
	if settled && out.Text != "" {
		v.HasReport = true
		v.Report = out.Text
	}
	return v
}

func (m *Machine) refresh() {
	v := m.View()
	m.mu.Lock()
	prev := m.phase
	m.phase = v.Phase
	ls := append([]func(View){}, m.listeners...)
	m.mu.Unlock()

	if prev != v.Phase {
		m.logger.Debug("presentation phase changed", "from", prev.String(), "to", v.Phase.String())
	}
	for _, fn := range ls {
		fn(v)
	}
}

func derivePhase(img, doc bool, state domain.SubmissionState, out submission.Outcome, settled bool) Phase {
	switch {
	case state == domain.StateSubmitting:
		return PhaseSubmitting
	case img && doc && settled && out.Failed():
		return PhaseFailed
	case img && doc && settled:
		return PhaseComplete
	case img && doc:
		return PhaseReadyToSubmit
	case img || doc:
		return PhasePartiallySelected
	default:
		return PhaseEmpty
	}
}

func slotView(s *acquisition.Slot) SlotView {
	t := texts[s.Role()]
	v := SlotView{Role: s.Role(), Title: t.title, Active: s.IsActive()}
	if f, ok := s.Selected(); ok {
		v.Selected = true
		v.FileName = f.Name
		v.Label = t.selected + f.Name
		v.Preview = t.preview + f.Name
		return v
	}
	v.Label = t.prompt
	if v.Active {
		v.Hint = t.active
	}
	return v
}
