// Package acquisition holds the two single-file pickers of the submission
// pipeline: one for the scene image, one for the report document.
package acquisition

import (
	"log/slog"
	"sync"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

const maxFiles = 1

// Slot is a single-file drop target constrained by a Filter. The zero value
// is not usable; build one with NewSlot.
type Slot struct {
	role   domain.Role
	filter Filter
	logger *slog.Logger

	mu        sync.RWMutex
	selected  *domain.SelectedFile
	active    bool
	listeners []func()
}

func NewSlot(role domain.Role, filter Filter, logger *slog.Logger) *Slot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slot{role: role, filter: filter, logger: logger}
}

func NewImageSlot(logger *slog.Logger) *Slot {
	return NewSlot(domain.RoleImage, ImageFilter, logger)
}

func NewDocumentSlot(logger *slog.Logger) *Slot {
	return NewSlot(domain.RoleDocument, DocumentFilter, logger)
}

func (s *Slot) Role() domain.Role { return s.role }
func (s *Slot) Filter() Filter    { return s.filter }

// Drop delivers files the way a user agent would: files outside the filter
// are discarded without any error, then the rest go to OnFilesDropped.
func (s *Slot) Drop(files []domain.SelectedFile) {
	accepted := make([]domain.SelectedFile, 0, len(files))
	for _, f := range files {
		if !s.filter.Matches(f.MediaType) {
			s.logger.Debug("file rejected by filter", "slot", s.role, "file", f.Name, "mediaType", f.MediaType, "accept", s.filter.String())
			continue
		}
		accepted = append(accepted, f)
		if len(accepted) == maxFiles {
			break
		}
	}
	s.OnFilesDropped(accepted)
}

// OnFilesDropped replaces the selection with files[0]. Extra files are
// ignored and an empty drop leaves the selection as it was.
func (s *Slot) OnFilesDropped(files []domain.SelectedFile) {
	if len(files) == 0 {
		return
	}
	f := files[0]
	s.mu.Lock()
	s.selected = &f
	s.mu.Unlock()
	s.logger.Debug("file selected", "slot", s.role, "file", f.Name, "mediaType", f.MediaType)
	s.notify()
}

func (s *Slot) Selected() (domain.SelectedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return domain.SelectedFile{}, false
	}
	return *s.selected, true
}

func (s *Slot) Clear() {
	s.mu.Lock()
	had := s.selected != nil
	s.selected = nil
	s.mu.Unlock()
	if had {
		s.notify()
	}
}

// SetDragActive records whether a drag gesture hovers over this target.
func (s *Slot) SetDragActive(active bool) {
	s.mu.Lock()
	changed := s.active != active
	s.active = active
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Slot) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Subscribe registers fn to run after every selection or hover change.
func (s *Slot) Subscribe(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Slot) notify() {
	s.mu.RLock()
	ls := append([]func(){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range ls {
		fn()
	}
}

// Surface groups the image and document pickers.
type Surface struct {
	Image    *Slot
	Document *Slot
}

func NewSurface(logger *slog.Logger) *Surface {
	return &Surface{
		Image:    NewImageSlot(logger),
		Document: NewDocumentSlot(logger),
	}
}

func (s *Surface) Slot(role domain.Role) *Slot {
	switch role {
	case domain.RoleImage:
		return s.Image
	case domain.RoleDocument:
		return s.Document
	default:
		return nil
	}
}

func (s *Surface) Subscribe(fn func()) {
	s.Image.Subscribe(fn)
	s.Document.Subscribe(fn)
}
