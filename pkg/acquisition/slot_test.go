package acquisition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

func file(name, mediaType string) domain.SelectedFile {
	return domain.SelectedFile{Name: name, MediaType: mediaType, Content: domain.BytesContent(name)}
}

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		name      string
		filter    Filter
		mediaType string
		want      bool
	}{
		{"jpeg is image", ImageFilter, "image/jpeg", true},
		{"png with params", ImageFilter, "image/png; charset=binary", true},
		{"pdf is not image", ImageFilter, "application/pdf", false},
		{"pdf is document", DocumentFilter, "application/pdf", true},
		{"uppercase pdf", DocumentFilter, "Application/PDF", true},
		{"docx is not document", DocumentFilter, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", false},
		{"empty media type", ImageFilter, "", false},
		{"imagery prefix trap", ImageFilter, "imagex/foo", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.mediaType); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.mediaType, got, tt.want)
			}
		})
	}
}

func TestOnFilesDroppedReplacesSelection(t *testing.T) {
	s := NewImageSlot(nil)
	s.OnFilesDropped([]domain.SelectedFile{file("a.jpg", "image/jpeg")})
	s.OnFilesDropped([]domain.SelectedFile{file("b.jpg", "image/jpeg")})

	got, ok := s.Selected()
	if !ok || got.Name != "b.jpg" {
		t.Fatalf("Selected() = %v %v, want b.jpg", got.Name, ok)
	}
}

func TestOnFilesDroppedTakesFirstOnly(t *testing.T) {
	s := NewImageSlot(nil)
	s.OnFilesDropped([]domain.SelectedFile{file("first.jpg", "image/jpeg"), file("second.jpg", "image/jpeg")})

	got, _ := s.Selected()
	if got.Name != "first.jpg" {
		t.Fatalf("Selected() = %s, want first.jpg", got.Name)
	}
}

func TestEmptyDropKeepsSelection(t *testing.T) {
	s := NewDocumentSlot(nil)
	s.OnFilesDropped([]domain.SelectedFile{file("report.pdf", "application/pdf")})
	s.OnFilesDropped(nil)

	got, ok := s.Selected()
	if !ok || got.Name != "report.pdf" {
		t.Fatalf("selection changed on empty drop: %v %v", got.Name, ok)
	}
}

func TestDropRejectsSilently(t *testing.T) {
	s := NewDocumentSlot(nil)
	notified := 0
	s.Subscribe(func() { notified++ })

	s.Drop([]domain.SelectedFile{file("cctv.jpg", "image/jpeg")})
	if _, ok := s.Selected(); ok {
		t.Fatal("image must not be delivered to the document slot")
	}
	if notified != 0 {
		t.Fatalf("rejected drop notified %d times", notified)
	}

	s.Drop([]domain.SelectedFile{file("cctv.jpg", "image/jpeg"), file("report.pdf", "application/pdf")})
	got, ok := s.Selected()
	if !ok || got.Name != "report.pdf" {
		t.Fatalf("Selected() = %v %v, want report.pdf", got.Name, ok)
	}
	if notified != 1 {
		t.Fatalf("notified = %d, want 1", notified)
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	surface := NewSurface(nil)
	surface.Image.Drop([]domain.SelectedFile{file("cctv.jpg", "image/jpeg")})

	if _, ok := surface.Document.Selected(); ok {
		t.Fatal("document slot changed by image drop")
	}
	surface.Document.Drop([]domain.SelectedFile{file("report.pdf", "application/pdf")})
	surface.Image.Clear()

	if _, ok := surface.Image.Selected(); ok {
		t.Fatal("image slot should be empty after Clear")
	}
	if _, ok := surface.Document.Selected(); !ok {
		t.Fatal("document slot cleared by image Clear")
	}
	if surface.Slot(domain.RoleDocument) != surface.Document || surface.Slot("audio") != nil {
		t.Fatal("Slot lookup mismatch")
	}
}

func TestDragActive(t *testing.T) {
	s := NewImageSlot(nil)
	changes := 0
	s.Subscribe(func() { changes++ })

	s.SetDragActive(true)
	s.SetDragActive(true)
	if !s.IsActive() {
		t.Fatal("expected active")
	}
	s.SetDragActive(false)
	if s.IsActive() {
		t.Fatal("expected inactive")
	}
	if changes != 2 {
		t.Fatalf("changes = %d, want 2", changes)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "typhoon report.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	png := filepath.Join(dir, "cctv.png")
	header := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
	if err := os.WriteFile(png, header, 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(`'` + pdf + `'`)
	if err != nil {
		t.Fatalf("Load pdf: %v", err)
	}
	if f.Name != "typhoon report.pdf" || f.MediaType != "application/pdf" {
		t.Fatalf("Load pdf = %+v", f)
	}
	if !DocumentFilter.Matches(f.MediaType) {
		t.Fatal("pdf should pass the document filter")
	}

	f, err = Load(png)
	if err != nil {
		t.Fatalf("Load png: %v", err)
	}
	if f.MediaType != "image/png" || f.Size != int64(len(header)) {
		t.Fatalf("Load png = %+v", f)
	}

	if _, err := Load(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestCleanPath(t *testing.T) {
	tests := map[string]string{
		`  '/tmp/a b.jpg' `:        "/tmp/a b.jpg",
		`"/tmp/report.pdf"`:        "/tmp/report.pdf",
		`/tmp/typhoon\ report.pdf`: "/tmp/typhoon report.pdf",
		`file:///tmp/cctv.jpg`:     "/tmp/cctv.jpg",
	}
	for in, want := range tests {
		if got := CleanPath(in); got != want {
			t.Errorf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}
