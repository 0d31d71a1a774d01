package acquisition

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

// Load describes a file on disk as a SelectedFile. Only the header is read
// here; the content is re-read from path at submission time.
func Load(path string) (domain.SelectedFile, error) {
	path = CleanPath(path)
	st, err := os.Stat(path)
	if err != nil {
		return domain.SelectedFile{}, err
	}
	if st.IsDir() {
		return domain.SelectedFile{}, fmt.Errorf("%s is a directory", path)
	}
	return domain.SelectedFile{
		Name:      filepath.Base(path),
		MediaType: detectMediaType(path),
		Size:      st.Size(),
		Content:   domain.PathContent(path),
	}, nil
}

func detectMediaType(path string) string {
	if mt, err := mimetype.DetectFile(path); err == nil && mt.String() != "application/octet-stream" {
		if base, _, err := mime.ParseMediaType(mt.String()); err == nil {
			return base
		}
		return mt.String()
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		if base, _, err := mime.ParseMediaType(byExt); err == nil {
			return base
		}
	}
	return "application/octet-stream"
}

// CleanPath normalizes a path pasted into a terminal by a drag-and-drop:
// surrounding quotes, file:// prefixes and backslash-escaped spaces.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	if len(p) >= 2 {
		if (p[0] == '\'' && p[len(p)-1] == '\'') || (p[0] == '"' && p[len(p)-1] == '"') {
			p = p[1 : len(p)-1]
		}
	}
	p = strings.TrimPrefix(p, "file://")
	p = strings.ReplaceAll(p, `\ `, " ")
	return p
}
