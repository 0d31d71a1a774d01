package acquisition

import (
	"mime"
	"strings"
)

// Filter is an accepted media-type list. Patterns are either exact types
// ("application/pdf") or a top-level wildcard ("image/*").
type Filter struct {
	Accept []string
}

var (
	ImageFilter    = Filter{Accept: []string{"image/*"}}
	DocumentFilter = Filter{Accept: []string{"application/pdf"}}
)

func (f Filter) Matches(mediaType string) bool {
	mt := normalize(mediaType)
	if mt == "" {
		return false
	}
	for _, p := range f.Accept {
		p = normalize(p)
		if p == "*/*" || p == mt {
			return true
		}
		if strings.HasSuffix(p, "/*") && strings.HasPrefix(mt, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}

func (f Filter) String() string { return strings.Join(f.Accept, ",") }

func normalize(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		return mt
	}
	return strings.ToLower(mediaType)
}
