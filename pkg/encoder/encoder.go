// Package encoder turns a selected file into the base64 text carried in an
// analysis request, and back.
package encoder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

const defaultMediaType = "application/octet-stream"

// Encode reads f fully and returns the standard base64 encoding of its
// bytes. It blocks until the read finishes or ctx is done. Read failures are
// reported as domain.KindIO.
func Encode(ctx context.Context, f domain.SelectedFile) (string, error) {
	url, err := ReadAsDataURL(ctx, f)
	if err != nil {
		return "", err
	}
	return StripDataURL(url), nil
}

// ReadAsDataURL returns data:<mediatype>;base64,<payload> for f.
func ReadAsDataURL(ctx context.Context, f domain.SelectedFile) (string, error) {
	data, err := read(ctx, f)
	if err != nil {
		return "", err
	}
	mt := strings.TrimSpace(f.MediaType)
	if mt == "" {
		mt = defaultMediaType
	}
	return MakeDataURL(mt, base64.StdEncoding.EncodeToString(data)), nil
}

func read(ctx context.Context, f domain.SelectedFile) ([]byte, error) {
	if f.Content == nil {
		return nil, domain.NewError(domain.KindIO, fmt.Errorf("%s: no content handle", f.Name))
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		rc, err := f.Content.Open()
		if err != nil {
			done <- result{err: err}
			return
		}
		defer rc.Close()
		b, err := io.ReadAll(ctxReader{ctx: ctx, r: rc})
		done <- result{data: b, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindIO, fmt.Errorf("read %s: %w", f.Name, ctx.Err()))
	case r := <-done:
		if r.err != nil {
			return nil, domain.NewError(domain.KindIO, fmt.Errorf("read %s: %w", f.Name, r.err))
		}
		return r.data, nil
	}
}

func MakeDataURL(mediaType, b64 string) string {
	return "data:" + mediaType + ";base64," + b64
}

// StripDataURL drops a leading data:...; prefix and returns the payload
// segment. Plain base64 is returned trimmed but otherwise untouched.
func StripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); i != -1 && strings.HasPrefix(strings.ToLower(s[:i]), "data:") {
		return s[i+1:]
	}
	return s
}

var ErrEmptyPayload = errors.New("empty payload")

// Decode accepts plain base64 or a data URL. When a data URL is given the
// declared media type is returned as a hint.
func Decode(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hint string
	if strings.HasPrefix(strings.ToLower(s), "data:") {
		if idx := strings.IndexByte(s, ','); idx > 0 {
			meta := s[len("data:"):idx]
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				hint = meta[:semi]
			} else {
				hint = meta
			}
			s = s[idx+1:]
		}
	}
	if s == "" {
		return nil, hint, ErrEmptyPayload
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, hint, nil
	}
	if b2, err2 := base64.URLEncoding.DecodeString(s); err2 == nil {
		return b2, hint, nil
	}
	return nil, "", err
}

// ctxReader stops a read loop at the next Read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
