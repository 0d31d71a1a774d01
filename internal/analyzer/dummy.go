package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Dummy answers without calling any model. The report depends only on the
// input, so tests and local runs get stable output.
type Dummy struct{}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Name() string  { return "dummy" }
func (d *Dummy) Model() string { return "dummy" }
func (d *Dummy) Close() error  { return nil }

func (d *Dummy) Analyze(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("## Scene Assessment\n\n")
	fmt.Fprintf(&b, "- Image: %s, %d bytes, digest `%s`\n", orUnknown(in.Image.MediaType), len(in.Image.Data), shortDigest(in.Image.Data))
	fmt.Fprintf(&b, "- Bulletin: %s, %d bytes, digest `%s`\n\n", orUnknown(in.Document.MediaType), len(in.Document.Data), shortDigest(in.Document.Data))
	b.WriteString("## Expected Impact\n\n")
	b.WriteString("No significant impact detected.\n")
	return b.String(), nil
}

func shortDigest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:6])
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown type"
	}
	return s
}
