package presentation

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// markdown renders reports with raw HTML omitted and unsafe link targets
// dropped, which is goldmark's default.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts a report to an HTML fragment.
func RenderHTML(report string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(report), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<p>{{.Image}}</p>
<p>{{.Document}}</p>
<h3>{{.Title}}</h3>
{{.Body}}
</body>
</html>
`))

// WriteHTMLPage writes a standalone page with the selected files and the
// rendered report of v.
func WriteHTMLPage(w io.Writer, v View) error {
	body, err := RenderHTML(v.Report)
	if err != nil {
		return err
	}
	return pageTemplate.Execute(w, struct {
		Title    string
		Image    string
		Document string
		Body     template.HTML
	}{
		Title:    ReportTitle,
		Image:    v.Image.Label,
		Document: v.Document.Label,
		Body:     template.HTML(body),
	})
}

// RenderTerminal walks the markdown tree of a report and prints it as
// styled prose. Raw HTML is dropped.
func RenderTerminal(report string) string {
	src := []byte(report)
	doc := markdown.Parser().Parse(text.NewReader(src))
	r := &terminalRenderer{src: src}
	_ = ast.Walk(doc, r.visit)
	return strings.TrimRight(r.buf.String(), "\n") + "\n"
}

type listState struct {
	ordered bool
	next    int
}

type terminalRenderer struct {
	src   []byte
	buf   strings.Builder
	attrs []color.Attribute
	lists []listState
}

func (r *terminalRenderer) push(a ...color.Attribute) { r.attrs = append(r.attrs, a...) }

func (r *terminalRenderer) pop(n int) { r.attrs = r.attrs[:len(r.attrs)-n] }

func (r *terminalRenderer) write(s string) {
	if len(r.attrs) == 0 {
		r.buf.WriteString(s)
		return
	}
	r.buf.WriteString(color.New(r.attrs...).Sprint(s))
}

func (r *terminalRenderer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.push(color.Bold, color.FgCyan)
		} else {
			r.pop(2)
			r.buf.WriteString("\n\n")
		}
	case *ast.Paragraph:
		if !entering {
			r.buf.WriteString("\n")
			if _, inItem := node.Parent().(*ast.ListItem); !inItem {
				r.buf.WriteString("\n")
			}
		}
	case *ast.TextBlock:
		if !entering {
			r.buf.WriteString("\n")
		}
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.src)))
			if node.HardLineBreak() || node.SoftLineBreak() {
				r.buf.WriteString("\n")
			}
		}
	case *ast.String:
		if entering {
			r.write(string(node.Value))
		}
	case *ast.Emphasis:
		attr := color.Italic
		if node.Level >= 2 {
			attr = color.Bold
		}
		if entering {
			r.push(attr)
		} else {
			r.pop(1)
		}
	case *ast.CodeSpan:
		if entering {
			r.push(color.FgYellow)
		} else {
			r.pop(1)
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := strings.TrimRight(string(seg.Value(r.src)), "\n")
				r.buf.WriteString(color.New(color.FgYellow).Sprint("    "+line) + "\n")
			}
			r.buf.WriteString("\n")
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.lists = append(r.lists, listState{ordered: node.IsOrdered(), next: node.Start})
		} else {
			r.lists = r.lists[:len(r.lists)-1]
			if len(r.lists) == 0 {
				r.buf.WriteString("\n")
			}
		}
	case *ast.ListItem:
		if entering && len(r.lists) > 0 {
			top := &r.lists[len(r.lists)-1]
			r.buf.WriteString(strings.Repeat("  ", len(r.lists)-1))
			if top.ordered {
				r.buf.WriteString(fmt.Sprintf("%d. ", top.next))
				top.next++
			} else {
				r.buf.WriteString("• ")
			}
		}
	case *ast.Blockquote:
		if entering {
			r.push(color.Faint)
		} else {
			r.pop(1)
		}
	case *ast.ThematicBreak:
		if entering {
			r.buf.WriteString(strings.Repeat("─", 40) + "\n\n")
		}
	case *ast.Link:
		if !entering {
			dest := string(node.Destination)
			if dest != "" {
				r.write(" (" + dest + ")")
			}
		}
	case *ast.AutoLink:
		if entering {
			r.write(string(node.URL(r.src)))
		}
		return ast.WalkSkipChildren, nil
	case *east.TableCell:
		if !entering {
			r.buf.WriteString(" | ")
		}
	case *east.TableHeader, *east.TableRow:
		if entering {
			r.buf.WriteString("| ")
		} else {
			r.buf.WriteString("\n")
		}
	case *east.Table:
		if !entering {
			r.buf.WriteString("\n")
		}
	case *ast.RawHTML, *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}
