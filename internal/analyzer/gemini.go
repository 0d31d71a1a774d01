package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Gemini struct {
	client *genai.Client
	model  string
	prompt string
}

func NewGemini(ctx context.Context, apiKey, model, systemPrompt string) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &Gemini{client: client, model: strings.TrimSpace(model), prompt: systemPrompt}, nil
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }
func (g *Gemini) Close() error  { return g.client.Close() }

func (g *Gemini) Analyze(ctx context.Context, in Input) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.prompt)}}
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0.2)}

	parts := []genai.Part{
		genai.Text("CCTV image of the location:"),
		genai.Blob{MIMEType: in.Image.MediaType, Data: in.Image.Data},
		genai.Text("Typhoon bulletin:"),
		genai.Blob{MIMEType: in.Document.MediaType, Data: in.Document.Data},
		genai.Text("Write the impact report."),
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	txt := strings.TrimSpace(collectText(resp))
	if txt == "" {
		return "", ErrEmptyReport
	}
	return txt, nil
}

// collectText joins the text parts of the first candidate that has any.
func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
