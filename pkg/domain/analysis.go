package domain

import "time"

// AnalysisRequest is the body of POST /api/ai. Field names follow the
// service contract: img carries the scene image, pdf the report document.
type AnalysisRequest struct {
	Image    string `json:"img" binding:"required"`
	Document string `json:"pdf" binding:"required"`
}

// AnalysisResponse carries the narrative report as markdown.
type AnalysisResponse struct {
	Text string `json:"text"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Report is a stored analysis, keyed by the digest of both payloads.
type Report struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Text      string    `json:"text"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
