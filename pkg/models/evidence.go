package models

import "time"

// Evidence is a single respondent observation extracted from one interview.
// Evidence is append-only: once committed it is never edited or deleted, and
// its id is never reused.
type Evidence struct {
	ID          string `json:"id"`           // monotonic per project, "E001"
	InterviewID string `json:"interview_id"` // owning interview, "INT_003"

	// Quote is verbatim respondent speech in the interview language.
	Quote string `json:"quote"`
	// Interpretation and the causal fields below are always English.
	Interpretation string `json:"interpretation"`
	Factor         string `json:"factor"`
	Mechanism      string `json:"mechanism"`
	Outcome        string `json:"outcome"`

	Tags      []string  `json:"tags"`               // 2-5 English tags
	Language  string    `json:"language,omitempty"` // ISO code of the quote
	Timestamp time.Time `json:"timestamp"`
}
