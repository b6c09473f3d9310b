package agent

// MaxTranscriptBytes caps the transcript size accepted for analysis.
// Webhook payloads above this are rejected before any LLM call.
const MaxTranscriptBytes = 1024 * 1024

// DefaultLanguage is assumed when the analyst omits the evidence language.
const DefaultLanguage = "en"

// MaxEvidenceTags caps the number of tags kept per evidence record.
const MaxEvidenceTags = 5

// MaxProbesPerSection caps the number of probe questions per script section.
const MaxProbesPerSection = 3
