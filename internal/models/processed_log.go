package models

import "time"

// ProcessedLog is the document persisted for a (tenant_id, log_id) pair.
// Every field is recomputed on reprocessing, so a redelivered message overwrites
// the document instead of merging into it.
type ProcessedLog struct {
	TenantID              string    `json:"tenant_id"`
	LogID                 string    `json:"log_id"`
	Source                string    `json:"source"` // json_upload | text_upload
	RedactedText          string    `json:"redacted_text"`
	RedactionCount        int       `json:"redaction_count"`
	CharacterCount        int       `json:"character_count"`
	RequestID             string    `json:"request_id"`
	IngestedAt            time.Time `json:"ingested_at"`
	ProcessedAt           time.Time `json:"processed_at"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
}

// UploadSource maps the ingest shape to the stored source label.
func UploadSource(s Source) string {
	return string(s) + "_upload"
}
