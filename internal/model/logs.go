package model

// ClientLogEntry is one frontend log line accepted by the ingest endpoint.
type ClientLogEntry struct {
	Level     string `json:"level" binding:"required,oneof=debug info warn error"`
	Message   string `json:"message" binding:"required,max=2048"`
	Timestamp string `json:"timestamp"`
	Context   string `json:"context,omitempty"`
}

// IngestLogsRequest is the inline-processed batch; oversize batches are
// rejected, never buffered.
type IngestLogsRequest struct {
	Entries []ClientLogEntry `json:"entries" binding:"required,min=1,dive"`
}
