package workflows

// DocumentIngestInput describes one document to ingest into a named
// collection.
type DocumentIngestInput struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
	Source     string `json:"source"`
}

// IngestProgress is exposed through the progress query while the
// workflow runs.
type IngestProgress struct {
	Collection  string            `json:"collection"`
	Source      string            `json:"source"`
	CurrentStep string            `json:"current_step"`
	Steps       map[string]string `json:"steps"`
	Chunks      int               `json:"chunks"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
}

// DocumentIngestResult is the workflow's return value.
type DocumentIngestResult struct {
	Collection string `json:"collection"`
	Source     string `json:"source"`
	Chunks     int    `json:"chunks"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}
