package model

// IngestRequest starts a document ingestion job. Content is either the
// document body itself or an http(s) URL to fetch it from.
type IngestRequest struct {
	Content      string            `json:"content" validate:"required"`
	DocumentType DocumentType      `json:"document_type" validate:"required,oneof=text html markdown pdf"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IngestResponse acknowledges an accepted ingestion job
type IngestResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	JobID         string `json:"job_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// ActiveJobsResponse lists jobs currently queued or running
type ActiveJobsResponse struct {
	Jobs  []*Job `json:"jobs"`
	Total int    `json:"total"`
}

// QueryRequest asks a natural-language question over the indexed corpus
type QueryRequest struct {
	Question string `json:"question" validate:"required,min=1"`
}

// QueryResponse carries the synthesized answer and its grounding sources
type QueryResponse struct {
	Answer        string            `json:"answer"`
	Sources       []RetrievalResult `json:"sources"`
	RetrieverUsed string            `json:"retriever_used"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// HealthStatus is the orchestrator health snapshot
type HealthStatus struct {
	Status     string  `json:"status"`
	PingMs     float64 `json:"ping_ms"`
	MemoryUsed int64   `json:"memory_used"`
	ActiveJobs int     `json:"active_jobs"`
}
