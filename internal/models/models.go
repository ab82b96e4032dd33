package models

import "time"

// Chunk is a contiguous span of source text produced by the splitting
// window, keyed by a content-derived id.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	Collection string `json:"collection"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// ScoredChunk is a chunk returned by similarity search.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Turn is one question/answer exchange inside a conversation session.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Citation points at a chunk that grounded an answer.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// AnswerResult is what the answer engine hands back to transports.
type AnswerResult struct {
	Answer     string     `json:"answer"`
	Collection string     `json:"collection"`
	SessionID  string     `json:"session_id"`
	Sources    []Citation `json:"sources"`
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	Collection string `json:"collection"`
	Source     string `json:"source"`
	Chunks     int    `json:"chunks"`
	Status     string `json:"status"`
}
