package activities

import "docchat/internal/models"

type LoadDocumentInput struct {
	Path string `json:"path"`
}

type LoadDocumentOutput struct {
	Text string `json:"text"`
}

type ChunkDocumentInput struct {
	Collection string `json:"collection"`
	Source     string `json:"source"`
	Text       string `json:"text"`
}

type ChunkDocumentOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type UpsertChunksInput struct {
	Collection string         `json:"collection"`
	Chunks     []models.Chunk `json:"chunks"`
	Vectors    [][]float32    `json:"vectors"`
}

type DeleteCollectionInput struct {
	Collection string `json:"collection"`
}

type DeleteCollectionOutput struct {
	Existed bool `json:"existed"`
}
