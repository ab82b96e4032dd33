package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/store"
	"docchat/internal/util"

	"github.com/sirupsen/logrus"
)

const embedBatchSize = 64

// Embedder is the slice of the provider manager the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error)
}

// Pipeline turns a raw document into a searchable collection: load,
// chunk, embed, persist. The stages are individually callable so the
// Temporal activities and the in-process path share one implementation.
type Pipeline struct {
	embedder     Embedder
	store        store.Store
	chunkSize    int
	chunkOverlap int
	embedDim     int
	log          *logrus.Entry
}

func NewPipeline(embedder Embedder, st store.Store, chunkSize, chunkOverlap, embedDim int) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Pipeline{
		embedder:     embedder,
		store:        st,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		embedDim:     embedDim,
		log:          logrus.WithField("component", "ingest"),
	}
}

// BuildChunks splits sanitized text into chunk records with
// content-derived ids, so re-ingesting the same document upserts rather
// than duplicates.
func (p *Pipeline) BuildChunks(collection, source, text string) []models.Chunk {
	parts := util.ChunkText(text, p.chunkSize, p.chunkOverlap)
	chunks := make([]models.Chunk, 0, len(parts))
	for idx, part := range parts {
		part = util.SanitizeText(part)
		if part == "" {
			continue
		}
		contentHash := util.SHA256Hex([]byte(part))
		chunkID := util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", source, idx, contentHash)))
		chunks = append(chunks, models.Chunk{
			ChunkID:    chunkID,
			Collection: collection,
			Source:     source,
			ChunkIndex: idx,
			Text:       part,
		})
	}
	return chunks
}

// EmbedChunks embeds chunk texts in batches through the provider and
// reports which provider served them.
func (p *Pipeline) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, providers.ProviderInfo, error) {
	var info providers.ProviderInfo
	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		inputs := make([]string, 0, end-i)
		for _, c := range chunks[i:end] {
			inputs = append(inputs, c.Text)
		}
		batch, batchInfo, err := p.embedder.Embed(ctx, providers.EmbedRequest{
			Operation: "ingest_embed",
			Inputs:    inputs,
			Dimension: p.embedDim,
		})
		if err != nil {
			return nil, info, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		if len(batch) != len(inputs) {
			return nil, info, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingUnavailable, len(batch), len(inputs))
		}
		info = batchInfo
		vectors = append(vectors, batch...)
	}
	return vectors, info, nil
}

// Persist upserts embedded chunks into the named collection, creating it
// on first write.
func (p *Pipeline) Persist(ctx context.Context, collection string, chunks []models.Chunk, vectors [][]float32) error {
	if err := p.store.Upsert(ctx, collection, chunks, vectors); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return nil
}

// Run executes the full pipeline for one document.
func (p *Pipeline) Run(ctx context.Context, path, collection string) (models.IngestResult, error) {
	start := time.Now()
	source := filepath.Base(path)
	log := p.log.WithFields(logrus.Fields{"collection": collection, "source": source})

	text, err := LoadDocument(path)
	if err != nil {
		return models.IngestResult{Collection: collection, Source: source, Status: "failed"}, err
	}
	chunks := p.BuildChunks(collection, source, text)
	if len(chunks) == 0 {
		return models.IngestResult{Collection: collection, Source: source, Status: "failed"}, ErrEmptyDocument
	}
	vectors, embedInfo, err := p.EmbedChunks(ctx, chunks)
	if err != nil {
		return models.IngestResult{Collection: collection, Source: source, Status: "failed"}, err
	}
	if err := p.Persist(ctx, collection, chunks, vectors); err != nil {
		return models.IngestResult{Collection: collection, Source: source, Status: "failed"}, err
	}

	log.WithFields(logrus.Fields{
		"chunks":   len(chunks),
		"provider": embedInfo.Name,
		"duration": time.Since(start),
	}).Info("document ingested")
	return models.IngestResult{
		Collection: collection,
		Source:     source,
		Chunks:     len(chunks),
		Status:     "ingested",
	}, nil
}
