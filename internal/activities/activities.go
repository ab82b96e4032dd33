package activities

import (
	"context"
	"errors"

	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/providers"
	"docchat/internal/store"
)

// Activities wrap the ingest pipeline stages so the durable workflow
// path runs the exact same code as in-process ingestion.
type Activities struct {
	cfg      config.Config
	pipeline *ingest.Pipeline
	store    store.Store
}

func New(cfg config.Config, st store.Store) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:      cfg,
		pipeline: ingest.NewPipeline(pm, st, cfg.ChunkSize, cfg.ChunkOverlap, cfg.EmbedDim),
		store:    st,
	}, nil
}

func (a *Activities) LoadDocumentActivity(ctx context.Context, in LoadDocumentInput) (LoadDocumentOutput, error) {
	_ = ctx
	text, err := ingest.LoadDocument(in.Path)
	if err != nil {
		return LoadDocumentOutput{}, err
	}
	return LoadDocumentOutput{Text: text}, nil
}

func (a *Activities) ChunkDocumentActivity(ctx context.Context, in ChunkDocumentInput) (ChunkDocumentOutput, error) {
	_ = ctx
	chunks := a.pipeline.BuildChunks(in.Collection, in.Source, in.Text)
	if len(chunks) == 0 {
		return ChunkDocumentOutput{}, ingest.ErrEmptyDocument
	}
	return ChunkDocumentOutput{Chunks: chunks}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	vectors, info, err := a.pipeline.EmbedChunks(ctx, in.Chunks)
	if err != nil {
		return EmbedChunksOutput{}, err
	}
	return EmbedChunksOutput{Vectors: vectors, ProviderName: info.Name, Model: info.Model}, nil
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) error {
	if len(in.Chunks) != len(in.Vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	return a.pipeline.Persist(ctx, in.Collection, in.Chunks, in.Vectors)
}

func (a *Activities) DeleteCollectionActivity(ctx context.Context, in DeleteCollectionInput) (DeleteCollectionOutput, error) {
	existed, err := a.store.Delete(ctx, in.Collection)
	if err != nil {
		return DeleteCollectionOutput{}, err
	}
	return DeleteCollectionOutput{Existed: existed}, nil
}
