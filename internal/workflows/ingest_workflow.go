package workflows

import (
	"path/filepath"
	"strings"
	"time"

	"docchat/internal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIngestProgress = "GetIngestProgress"

// DocumentIngestWorkflow runs load, chunk, embed and upsert as
// activities. Document-level failures (unreadable or empty files)
// complete the workflow with a failed status instead of erroring, so
// the caller gets a result either way.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (DocumentIngestResult, error) {
	source := input.Source
	if source == "" {
		source = filepath.Base(input.Path)
	}
	progress := IngestProgress{
		Collection: input.Collection,
		Source:     source,
		Status:     "processing",
		Steps:      map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestProgress, func() (IngestProgress, error) {
		return progress, nil
	}); err != nil {
		return DocumentIngestResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	fail := func(step, reason string) DocumentIngestResult {
		progress.Steps[step] = "failed"
		progress.Status = "failed"
		progress.FailReason = reason
		return DocumentIngestResult{
			Collection: input.Collection,
			Source:     source,
			Status:     "failed",
			FailReason: reason,
		}
	}

	progress.CurrentStep = "load_document"
	progress.Steps[progress.CurrentStep] = "processing"
	var loadOut activities.LoadDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "LoadDocumentActivity", activities.LoadDocumentInput{Path: input.Path}).Get(ctx, &loadOut); err != nil {
		if isDocumentError(err) {
			return fail(progress.CurrentStep, err.Error()), nil
		}
		return DocumentIngestResult{}, err
	}
	progress.Steps[progress.CurrentStep] = "done"

	progress.CurrentStep = "chunk_document"
	progress.Steps[progress.CurrentStep] = "processing"
	var chunkOut activities.ChunkDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkDocumentActivity", activities.ChunkDocumentInput{
		Collection: input.Collection,
		Source:     source,
		Text:       loadOut.Text,
	}).Get(ctx, &chunkOut); err != nil {
		if isDocumentError(err) {
			return fail(progress.CurrentStep, err.Error()), nil
		}
		return DocumentIngestResult{}, err
	}
	progress.Chunks = len(chunkOut.Chunks)
	progress.Steps[progress.CurrentStep] = "done"

	progress.CurrentStep = "embed_chunks"
	progress.Steps[progress.CurrentStep] = "processing"
	var embedOut activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{Chunks: chunkOut.Chunks}).Get(ctx, &embedOut); err != nil {
		return DocumentIngestResult{}, err
	}
	progress.Steps[progress.CurrentStep] = "done"

	progress.CurrentStep = "upsert_chunks"
	progress.Steps[progress.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{
		Collection: input.Collection,
		Chunks:     chunkOut.Chunks,
		Vectors:    embedOut.Vectors,
	}).Get(ctx, nil); err != nil {
		return DocumentIngestResult{}, err
	}
	progress.Steps[progress.CurrentStep] = "done"
	progress.CurrentStep = "done"
	progress.Status = "ingested"

	return DocumentIngestResult{
		Collection: input.Collection,
		Source:     source,
		Chunks:     len(chunkOut.Chunks),
		Status:     "ingested",
	}, nil
}

// isDocumentError recognizes terminal per-document failures surfaced
// through activity errors.
func isDocumentError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "document load failed") || strings.Contains(e, "document is empty")
}
