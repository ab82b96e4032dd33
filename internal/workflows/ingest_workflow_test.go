package workflows

import (
	"context"
	"errors"
	"testing"

	"docchat/internal/activities"
	"docchat/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newIngestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerActivityName(env, "LoadDocumentActivity", func(context.Context, activities.LoadDocumentInput) (activities.LoadDocumentOutput, error) {
		return activities.LoadDocumentOutput{}, nil
	})
	registerActivityName(env, "ChunkDocumentActivity", func(context.Context, activities.ChunkDocumentInput) (activities.ChunkDocumentOutput, error) {
		return activities.ChunkDocumentOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
	return env
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("LoadDocumentActivity", mock.Anything, activities.LoadDocumentInput{Path: "/tmp/handbook.pdf"}).
		Return(activities.LoadDocumentOutput{Text: "extracted text"}, nil)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkDocumentOutput{Chunks: []models.Chunk{
			{ChunkID: "c1", Collection: "handbook", Source: "handbook.pdf", ChunkIndex: 0, Text: "extracted text"},
		}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{Path: "/tmp/handbook.pdf", Collection: "handbook"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DocumentIngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ingested", out.Status)
	require.Equal(t, "handbook.pdf", out.Source)
	require.Equal(t, 1, out.Chunks)
}

func TestDocumentIngestWorkflowLoadFailureCompletes(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("LoadDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.LoadDocumentOutput{}, errors.New("document load failed: unsupported format \".docx\""))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{Path: "/tmp/x.docx", Collection: "c"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DocumentIngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out.Status)
	require.Contains(t, out.FailReason, "document load failed")
}

func TestDocumentIngestWorkflowEmbedFailureErrors(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("LoadDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.LoadDocumentOutput{Text: "text"}, nil)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkDocumentOutput{}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{}, errors.New("embedding provider unavailable: quota exceeded"))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{Path: "/tmp/doc.txt", Collection: "c"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
