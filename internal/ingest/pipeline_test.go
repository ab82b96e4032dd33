package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docchat/internal/providers"
	"docchat/internal/store"

	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunIngestsTextDocument(t *testing.T) {
	st := store.NewMemory()
	p := NewPipeline(providers.NewMockProvider(16), st, 50, 5, 16)

	path := writeDoc(t, "handbook.txt", strings.Repeat("Our office hours are 9am-5pm. ", 10))
	res, err := p.Run(context.Background(), path, "handbook")
	require.NoError(t, err)
	require.Equal(t, "ingested", res.Status)
	require.Equal(t, "handbook", res.Collection)
	require.Greater(t, res.Chunks, 1)

	n, err := st.Count(context.Background(), "handbook")
	require.NoError(t, err)
	require.Equal(t, res.Chunks, n)
}

func TestRunRejectsMissingFile(t *testing.T) {
	p := NewPipeline(providers.NewMockProvider(16), store.NewMemory(), 50, 5, 16)
	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), "c")
	require.ErrorIs(t, err, ErrLoadFailed)
}

func TestRunRejectsUnsupportedFormat(t *testing.T) {
	p := NewPipeline(providers.NewMockProvider(16), store.NewMemory(), 50, 5, 16)
	path := writeDoc(t, "doc.docx", "whatever")
	_, err := p.Run(context.Background(), path, "c")
	require.ErrorIs(t, err, ErrLoadFailed)
}

func TestRunRejectsEmptyDocument(t *testing.T) {
	p := NewPipeline(providers.NewMockProvider(16), store.NewMemory(), 50, 5, 16)
	path := writeDoc(t, "empty.txt", "  \x00 ")
	_, err := p.Run(context.Background(), path, "c")
	require.ErrorIs(t, err, ErrEmptyDocument)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	return nil, providers.ProviderInfo{}, errors.New("service temporarily unavailable")
}

func TestRunReportsEmbeddingFailure(t *testing.T) {
	p := NewPipeline(failingEmbedder{}, store.NewMemory(), 50, 5, 16)
	path := writeDoc(t, "doc.txt", "some content worth indexing")
	_, err := p.Run(context.Background(), path, "c")
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestBuildChunksDeterministicIDs(t *testing.T) {
	p := NewPipeline(providers.NewMockProvider(16), store.NewMemory(), 50, 5, 16)
	text := strings.Repeat("alpha beta gamma delta ", 20)
	a := p.BuildChunks("c", "doc.txt", text)
	b := p.BuildChunks("c", "doc.txt", text)
	require.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		require.NotEqual(t, a[0].ChunkID, a[i].ChunkID)
	}
}

func TestReingestDoesNotDuplicateInDurableStore(t *testing.T) {
	st, err := store.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	defer st.Close()
	p := NewPipeline(providers.NewMockProvider(16), st, 50, 5, 16)

	path := writeDoc(t, "doc.txt", strings.Repeat("stable content ", 30))
	first, err := p.Run(context.Background(), path, "c")
	require.NoError(t, err)
	second, err := p.Run(context.Background(), path, "c")
	require.NoError(t, err)
	require.Equal(t, first.Chunks, second.Chunks)

	n, err := st.Count(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, first.Chunks, n)
}
