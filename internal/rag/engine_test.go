package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/session"
	"docchat/internal/store"

	"github.com/stretchr/testify/require"
)

// mapEmbedder returns hand-picked vectors per input so tests can steer
// which chunks a question retrieves.
type mapEmbedder struct {
	vectors map[string][]float32
	def     []float32
}

func (m mapEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	out := make([][]float32, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if v, ok := m.vectors[in]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, m.def)
	}
	return out, providers.ProviderInfo{Name: "map"}, nil
}

type scriptedGenerator struct {
	expansions string
	answer     string
	err        error
	prompts    []string
}

func (g *scriptedGenerator) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	info := providers.ProviderInfo{Name: "scripted"}
	if g.err != nil {
		return providers.GenerateResponse{}, info, g.err
	}
	if req.Operation == "expand_query" {
		return providers.GenerateResponse{Text: g.expansions}, info, nil
	}
	g.prompts = append(g.prompts, req.Prompt)
	return providers.GenerateResponse{Text: g.answer}, info, nil
}

func testConfig(strategy string) config.Config {
	return config.Config{
		TopK:              4,
		EmbedDim:          3,
		RetrievalStrategy: strategy,
		MultiQueryCount:   3,
		HistoryBudget:     4000,
	}
}

func seedChunks(t *testing.T, st store.Store, collection string) {
	t.Helper()
	chunks := []models.Chunk{
		{ChunkID: "c1", Collection: collection, Source: "faq.txt", ChunkIndex: 0, Text: "Refunds are processed within 14 days."},
		{ChunkID: "c2", Collection: collection, Source: "faq.txt", ChunkIndex: 1, Text: "Support is available on weekdays."},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}
	require.NoError(t, st.Upsert(context.Background(), collection, chunks, vectors))
}

func TestAnswerCitesRetrievedChunks(t *testing.T) {
	st := store.NewMemory()
	seedChunks(t, st, "faq")
	emb := mapEmbedder{
		vectors: map[string][]float32{"how long do refunds take?": {0.9, 0.1, 0}},
		def:     []float32{0, 0, 1},
	}
	gen := &scriptedGenerator{answer: "Refunds take up to 14 days."}
	e := NewEngine(emb, gen, st, session.NewMemoryStore(), testConfig(StrategyPlain))

	res, err := e.Answer(context.Background(), "how long do refunds take?", "faq", "s1")
	require.NoError(t, err)
	require.Equal(t, "Refunds take up to 14 days.", res.Answer)
	require.Equal(t, "faq", res.Collection)
	require.Equal(t, "s1", res.SessionID)
	require.NotEmpty(t, res.Sources)
	require.Equal(t, "c1", res.Sources[0].ChunkID)
	require.Equal(t, "faq.txt", res.Sources[0].Source)

	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "Refunds are processed within 14 days.")
	require.Contains(t, gen.prompts[0], "how long do refunds take?")
}

func TestAnswerUnknownCollectionDeclines(t *testing.T) {
	mock := providers.NewMockProvider(16)
	e := NewEngine(mock, mock, store.NewMemory(), session.NewMemoryStore(), testConfig(StrategyPlain))

	res, err := e.Answer(context.Background(), "what is the meaning of life?", "nonexistent", "s1")
	require.NoError(t, err)
	require.Equal(t, DeclineMessage, res.Answer)
	require.Empty(t, res.Sources)
}

func TestAnswerRecordsSessionTurn(t *testing.T) {
	st := store.NewMemory()
	seedChunks(t, st, "faq")
	emb := mapEmbedder{def: []float32{1, 0, 0}}
	gen := &scriptedGenerator{answer: "14 days."}
	sessions := session.NewMemoryStore()
	e := NewEngine(emb, gen, st, sessions, testConfig(StrategyPlain))

	_, err := e.Answer(context.Background(), "refund window?", "faq", "chat-42")
	require.NoError(t, err)

	turns, err := sessions.History(context.Background(), "chat-42")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "refund window?", turns[0].Question)
	require.Equal(t, "14 days.", turns[0].Answer)
}

func TestAnswerFeedsHistoryIntoPrompt(t *testing.T) {
	st := store.NewMemory()
	seedChunks(t, st, "faq")
	emb := mapEmbedder{def: []float32{1, 0, 0}}
	gen := &scriptedGenerator{answer: "ok"}
	sessions := session.NewMemoryStore()
	require.NoError(t, sessions.Append(context.Background(), "s1", models.Turn{Question: "earlier question", Answer: "earlier answer"}))
	e := NewEngine(emb, gen, st, sessions, testConfig(StrategyPlain))

	_, err := e.Answer(context.Background(), "follow-up?", "faq", "s1")
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "Human: earlier question")
	require.Contains(t, gen.prompts[0], "AI: earlier answer")
}

func TestAnswerModelFailure(t *testing.T) {
	st := store.NewMemory()
	seedChunks(t, st, "faq")
	emb := mapEmbedder{def: []float32{1, 0, 0}}
	gen := &scriptedGenerator{err: errors.New("quota exceeded")}
	e := NewEngine(emb, gen, st, session.NewMemoryStore(), testConfig(StrategyPlain))

	_, err := e.Answer(context.Background(), "q", "faq", "s1")
	require.ErrorIs(t, err, ErrModelUnavailable)
}

func TestMultiQueryMergeDeduplicates(t *testing.T) {
	st := store.NewMemory()
	seedChunks(t, st, "faq")
	// every query, original and expanded, lands on the same chunk
	emb := mapEmbedder{def: []float32{1, 0, 0}}
	gen := &scriptedGenerator{
		expansions: "alternative phrasing one\nalternative phrasing two\nalternative phrasing three",
		answer:     "merged",
	}
	e := NewEngine(emb, gen, st, session.NewMemoryStore(), testConfig(StrategyMultiQuery))

	res, err := e.Answer(context.Background(), "refunds?", "faq", "s1")
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, s := range res.Sources {
		require.False(t, seen[s.ChunkID], "chunk %s cited twice", s.ChunkID)
		seen[s.ChunkID] = true
	}
}

func TestMultiQueryExpansionFailureFallsBack(t *testing.T) {
	st := store.NewMemory()
	seedChunks(t, st, "faq")
	emb := mapEmbedder{def: []float32{1, 0, 0}}
	gen := &expansionFailingGenerator{answer: "plain retrieval still works"}
	e := NewEngine(emb, gen, st, session.NewMemoryStore(), testConfig(StrategyMultiQuery))

	res, err := e.Answer(context.Background(), "refunds?", "faq", "s1")
	require.NoError(t, err)
	require.Equal(t, "plain retrieval still works", res.Answer)
}

type expansionFailingGenerator struct {
	answer string
}

func (g *expansionFailingGenerator) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	info := providers.ProviderInfo{Name: "scripted"}
	if req.Operation == "expand_query" {
		return providers.GenerateResponse{}, info, errors.New("expansion model down")
	}
	return providers.GenerateResponse{Text: g.answer}, info, nil
}

func TestRetrieveRespectsTopK(t *testing.T) {
	st := store.NewMemory()
	chunks := make([]models.Chunk, 0, 10)
	vectors := make([][]float32, 0, 10)
	for i := 0; i < 10; i++ {
		chunks = append(chunks, models.Chunk{
			ChunkID:    strings.Repeat("a", i+1),
			Collection: "big",
			Source:     "big.txt",
			ChunkIndex: i,
			Text:       "chunk",
		})
		vectors = append(vectors, []float32{1, float32(i) / 10, 0})
	}
	require.NoError(t, st.Upsert(context.Background(), "big", chunks, vectors))

	emb := mapEmbedder{def: []float32{1, 0, 0}}
	gen := &scriptedGenerator{answer: "ok"}
	e := NewEngine(emb, gen, st, session.NewMemoryStore(), testConfig(StrategyPlain))

	res, err := e.Answer(context.Background(), "q", "big", "s1")
	require.NoError(t, err)
	require.Len(t, res.Sources, 4)
}
