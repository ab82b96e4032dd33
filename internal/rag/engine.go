package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/session"
	"docchat/internal/store"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	StrategyPlain      = "plain"
	StrategyMultiQuery = "multiquery"

	snippetLen = 200
)

// Embedder and Generator are the provider capabilities the engine
// consumes; the provider manager satisfies both.
type Embedder interface {
	Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error)
}

type Generator interface {
	Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error)
}

// Engine answers questions against a named collection: retrieve relevant
// chunks (optionally through multi-query expansion), render the grounded
// prompt with conversation history, call the model, and record the turn.
type Engine struct {
	embedder  Embedder
	generator Generator
	store     store.Store
	sessions  session.Store

	topK          int
	strategy      string
	expansions    int
	historyBudget int
	embedDim      int
	log           *logrus.Entry
}

func NewEngine(embedder Embedder, generator Generator, st store.Store, sessions session.Store, cfg config.Config) *Engine {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	strategy := strings.ToLower(cfg.RetrievalStrategy)
	if strategy != StrategyPlain && strategy != StrategyMultiQuery {
		strategy = StrategyPlain
	}
	expansions := cfg.MultiQueryCount
	if expansions <= 0 {
		expansions = 3
	}
	return &Engine{
		embedder:      embedder,
		generator:     generator,
		store:         st,
		sessions:      sessions,
		topK:          topK,
		strategy:      strategy,
		expansions:    expansions,
		historyBudget: cfg.HistoryBudget,
		embedDim:      cfg.EmbedDim,
		log:           logrus.WithField("component", "rag"),
	}
}

func (e *Engine) Answer(ctx context.Context, question, collection, sessionID string) (models.AnswerResult, error) {
	start := time.Now()
	log := e.log.WithFields(logrus.Fields{"collection": collection, "session": sessionID})

	queries := []string{question}
	if e.strategy == StrategyMultiQuery {
		if alts := e.expandQuestion(ctx, question); len(alts) > 0 {
			queries = append(queries, alts...)
		}
	}

	retrieved, err := e.retrieve(ctx, collection, queries)
	if err != nil {
		return models.AnswerResult{}, err
	}

	history, err := e.sessions.History(ctx, sessionID)
	if err != nil {
		return models.AnswerResult{}, fmt.Errorf("load session history: %w", err)
	}

	contexts := make([]string, 0, len(retrieved))
	citations := make([]models.Citation, 0, len(retrieved))
	for _, r := range retrieved {
		contexts = append(contexts, r.Text)
		citations = append(citations, models.Citation{
			ChunkID:    r.ChunkID,
			Source:     r.Source,
			ChunkIndex: r.ChunkIndex,
			Snippet:    snippet(r.Text),
			Score:      r.Score,
		})
	}

	prompt := renderAnswerPrompt(strings.Join(contexts, "\n\n"), renderHistory(history, e.historyBudget), question)
	resp, info, err := e.generator.Generate(ctx, providers.GenerateRequest{
		Operation: "chat_answer",
		Prompt:    prompt,
		Context:   contexts,
	})
	if err != nil {
		return models.AnswerResult{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	answer := strings.TrimSpace(resp.Text)

	if err := e.sessions.Append(ctx, sessionID, models.Turn{Question: question, Answer: answer, At: time.Now()}); err != nil {
		return models.AnswerResult{}, fmt.Errorf("append session turn: %w", err)
	}

	log.WithFields(logrus.Fields{
		"provider": info.Name,
		"chunks":   len(retrieved),
		"duration": time.Since(start),
	}).Info("question answered")

	return models.AnswerResult{
		Answer:     answer,
		Collection: collection,
		SessionID:  sessionID,
		Sources:    citations,
	}, nil
}

// expandQuestion asks the LLM for alternative phrasings. Expansion is
// best-effort: on failure the engine falls back to the plain question.
func (e *Engine) expandQuestion(ctx context.Context, question string) []string {
	resp, _, err := e.generator.Generate(ctx, providers.GenerateRequest{
		Operation: "expand_query",
		Prompt:    renderExpansionPrompt(e.expansions, question),
	})
	if err != nil {
		e.log.WithError(err).Warn("query expansion failed, using plain retrieval")
		return nil
	}
	alts := parseExpansions(resp.Text, e.expansions)
	out := alts[:0]
	for _, a := range alts {
		if !strings.EqualFold(a, question) {
			out = append(out, a)
		}
	}
	return out
}

// retrieve embeds all queries in one provider call, searches per query
// concurrently, and merges the results de-duplicated by chunk id keeping
// the best score.
func (e *Engine) retrieve(ctx context.Context, collection string, queries []string) ([]models.ScoredChunk, error) {
	vectors, _, err := e.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "query_embed",
		Inputs:    queries,
		Dimension: e.embedDim,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if len(vectors) != len(queries) {
		return nil, fmt.Errorf("%w: got %d vectors for %d queries", ErrModelUnavailable, len(vectors), len(queries))
	}

	perQuery := make([][]models.ScoredChunk, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i := range vectors {
		g.Go(func() error {
			res, err := e.store.Search(gctx, collection, vectors[i], e.topK)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			perQuery[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]models.ScoredChunk, 0, e.topK*len(perQuery))
	seen := make(map[string]int, e.topK*len(perQuery))
	for _, res := range perQuery {
		for _, r := range res {
			if at, ok := seen[r.ChunkID]; ok {
				if r.Score > merged[at].Score {
					merged[at].Score = r.Score
				}
				continue
			}
			seen[r.ChunkID] = len(merged)
			merged = append(merged, r)
		}
	}
	sortByScoreStable(merged)
	if len(merged) > e.topK {
		merged = merged[:e.topK]
	}
	return merged, nil
}

func sortByScoreStable(chunks []models.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLen {
		return text
	}
	return string(runes[:snippetLen]) + "..."
}
