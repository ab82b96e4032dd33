package providers

import (
	"context"
	"fmt"
	"strings"

	"docchat/internal/config"
)

type namedLLM struct {
	ref      ProviderRef
	provider LLMProvider
}

type namedEmbed struct {
	ref      ProviderRef
	provider EmbeddingProvider
}

// Manager owns the configured provider instances and the failover order
// across them. Providers are built once at startup and injected into the
// pipeline and answer engine; there is no package-level client state.
type Manager struct {
	llms   []namedLLM
	embeds []namedEmbed
	dim    int
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{dim: cfg.EmbedDim}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llms = append(m.llms, namedLLM{ref: ref, provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embeds = append(m.embeds, namedEmbed{ref: ref, provider: embed})
	}
	if len(m.llms) == 0 {
		m.llms = []namedLLM{{ref: ProviderRef{Raw: "mock", Name: "mock"}, provider: NewMockProvider(cfg.EmbedDim)}}
	}
	if len(m.embeds) == 0 {
		m.embeds = []namedEmbed{{ref: ProviderRef{Raw: "mock", Name: "mock"}, provider: NewMockProvider(cfg.EmbedDim)}}
	}
	return m, nil
}

// Embed tries each configured embedding provider in preferred order (real
// providers before mock) until one succeeds. Rate-limit and transient
// failures get one same-provider retry before failover moves on.
func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if req.Dimension <= 0 {
		req.Dimension = m.dim
	}
	var (
		info ProviderInfo
		err  error
	)
	for _, i := range preferredOrder(len(m.embeds), func(i int) string { return m.embeds[i].ref.Name }) {
		var vectors [][]float32
		vectors, info, err = m.embeds[i].provider.Embed(ctx, req)
		if err != nil && Retryable(err) {
			vectors, info, err = m.embeds[i].provider.Embed(ctx, req)
		}
		if err == nil && len(vectors) > 0 {
			return vectors, info, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no embedding providers configured")
	}
	return nil, info, err
}

// Generate tries each configured LLM provider in preferred order until one
// returns non-empty text. Rate-limit and transient failures get one
// same-provider retry before failover moves on.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var (
		resp GenerateResponse
		info ProviderInfo
		err  error
	)
	for _, i := range preferredOrder(len(m.llms), func(i int) string { return m.llms[i].ref.Name }) {
		resp, info, err = m.llms[i].provider.Generate(ctx, req)
		if err != nil && Retryable(err) {
			resp, info, err = m.llms[i].provider.Generate(ctx, req)
		}
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp, info, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no llm providers configured")
	}
	return GenerateResponse{}, info, err
}

func (m *Manager) EmbedCount() int { return len(m.embeds) }
func (m *Manager) LLMCount() int   { return len(m.llms) }

func preferredOrder(n int, nameAt func(i int) string) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if strings.ToLower(nameAt(i)) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if strings.ToLower(nameAt(i)) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "cohere":
		return NewCohereProvider(ref.KeyAlias), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
