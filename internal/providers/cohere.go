package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// CohereProvider talks to the Cohere v1 REST APIs when a key is configured.
type CohereProvider struct {
	keyName string
	apiKey  string
	client  *http.Client
}

func NewCohereProvider(keyName string) *CohereProvider {
	return &CohereProvider{
		keyName: keyName,
		apiKey:  resolveCohereKey(keyName),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *CohereProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	model := "embed-english-v3.0"
	info := ProviderInfo{Name: "cohere", Model: model, Key: c.keyName}
	if c.apiKey == "" {
		return nil, info, fmt.Errorf("cohere key missing for alias %q", c.keyName)
	}
	inputType := "search_document"
	if strings.Contains(strings.ToLower(req.Operation), "query") {
		inputType = "search_query"
	}
	payload, _ := json.Marshal(map[string]any{
		"model":      model,
		"texts":      req.Inputs,
		"input_type": inputType,
		"truncate":   "END",
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.cohere.com/v1/embed", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, info, fmt.Errorf("cohere embed request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, info, fmt.Errorf("cohere embed error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode cohere embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(req.Inputs) {
		return nil, info, fmt.Errorf("cohere returned %d embeddings for %d inputs", len(parsed.Embeddings), len(req.Inputs))
	}
	return parsed.Embeddings, info, nil
}

func (c *CohereProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := "command-r"
	info := ProviderInfo{Name: "cohere", Model: model, Key: c.keyName}
	if c.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("cohere key missing for alias %q", c.keyName)
	}
	message := req.Prompt
	if len(req.Context) > 0 {
		message = message + "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	payload, _ := json.Marshal(map[string]any{
		"model":   model,
		"message": message,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.cohere.com/v1/chat", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("cohere chat request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, fmt.Errorf("cohere chat error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode cohere chat response: %w", err)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return GenerateResponse{}, info, fmt.Errorf("cohere returned empty text")
	}
	return GenerateResponse{Text: parsed.Text}, info, nil
}

func resolveCohereKey(alias string) string {
	if alias != "" {
		if k := os.Getenv("DOCCHAT_COHERE_KEY_" + strings.ToUpper(alias)); k != "" {
			return k
		}
	}
	return os.Getenv("COHERE_API_KEY")
}
