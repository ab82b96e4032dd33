package rag

import (
	"strings"
	"testing"

	"docchat/internal/models"

	"github.com/stretchr/testify/require"
)

func TestRenderAnswerPromptCarriesDeclineContract(t *testing.T) {
	p := renderAnswerPrompt("some context", "", "what?")
	require.Contains(t, p, DeclineMessage)
	require.Contains(t, p, "Context: some context")
	require.Contains(t, p, "Question: what?")
	require.Contains(t, p, "(no prior conversation)")
}

func TestRenderHistoryKeepsChronologicalOrder(t *testing.T) {
	turns := []models.Turn{
		{Question: "first", Answer: "one"},
		{Question: "second", Answer: "two"},
	}
	h := renderHistory(turns, 0)
	require.Less(t, strings.Index(h, "first"), strings.Index(h, "second"))
}

func TestRenderHistoryTruncatesOldestFirst(t *testing.T) {
	turns := []models.Turn{
		{Question: "ancient question", Answer: strings.Repeat("x", 100)},
		{Question: "old question", Answer: strings.Repeat("y", 100)},
		{Question: "recent question", Answer: "short"},
	}
	h := renderHistory(turns, 120)
	require.Contains(t, h, "recent question")
	require.NotContains(t, h, "ancient question")
}

func TestRenderHistoryEmpty(t *testing.T) {
	require.Equal(t, "", renderHistory(nil, 100))
}

func TestParseExpansions(t *testing.T) {
	text := "1. How do I reach support?\n\n- What are the support channels?\n2) Where can I get help?\nextra line beyond max"
	got := parseExpansions(text, 3)
	require.Equal(t, []string{
		"How do I reach support?",
		"What are the support channels?",
		"Where can I get help?",
	}, got)
}
