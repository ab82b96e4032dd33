package rag

import (
	"fmt"
	"strings"

	"docchat/internal/models"
)

// DeclineMessage is the exact sentence the assistant is instructed to use
// for out-of-context questions. The guard is part of the prompt contract,
// not a code-level check.
const DeclineMessage = "I'm sorry, but I can only answer questions related to the provided context. Please provide more information or ask a related question."

const answerTemplate = `You are an AI assistant for a company that offers specialized services to its customers. Your goal is to provide accurate and concise answers based on the given context and chat history. Follow these guidelines:

1. Use the provided context and chat history to formulate your response.
2. Ensure your answer is clear, concise, and directly related to the provided context.
3. If the question is not relevant to the provided context, respond with: "` + DeclineMessage + `"

Context: %s
Chat History: %s
Question: %s
`

const expansionTemplate = `You are an AI language model assistant. Your task is to generate %d different versions of the given user question to retrieve relevant documents from a vector database. By generating multiple perspectives on the user question, your goal is to help the user overcome some of the limitations of distance-based similarity search. Provide these alternative questions separated by newlines.
Original question: %s`

func renderAnswerPrompt(contextText, history, question string) string {
	if contextText == "" {
		contextText = "(no relevant context found)"
	}
	if history == "" {
		history = "(no prior conversation)"
	}
	return fmt.Sprintf(answerTemplate, contextText, history, question)
}

func renderExpansionPrompt(n int, question string) string {
	return fmt.Sprintf(expansionTemplate, n, question)
}

// renderHistory renders prior turns oldest-first, dropping the oldest
// turns once the character budget is exceeded.
func renderHistory(turns []models.Turn, budget int) string {
	if len(turns) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(turns))
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		entry := "Human: " + turns[i].Question + "\nAI: " + turns[i].Answer
		if budget > 0 && used+len(entry) > budget && len(rendered) > 0 {
			break
		}
		rendered = append(rendered, entry)
		used += len(entry)
		if budget > 0 && used >= budget {
			break
		}
	}
	// collected newest-first; flip back to chronological order
	for i, j := 0, len(rendered)-1; i < j; i, j = i+1, j-1 {
		rendered[i], rendered[j] = rendered[j], rendered[i]
	}
	return strings.Join(rendered, "\n")
}

// parseExpansions extracts alternative queries from an LLM response, one
// per line, tolerating list markers and numbering.
func parseExpansions(text string, max int) []string {
	out := make([]string, 0, max)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}
