package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dataset-explorer/backend/internal/config"
)

// LLMProvider defines the interface for AI model integration
type LLMProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// NoResultsAnswer is returned when no record matched the query.
const NoResultsAnswer = "I couldn't find relevant information in the dataset for your query."

const fallbackContextChars = 200

// New builds the configured provider. It returns nil when no provider is
// configured, which callers treat as "answer without a model".
func New(cfg config.LLMConfig) (LLMProvider, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "ollama":
		p := NewOllamaProvider(cfg.BaseURL, cfg.Model)
		p.HTTPClient = client
		return p, nil
	case "openai":
		p := NewOpenAIProvider(cfg.BaseURL, cfg.Model, cfg.APIKey)
		p.HTTPClient = client
		return p, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// BuildAnalystPrompt asks for a formal answer grounded only in the records
// retrieved for the question.
func BuildAnalystPrompt(query, context string) string {
	if context == "" {
		context = "No matching records were retrieved."
	}

	return "You are an expert data analyst. Given the following records retrieved from a dataset, " +
		"answer the user's question in a formal, well-structured manner suitable for a professional report.\n\n" +
		"RECORDS:\n" + context + "\n\n" +
		"USER QUESTION:\n" + query + "\n\n" +
		"INSTRUCTIONS:\n" +
		"- Use only the information in the records to answer the question.\n" +
		"- If the records are insufficient, say so clearly and name the data that would be needed.\n" +
		"- Write complete sentences and avoid speculation.\n\n" +
		"RESPONSE:\n"
}

// BuildRewritePrompt asks the model to turn a question into search keywords.
func BuildRewritePrompt(question string) string {
	return "Convert the following user question into a concise search query or keywords suitable for " +
		"searching a dataset. Remove unnecessary words and keep the main topic and entities.\n\n" +
		"USER QUESTION:\n" + question + "\n\n" +
		"Output only the search query, nothing else.\n"
}

// RewriteQuery turns a question into search keywords. The question is
// returned unchanged when llm is nil, fails, or returns nothing usable.
func RewriteQuery(ctx context.Context, llm LLMProvider, question string) string {
	if llm == nil {
		return question
	}
	out, err := llm.Generate(ctx, BuildRewritePrompt(question))
	if err != nil {
		return question
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return question
	}
	return out
}

// FallbackAnswer summarizes the retrieved context without a model.
func FallbackAnswer(context string) string {
	return "Based on the dataset, here are the relevant findings: " + truncate(context, fallbackContextChars) + "..."
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError reports a non-200 reply from a model endpoint.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status: %d", e.Provider, e.StatusCode)
}
