package provider

import (
	"context"
	"errors"
	"net/http"
)

type OllamaProvider struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api/generate"
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Model:   model,
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  p.Model,
		"prompt": prompt,
		"stream": false,
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := postJSON(ctx, p.HTTPClient, p.BaseURL, payload, nil, &result); err != nil {
		return "", tagStatus(err, p.Name())
	}
	return result.Response, nil
}

func tagStatus(err error, name string) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		statusErr.Provider = name
	}
	return err
}
