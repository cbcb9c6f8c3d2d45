// Package llm talks to the chat model behind the research adapter.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/config"
)

const requestTimeout = 120 * time.Second

// Provider generates a completion for a single prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured(ctx context.Context) bool
}

// postJSON sends body to endpoint and decodes the JSON reply into out.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Ollama is a local Ollama model.
type Ollama struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllama creates an Ollama provider.
func NewOllama(model, baseURL string) *Ollama {
	return &Ollama{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (o *Ollama) Name() string { return "ollama/" + o.Model }

// IsConfigured checks that Ollama is running and has the model pulled.
func (o *Ollama) IsConfigured(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	base := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range tags.Models {
		if strings.Contains(m.Name, base) {
			return true
		}
	}
	log.Printf("Ollama model %q not found", o.Model)
	return false
}

func (o *Ollama) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model":    o.Model,
		"messages": []message{{Role: "user", Content: prompt}},
		"stream":   false,
		"format":   "json",
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": 0.1,
		},
	}
	var result struct {
		Message message `json:"message"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return result.Message.Content, nil
}

// OpenAI is the OpenAI chat completions API.
type OpenAI struct {
	Model    string
	APIKey   string
	Endpoint string
	client   *http.Client
}

// NewOpenAI creates an OpenAI provider reading its key from apiKeyEnv.
func NewOpenAI(model, apiKeyEnv string) *OpenAI {
	return &OpenAI{
		Model:    model,
		APIKey:   os.Getenv(apiKeyEnv),
		Endpoint: "https://api.openai.com/v1/chat/completions",
		client:   &http.Client{Timeout: requestTimeout},
	}
}

func (o *OpenAI) Name() string { return "openai/" + o.Model }

// IsConfigured checks that an API key is set.
func (o *OpenAI) IsConfigured(context.Context) bool {
	return o.APIKey != ""
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}
	body := map[string]any{
		"model":           o.Model,
		"messages":        []message{{Role: "user", Content: prompt}},
		"max_tokens":      maxTokens,
		"temperature":     0.1,
		"response_format": map[string]string{"type": "json_object"},
	}
	var result struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	if err := postJSON(ctx, o.client, o.Endpoint, headers, body, &result); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	return result.Choices[0].Message.Content, nil
}

// CreateProvider picks the configured provider, falling back from Ollama to
// OpenAI. It returns nil when neither is usable.
func CreateProvider(ctx context.Context, cfg config.LLM) Provider {
	if strings.ToLower(cfg.Provider) == "ollama" {
		p := NewOllama(cfg.Model, cfg.OllamaURL)
		if p.IsConfigured(ctx) {
			log.Printf("Using Ollama with model: %s", cfg.Model)
			return p
		}
		log.Println("Ollama not available, trying OpenAI fallback...")
	}

	p := NewOpenAI(cfg.OpenAIModel, cfg.APIKeyEnv)
	if p.IsConfigured(ctx) {
		log.Printf("Using OpenAI with model: %s", cfg.OpenAIModel)
		return p
	}

	log.Printf("No LLM provider available. Check Ollama is running or set %s.", cfg.APIKeyEnv)
	return nil
}
