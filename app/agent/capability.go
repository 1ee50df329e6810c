package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"

	"compliance-rag/config"
	"compliance-rag/model"
)

// Capability is the external language model. Implementations must honour
// ctx cancellation.
type Capability interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewCapability builds the backend selected by cfg.LLMProvider.
func NewCapability(cfg *config.Config) (Capability, error) {
	switch cfg.LLMProvider {
	case "ollama":
		return &OllamaCapability{URL: cfg.LLMURL, Model: cfg.LLMModel, Client: http.DefaultClient}, nil
	case "tgi":
		return &TGICapability{URL: strings.TrimSuffix(cfg.TGIURL, "/") + "/generate", MaxNewTokens: 1024, Client: http.DefaultClient}, nil
	case "openai":
		client, err := model.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		m := cfg.LLMModel
		if m == "" || m == "llama3" {
			m = string(openai.ChatModelGPT4o)
		}
		return &OpenAICapability{client: client, model: m}, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Response string `json:"response"`
}

// OllamaCapability calls Ollama's /api/generate.
type OllamaCapability struct {
	URL    string
	Model  string
	Client *http.Client
}

func (o *OllamaCapability) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	body, err := postJSON(ctx, o.Client, o.URL, reqBody)
	if err != nil {
		return "", err
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil {
		return genResp.Response, nil
	}

	// Streamed answer: one JSON object per line.
	var out strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode ollama response: %w", err)
		}
		out.WriteString(chunk.Response)
	}
	return out.String(), nil
}

// TGICapability calls a text-generation-inference /generate endpoint.
type TGICapability struct {
	URL          string
	MaxNewTokens int
	Client       *http.Client
}

type tgiRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters tgiParameters `json:"parameters"`
}

type tgiParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens"`
	ReturnFullText bool `json:"return_full_text"`
}

type tgiResponse struct {
	GeneratedText string `json:"generated_text"`
}

func (g *TGICapability) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(tgiRequest{
		Inputs:     prompt,
		Parameters: tgiParameters{MaxNewTokens: g.MaxNewTokens},
	})
	if err != nil {
		return "", err
	}

	body, err := postJSON(ctx, g.Client, g.URL, reqBody)
	if err != nil {
		return "", err
	}

	var single tgiResponse
	if err := json.Unmarshal(body, &single); err == nil {
		return single.GeneratedText, nil
	}
	var list []tgiResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return "", fmt.Errorf("decode tgi response: %w", err)
	}
	if len(list) == 0 {
		return "", fmt.Errorf("tgi returned no generations")
	}
	return list[0].GeneratedText, nil
}

// OpenAICapability asks a chat completion model for a JSON object.
type OpenAICapability struct {
	client openai.Client
	model  string
}

func (o *OpenAICapability) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(o.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
