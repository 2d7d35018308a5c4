// Package client provides a small chat client for OpenAI-compatible APIs,
// used by the demo CLI to exercise the observation pipeline end to end.
package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

// ChatMessage represents a message in the chat.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the chat API.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// Usage holds the token counts reported by the API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatResponse represents a response from the chat API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int          `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// streamChunk represents a chunked response in a stream.
type streamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int    `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// ChatOptions configures chat request parameters.
type ChatOptions struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	UseStreaming bool
	VerboseMode  bool
}

// ChatClient talks to an OpenAI-compatible chat API. The HTTPClient is
// normally one wrapped by the monitor, so every call here produces a record.
type ChatClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewChatClient creates a new chat client around the given HTTP client.
func NewChatClient(baseURL, apiKey string, httpClient *http.Client) *ChatClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ChatClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: httpClient,
	}
}

// SendChatRequest sends a chat request and returns the response.
func (c *ChatClient) SendChatRequest(messages []ChatMessage, options ChatOptions, rl *readline.Instance) (*ChatResponse, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	request := ChatRequest{
		Model:       options.Model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Stream:      options.UseStreaming,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if options.VerboseMode {
		fmt.Printf("Request: %s\n", string(jsonData))
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if options.UseStreaming {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close response body: %v\n", err)
		}
	}()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if options.UseStreaming {
		return c.handleStreamingResponse(resp, rl, options.VerboseMode)
	}
	return c.handleNonStreamingResponse(resp, options.VerboseMode)
}

// handleStreamingResponse accumulates SSE chunks into a final response.
func (c *ChatClient) handleStreamingResponse(resp *http.Response, rl *readline.Instance, verbose bool) (*ChatResponse, error) {
	scanner := bufio.NewScanner(resp.Body)
	var final *ChatResponse

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			if verbose {
				fmt.Printf("Failed to parse stream data: %v\n", err)
			}
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			printChunk(rl, choice.Delta.Content)
		}

		if final == nil {
			final = &ChatResponse{
				ID:      chunk.ID,
				Object:  chunk.Object,
				Created: chunk.Created,
				Model:   chunk.Model,
				Choices: []ChatChoice{{
					Index:   choice.Index,
					Message: ChatMessage{Role: "assistant"},
				}},
				Usage: chunk.Usage,
			}
		}
		final.Choices[0].Message.Content += choice.Delta.Content
		if choice.FinishReason != "" {
			final.Choices[0].FinishReason = choice.FinishReason
		}
	}
	printChunk(rl, "\n")

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream reading error: %w", err)
	}
	if final == nil {
		return nil, fmt.Errorf("no response received from stream")
	}
	return final, nil
}

func printChunk(rl *readline.Instance, s string) {
	if rl != nil && rl.Config.Stdout != nil {
		if _, err := rl.Config.Stdout.Write([]byte(s)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write streaming content: %v\n", err)
		}
		return
	}
	fmt.Print(s)
}

// handleNonStreamingResponse parses a buffered chat response.
func (c *ChatClient) handleNonStreamingResponse(resp *http.Response, verbose bool) (*ChatResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if verbose {
		fmt.Printf("Response: %s\n", string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &chatResp, nil
}
