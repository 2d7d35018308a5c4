package webhook

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIBatchClient fetches batch results from the OpenAI Batch and Files
// APIs and joins input and output listings by custom_id.
type OpenAIBatchClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAIBatchClient creates a batch client. baseURL defaults to the
// public API when empty.
func NewOpenAIBatchClient(baseURL, apiKey string, httpClient *http.Client) *OpenAIBatchClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIBatchClient{baseURL: baseURL, apiKey: apiKey, client: httpClient}
}

// batchObject is the subset of the Batch API response the adapter needs.
type batchObject struct {
	ID           string `json:"id"`
	Endpoint     string `json:"endpoint"`
	InputFileID  string `json:"input_file_id"`
	OutputFileID string `json:"output_file_id"`
}

// inputLine is one JSONL line of a batch input file.
type inputLine struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

// outputLine is one JSONL line of a batch output file.
type outputLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
}

// FetchBatchItems downloads the batch's input and output files and returns
// the joined request/response pairs.
func (c *OpenAIBatchClient) FetchBatchItems(ctx context.Context, batchID string) ([]BatchItem, error) {
	var batch batchObject
	if err := c.getJSON(ctx, "/v1/batches/"+batchID, &batch); err != nil {
		return nil, fmt.Errorf("failed to fetch batch %s: %w", batchID, err)
	}
	if batch.OutputFileID == "" {
		return nil, fmt.Errorf("batch %s has no output file", batchID)
	}

	inputs := map[string]inputLine{}
	if batch.InputFileID != "" {
		if err := c.eachLine(ctx, batch.InputFileID, func(line []byte) {
			var in inputLine
			if err := json.Unmarshal(line, &in); err == nil && in.CustomID != "" {
				inputs[in.CustomID] = in
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to read batch input file: %w", err)
		}
	}

	var items []BatchItem
	err := c.eachLine(ctx, batch.OutputFileID, func(line []byte) {
		var out outputLine
		if err := json.Unmarshal(line, &out); err != nil || out.CustomID == "" {
			return
		}
		item := BatchItem{
			CustomID:   out.CustomID,
			StatusCode: out.Response.StatusCode,
			Response:   rawToAny(out.Response.Body),
		}
		if in, ok := inputs[out.CustomID]; ok {
			item.Method = in.Method
			item.URL = c.baseURL + in.URL
			item.Request = rawToAny(in.Body)
		} else {
			item.Method = http.MethodPost
			item.URL = c.baseURL + batch.Endpoint
		}
		items = append(items, item)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read batch output file: %w", err)
	}
	return items, nil
}

func (c *OpenAIBatchClient) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(out)
}

// eachLine streams a Files API content download line by line.
func (c *OpenAIBatchClient) eachLine(ctx context.Context, fileID string, fn func([]byte)) error {
	resp, err := c.get(ctx, "/v1/files/"+fileID+"/content")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := scanner.Bytes(); len(line) > 0 {
			fn(line)
		}
	}
	return scanner.Err()
}

func (c *OpenAIBatchClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("openai returned status %d for %s", resp.StatusCode, path)
	}
	return resp, nil
}

func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
