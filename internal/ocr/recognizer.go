// Package ocr resolves an image into normalized plate text through an
// external recognition provider, with a low-confidence heuristic fallback
// over free text for when no provider is configured or nothing is found.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/plateworks/platespot/internal/plates"
)

// Recognizer extracts a plate from an image URL. An empty result means no
// plate was detected.
type Recognizer interface {
	RecognizePlate(ctx context.Context, imageURL string) (string, error)
}

// ClientConfig configures the external provider client.
type ClientConfig struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// Client calls a plate-reader HTTP API (token auth, upload_url POST, first
// candidate wins).
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs the provider client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("ocr: endpoint required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("ocr: api key required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, httpClient: httpClient}, nil
}

type recognizeRequest struct {
	UploadURL string `json:"upload_url"`
}

type recognizeResponse struct {
	Results []struct {
		Plate      string `json:"plate"`
		Candidates []struct {
			Plate string `json:"plate"`
		} `json:"candidates"`
	} `json:"results"`
}

// RecognizePlate submits the image URL and returns the first recognized
// plate, normalized with OCR confusion fixes applied.
func (c *Client) RecognizePlate(ctx context.Context, imageURL string) (string, error) {
	payload, err := json.Marshal(recognizeRequest{UploadURL: imageURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: provider call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ocr: provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ocr: malformed provider response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "", nil
	}
	candidate := parsed.Results[0].Plate
	if candidate == "" && len(parsed.Results[0].Candidates) > 0 {
		candidate = parsed.Results[0].Candidates[0].Plate
	}
	return FixConfusions(plates.Normalize(candidate)), nil
}

var plateTokenPattern = regexp.MustCompile(`[A-Za-z0-9-]{4,}`)

// ExtractFromText pulls the first plate-looking token out of free text.
// Tokens without a digit are skipped so ordinary words never pass as plates.
// This is a low-confidence fallback used when recognition yields nothing.
func ExtractFromText(text string) string {
	for _, token := range plateTokenPattern.FindAllString(text, -1) {
		normalized := plates.Normalize(token)
		if len(normalized) >= 4 && strings.ContainsAny(normalized, "0123456789") {
			return normalized
		}
	}
	return ""
}

var confusionReplacer = strings.NewReplacer("O", "0", "I", "1", "Z", "2")

// FixConfusions maps glyphs OCR engines routinely misread on plates.
func FixConfusions(plate string) string {
	return confusionReplacer.Replace(plate)
}
