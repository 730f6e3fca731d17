package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Classifier resolves one raw string to a canonical label for a domain.
// known carries the canonical labels already in use so the model reuses them
// instead of inventing near-duplicates.
type Classifier interface {
	Classify(ctx context.Context, domain Domain, raw string, known []string) (string, error)
}

// DisabledClassifier stands in when no classifier credentials are
// configured. Every call fails, so unseen strings degrade to unverified
// self-mappings instead of aborting the run.
type DisabledClassifier struct{}

func (DisabledClassifier) Classify(ctx context.Context, domain Domain, raw string, known []string) (string, error) {
	return "", errors.New("classifier is not configured")
}

// ChatClassifier calls an OpenAI-compatible chat-completions endpoint with a
// single-turn instruction per domain.
type ChatClassifier struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	limiter <-chan time.Time
}

type ClassifierOptions struct {
	BaseURL           string
	Model             string
	RequestsPerMinute int
	Timeout           time.Duration
}

// NewChatClassifier reads the API key from CLASSIFIER_API_KEY (falling back
// to OPENAI_API_KEY) and applies the configured endpoint and rate limit.
func NewChatClassifier(opts ClassifierOptions) (*ChatClassifier, error) {
	apiKey := strings.TrimSpace(os.Getenv("CLASSIFIER_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" {
		return nil, errors.New("classifier api key is empty")
	}

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o"
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ChatClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		limiter: time.Tick(time.Minute / time.Duration(rpm)),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *ChatClassifier) Classify(ctx context.Context, domain Domain, raw string, known []string) (string, error) {
	<-c.limiter

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierInstruction(domain, known)},
			{Role: "user", Content: raw},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("classifier api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("classifier returned no choices")
	}

	label := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if label == "" {
		return "", errors.New("classifier returned an empty label")
	}
	// Single-label contract: reject multi-line answers instead of guessing.
	if strings.ContainsAny(label, "\r\n") {
		return "", fmt.Errorf("classifier returned more than one line: %q", label)
	}
	return label, nil
}

func classifierInstruction(domain Domain, known []string) string {
	var subject string
	switch domain {
	case DomainVendor:
		subject = "vendor name"
	case DomainProduct:
		subject = "product name"
	case DomainAssetType:
		subject = "asset type"
	default:
		subject = "label"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You standardize raw %s strings from IT asset and purchase records.\n", subject)
	fmt.Fprintf(&b, "Map the given raw string to exactly one canonical %s.\n", subject)
	if len(known) > 0 {
		b.WriteString("Known canonical names: " + strings.Join(known, ", ") + ".\n")
		b.WriteString("Prefer a known name when the raw string is a variant of it; ")
	}
	b.WriteString("if none fits, reply with a new concise canonical name.\n")
	b.WriteString("Reply with the canonical name only, no explanation, one line.")
	return b.String()
}
