package fssync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const perPage = 30

type fsClient struct {
	baseURL string
	auth    string
	http    *http.Client
	limiter <-chan time.Time
}

func newFsClient() (*fsClient, error) {
	domain := strings.TrimSpace(os.Getenv("FRESHSERVICE_DOMAIN"))
	if domain == "" {
		return nil, errors.New("freshservice domain is empty")
	}
	apiKey := strings.TrimSpace(os.Getenv("FRESHSERVICE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("freshservice api key is empty")
	}
	baseURL := domain
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("FRESHSERVICE_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &fsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":X")),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
	}, nil
}

// getPage fetches one page and unwraps the record list. Freshservice nests
// the list under an endpoint-specific key ("assets", "vendors", ...), so the
// first array-valued key is taken.
func (c *fsClient) getPage(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("freshservice api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	for _, raw := range parsed {
		var records []json.RawMessage
		if err := json.Unmarshal(raw, &records); err == nil && records != nil {
			return records, nil
		}
	}
	return nil, nil
}

// listAll walks the page parameter upward until an empty page comes back.
func (c *fsClient) listAll(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 1; ; page++ {
		pageParams := url.Values{}
		for key, values := range params {
			pageParams[key] = values
		}
		pageParams.Set("per_page", strconv.Itoa(perPage))
		pageParams.Set("page", strconv.Itoa(page))

		records, err := c.getPage(ctx, path, pageParams)
		if err != nil {
			return all, err
		}
		if len(records) == 0 {
			return all, nil
		}
		all = append(all, records...)
	}
}
