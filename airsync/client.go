package airsync

import (
	"bytes"
	"context"
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

type airClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter <-chan time.Time
}

func newAirClient() (*airClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("AIRTABLE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("airtable api key is empty")
	}
	baseURL := strings.TrimSpace(os.Getenv("AIRTABLE_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.airtable.com/v0"
	}
	rateLimitPerMin := int64(240)
	if v := strings.TrimSpace(os.Getenv("AIRTABLE_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &airClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
	}, nil
}

type airRecord struct {
	ID          string                     `json:"id"`
	CreatedTime string                     `json:"createdTime"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

type airListResponse struct {
	Records []airRecord `json:"records"`
	Offset  string      `json:"offset"`
}

func (c *airClient) tableURL(baseId string, tableId string) string {
	return c.baseURL + "/" + url.PathEscape(baseId) + "/" + url.PathEscape(tableId)
}

func (c *airClient) do(ctx context.Context, method string, endpoint string, body interface{}, out interface{}) error {
	<-c.limiter
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("airtable api error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *airClient) getList(ctx context.Context, baseId string, tableId string, params url.Values) (airListResponse, error) {
	endpoint := c.tableURL(baseId, tableId)
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	var parsed airListResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &parsed); err != nil {
		return airListResponse{}, err
	}
	return parsed, nil
}

// listAll follows the offset cursor until the last page.
func (c *airClient) listAll(ctx context.Context, baseId string, tableId string, params url.Values) ([]airRecord, error) {
	var all []airRecord
	offset := ""
	for {
		pageParams := url.Values{}
		for key, values := range params {
			pageParams[key] = values
		}
		pageParams.Set("pageSize", "100")
		if offset != "" {
			pageParams.Set("offset", offset)
		}

		resp, err := c.getList(ctx, baseId, tableId, pageParams)
		if err != nil {
			return all, err
		}
		all = append(all, resp.Records...)
		if resp.Offset == "" {
			return all, nil
		}
		offset = resp.Offset
	}
}

// findByKey returns the first record whose key field equals value, nil when
// none match.
func (c *airClient) findByKey(ctx context.Context, baseId string, tableId string, keyField string, value string) (*airRecord, error) {
	params := url.Values{}
	params.Set("filterByFormula", fmt.Sprintf("{%s}='%s'", keyField, escapeFormulaValue(value)))
	params.Set("maxRecords", "1")

	resp, err := c.getList(ctx, baseId, tableId, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Records) == 0 {
		return nil, nil
	}
	return &resp.Records[0], nil
}

func (c *airClient) createRecord(ctx context.Context, baseId string, tableId string, fields map[string]interface{}) (string, error) {
	payload := map[string]interface{}{"fields": fields, "typecast": true}
	var created airRecord
	if err := c.do(ctx, http.MethodPost, c.tableURL(baseId, tableId), payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *airClient) updateRecord(ctx context.Context, baseId string, tableId string, recordId string, fields map[string]interface{}) error {
	payload := map[string]interface{}{"fields": fields, "typecast": true}
	endpoint := c.tableURL(baseId, tableId) + "/" + url.PathEscape(recordId)
	return c.do(ctx, http.MethodPatch, endpoint, payload, nil)
}

func escapeFormulaValue(value string) string {
	return strings.ReplaceAll(value, "'", "\\'")
}
