package fssync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *fsClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("FRESHSERVICE_DOMAIN", srv.URL)
	t.Setenv("FRESHSERVICE_API_KEY", "secret-key")
	t.Setenv("FRESHSERVICE_RATE_LIMIT_PER_MIN", "600000")

	client, err := newFsClient()
	if err != nil {
		t.Fatalf("newFsClient: %v", err)
	}
	return client
}

func TestListAllWalksPagesAndSendsBasicAuth(t *testing.T) {
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("secret-key:X"))
	pages := 0

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("Authorization = %q, want %q", got, wantAuth)
		}
		if got := r.URL.Query().Get("per_page"); got != "30" {
			t.Errorf("per_page = %q, want 30", got)
		}
		if got := r.URL.Query().Get("include"); got != "type_fields" {
			t.Errorf("include = %q, want type_fields", got)
		}
		pages++
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"assets": [{"display_id": 1}, {"display_id": 2}]}`)
		case "2":
			fmt.Fprint(w, `{"assets": [{"display_id": 3}]}`)
		default:
			fmt.Fprint(w, `{"assets": []}`)
		}
	}))

	params := url.Values{}
	params.Set("include", "type_fields")
	records, err := client.listAll(context.Background(), "/api/v2/assets", params)
	if err != nil {
		t.Fatalf("listAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if pages != 3 {
		t.Fatalf("expected 3 page fetches, got %d", pages)
	}
}

func TestGetPageUnwrapsEndpointKey(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total": 2, "vendors": [{"id": 7, "name": "Dell Inc"}, {"id": 9, "name": "Lenovo"}]}`)
	}))

	records, err := client.getPage(context.Background(), "/api/v2/vendors", nil)
	if err != nil {
		t.Fatalf("getPage: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	var vendor fsNamed
	if err := json.Unmarshal(records[0], &vendor); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if vendor.Name != "Dell Inc" {
		t.Fatalf("expected Dell Inc, got %q", vendor.Name)
	}
}

func TestApiErrorCarriesStatusAndBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limit exceeded")
	}))

	_, err := client.getPage(context.Background(), "/api/v2/assets", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	want := "freshservice api error 429: rate limit exceeded"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestClientConfigFromEnv(t *testing.T) {
	t.Setenv("FRESHSERVICE_DOMAIN", "")
	t.Setenv("FRESHSERVICE_API_KEY", "key")
	if _, err := newFsClient(); err == nil {
		t.Fatal("expected an error without a domain")
	}

	t.Setenv("FRESHSERVICE_DOMAIN", "example.freshservice.com")
	t.Setenv("FRESHSERVICE_API_KEY", "")
	if _, err := newFsClient(); err == nil {
		t.Fatal("expected an error without an api key")
	}

	t.Setenv("FRESHSERVICE_API_KEY", "key")
	client, err := newFsClient()
	if err != nil {
		t.Fatalf("newFsClient: %v", err)
	}
	if client.baseURL != "https://example.freshservice.com" {
		t.Fatalf("bare domains must gain the scheme, got %q", client.baseURL)
	}
}
