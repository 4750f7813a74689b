package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/namescout/namescout/internal/models"
)

func TestClientCheckDomain(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, freeRunner)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	c := NewClient(ts.URL, 5*time.Second)
	resp, err := c.CheckDomain(context.Background(), "Example.COM")
	if err != nil {
		t.Fatalf("CheckDomain: %v", err)
	}
	if resp.Domain != "example.com" || resp.Status != models.DomainAvailable {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClientCheckDomainInvalid(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, freeRunner)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	c := NewClient(ts.URL, 5*time.Second)
	_, err := c.CheckDomain(context.Background(), "bad_.com")
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != models.CodeInvalidInput {
		t.Errorf("code = %s", apiErr.Code)
	}
}

func TestClientSuggest(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{domains: []string{"brewhaven.com"}}, freeRunner)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	c := NewClient(ts.URL, 10*time.Second)
	resp, err := c.Suggest(context.Background(), models.SuggestionRequest{Description: "coffee", Count: 1})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if resp.Total != 1 || resp.Available != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClientHealthDegraded(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	c := NewClient(ts.URL, 5*time.Second)
	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("degraded health must still decode: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
}
