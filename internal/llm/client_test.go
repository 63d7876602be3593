package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if _, hasModel := req["model"]; hasModel {
			t.Error("model must be omitted unless explicitly set")
		}

		w.Write([]byte(`{"choices":[{"message":{"content":"  Thanks for visiting!  "}}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	text, err := client.Generate(context.Background(), "write a reply")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text != "Thanks for visiting!" {
		t.Errorf("expected trimmed content, got %q", text)
	}
}

func TestGenerate_ModelIncludedWhenSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["model"] != "test/model" {
			t.Errorf("expected model in request, got %v", req["model"])
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)
	client.SetModel("test/model")

	if _, err := client.Generate(context.Background(), "prompt"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	if _, err := client.Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("expected an error on non-200 response")
	}
}

func TestGenerate_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	if _, err := client.Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("expected an error on empty choices")
	}
}
