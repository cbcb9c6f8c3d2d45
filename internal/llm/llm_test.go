package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseJSONObjectPlain(t *testing.T) {
	result, err := ParseJSONObject(`{"key": "value", "num": 42}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONObjectWithCodeFence(t *testing.T) {
	for _, text := range []string{
		"```json\n{\"key\": \"value\"}\n```",
		"```\n{\"key\": \"value\"}\n```",
	} {
		result, err := ParseJSONObject(text)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", text, err)
		}
		if result["key"] != "value" {
			t.Errorf("expected key='value', got %v", result["key"])
		}
	}
}

func TestParseJSONObjectEmbeddedInProse(t *testing.T) {
	result, err := ParseJSONObject("Here are the events:\n{\"events\": []}\nLet me know!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result["events"]; !ok {
		t.Errorf("expected events key, got %v", result)
	}
}

func TestParseJSONObjectRepairsTruncated(t *testing.T) {
	result, err := ParseJSONObject(`{"summary": "two events", "events": [{"title": "Jazz"`)
	if err != nil {
		t.Fatalf("expected truncated reply to be repaired, got %v", err)
	}
	if result["summary"] != "two events" {
		t.Errorf("unexpected summary %v", result["summary"])
	}
}

func TestParseJSONObjectInvalid(t *testing.T) {
	for _, text := range []string{"", "  \n ", "not json at all"} {
		if _, err := ParseJSONObject(text); err == nil {
			t.Errorf("expected error for %q", text)
		}
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"}]}`))
		case "/api/chat":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["model"] != "qwen2.5:7b" {
				t.Errorf("unexpected model %v", body["model"])
			}
			w.Write([]byte(`{"message":{"role":"assistant","content":"{\"events\":[]}"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOllama("qwen2.5:7b", srv.URL)
	if !p.IsConfigured(context.Background()) {
		t.Fatal("expected model to be found")
	}
	out, err := p.Generate(context.Background(), "hi", 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"events":[]}` {
		t.Errorf("unexpected content %q", out)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI("gpt-4o-mini", "EVENTFOLIO_TEST_UNSET_KEY")
	if p.IsConfigured(context.Background()) {
		t.Fatal("expected provider without key to be unconfigured")
	}
	p.APIKey = "secret"
	p.Endpoint = srv.URL
	out, err := p.Generate(context.Background(), "hi", 64)
	if err != nil || out != "ok" {
		t.Errorf("unexpected result %q %v", out, err)
	}
}

func TestGenerateReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewOllama("m", srv.URL).Generate(context.Background(), "hi", 10); err == nil {
		t.Error("expected error on 503")
	}
}
