package glossaryextract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lsilvatti/subtrans/internal/core/llm"
	"github.com/lsilvatti/subtrans/internal/core/prompt"
)

func TestPassCount(t *testing.T) {
	cases := []struct {
		cues int
		want int
	}{
		{0, 5},
		{1, 5},
		{100, 5},
		{101, 5},
		{499, 5},
		{500, 5},
		{501, 6},
		{1000, 10},
	}
	for _, c := range cases {
		if got := PassCount(c.cues); got != c.want {
			t.Errorf("PassCount(%d) = %d, want %d", c.cues, got, c.want)
		}
	}
}

func TestSamplePassesRoundRobin(t *testing.T) {
	cues := []Cue{{Content: "a"}, {Content: "b"}, {Content: "c"}, {Content: "d"}}
	parts := samplePasses(cues, 2)
	if len(parts) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(parts))
	}
	// pass 0 takes cues 0,2 -> "a\nc\n"; pass 1 takes cues 1,3 -> "b\nd\n"
	if parts[0][0] != "a\nc\n" {
		t.Errorf("unexpected pass 0 content: %q", parts[0][0])
	}
	if parts[1][0] != "b\nd\n" {
		t.Errorf("unexpected pass 1 content: %q", parts[1][0])
	}
}

func chatBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestExtractMergesLLMGlossary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatBody(`{"Ganondorf": "加侬多夫"}`))
	}))
	defer srv.Close()

	tr := llm.New(llm.Config{APIURL: srv.URL, ModelName: "m", MaxConcurrentRequests: 4, RPMLimit: 6000, MaxRetries: 1, RetryDelay: time.Millisecond})
	ex := New(tr, prompt.Load("en"), nil, 0.1)

	cues := make([]Cue, 600)
	for i := range cues {
		cues[i] = Cue{Content: "line"}
	}

	glossaryResult, err := ex.Extract(context.Background(), cues)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if glossaryResult["Ganondorf"] != "加侬多夫" {
		t.Errorf("expected discovered term present, got %+v", glossaryResult)
	}
}

func TestExtractHandlesEmptyCueSet(t *testing.T) {
	tr := llm.New(llm.Config{APIURL: "http://127.0.0.1:0", ModelName: "m"})
	ex := New(tr, prompt.Load("en"), nil, 0.1)

	result, err := ex.Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty glossary, got %+v", result)
	}
}
