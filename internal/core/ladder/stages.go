package ladder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lsilvatti/subtrans/internal/core/llm"
	"github.com/lsilvatti/subtrans/internal/core/prompt"
)

// LiteralStage is the first LLM pass: a faithful, possibly stilted
// per-cue translation. It carries no rolling context.
type LiteralStage struct {
	Templates   prompt.Templates
	Temperature_ float64
}

func (s LiteralStage) Name() string          { return "literal" }
func (s LiteralStage) Temperature() float64  { return s.Temperature_ }
func (s LiteralStage) RequiredField() string { return "trans" }

func (s LiteralStage) BuildMessages(chunk []Item, glossaryText, _ string) []llm.Message {
	type inputRow struct {
		ID   int    `json:"id"`
		Text string `json:"text"`
	}
	rows := make([]inputRow, len(chunk))
	for i, item := range chunk {
		rows[i] = inputRow{ID: item.ID, Text: item.Original}
	}
	jsonInput, _ := json.Marshal(rows)

	prompt := s.Templates.LiteralTrans(glossaryText, string(jsonInput))
	return []llm.Message{{Role: "system", Content: prompt}}
}

func (s LiteralStage) DegradedItem(item Item, _ map[int]string) map[string]any {
	return map[string]any{"id": item.ID, "trans": item.Original}
}

func (s LiteralStage) Annotate(items []map[string]any, _ []Item) {}

func (s LiteralStage) ContextUpdate(_ []map[string]any, ctx string) string { return ctx }

// PolishStage is the second LLM pass: rewrites literal output in context
// for fluency, threading a rolling "original -> polished" context.
type PolishStage struct {
	Templates    prompt.Templates
	Temperature_ float64
	LiteralMap   map[int]string
}

func (s PolishStage) Name() string          { return "polish" }
func (s PolishStage) Temperature() float64  { return s.Temperature_ }
func (s PolishStage) RequiredField() string { return "polished" }

func (s PolishStage) BuildMessages(chunk []Item, glossaryText, context string) []llm.Message {
	type inputRow struct {
		ID       int    `json:"id"`
		Original string `json:"original"`
		Literal  string `json:"literal"`
	}
	rows := make([]inputRow, len(chunk))
	for i, item := range chunk {
		lit := item.Original
		if s.LiteralMap != nil {
			if v, ok := s.LiteralMap[item.ID]; ok {
				lit = v
			}
		}
		rows[i] = inputRow{ID: item.ID, Original: item.Original, Literal: lit}
	}
	jsonInput, _ := json.Marshal(rows)

	prompt := s.Templates.ReviewAndPolish(glossaryText, string(jsonInput), context)
	return []llm.Message{{Role: "system", Content: prompt}}
}

func (s PolishStage) DegradedItem(item Item, literalMap map[int]string) map[string]any {
	fallback := item.Original
	if literalMap != nil {
		if v, ok := literalMap[item.ID]; ok && v != "" {
			fallback = v
		}
	}
	return map[string]any{"id": item.ID, "polished": fallback, "original": item.Original}
}

// Annotate attaches each item's original text, needed for rolling-context
// construction, by matching validated results back to their source chunk.
func (s PolishStage) Annotate(items []map[string]any, chunk []Item) {
	byID := make(map[int]string, len(chunk))
	for _, item := range chunk {
		byID[item.ID] = item.Original
	}
	for _, item := range items {
		id, ok := intField(item, "id")
		if !ok {
			continue
		}
		item["original"] = byID[id]
	}
}

// ContextUpdate appends "- original -> polished" lines for each item,
// matching spec.md §4.6's rolling-context format.
func (s PolishStage) ContextUpdate(items []map[string]any, ctx string) string {
	if len(items) == 0 {
		return ctx
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		original, _ := item["original"].(string)
		polished, _ := item["polished"].(string)
		lines = append(lines, fmt.Sprintf("- %s -> %s", original, polished))
	}
	joined := strings.Join(lines, "\n")
	if ctx == "" || ctx == "None" {
		return joined
	}
	return ctx + "\n" + joined
}
