// Package ladder implements the ladder rescue engine: given a sequence
// of cues to translate in one of two stages (literal or polish), it
// guarantees exactly one result per input cue, descending a shrinking
// batch-size ladder and finally degrading to a pass-through rather than
// ever failing the caller.
package ladder

import (
	"context"
	"fmt"

	"github.com/lsilvatti/subtrans/internal/core/jsonsalvage"
	"github.com/lsilvatti/subtrans/internal/core/llm"
)

// ladderSizes is the descending chunk-size ladder from spec.md §4.6.
var ladderSizes = []int{8, 6, 4, 2, 1}

// ProtocolError reports that an LLM reply could not be salvaged into the
// shape a stage requires. It never aborts a run: the ladder engine logs
// it and retries at a smaller size or with context stripped, and the
// single-cue degraded fallback is the only place it becomes terminal.
type ProtocolError struct {
	Stage  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ladder: %s stage: %s", e.Stage, e.Reason)
}

// Item is one cue queued for a ladder stage.
type Item struct {
	ID       int
	Original string
}

// Stage is the small strategy interface the ladder engine drives; it is
// implemented once per translation stage (literal, polish).
type Stage interface {
	Name() string
	Temperature() float64
	RequiredField() string
	BuildMessages(chunk []Item, glossaryText, context string) []llm.Message
	// DegradedItem builds the single-cue pass-through result used when
	// every ladder size fails to recover a chunk of size 1.
	DegradedItem(item Item, literalMap map[int]string) map[string]any
	// Annotate attaches any stage-specific fields (e.g. polish's
	// "original") to validated results, using the originating chunk.
	Annotate(items []map[string]any, chunk []Item)
	// ContextUpdate folds newly produced items into the rolling context;
	// polish does this, literal is a no-op passthrough.
	ContextUpdate(items []map[string]any, ctx string) string
}

// Engine drives Stage implementations against a Transport.
type Engine struct {
	Transport *llm.Transport
	LogFunc   func(string)
}

func New(tr *llm.Transport) *Engine {
	return &Engine{Transport: tr}
}

func (e *Engine) log(format string, args ...any) {
	if e.LogFunc != nil {
		e.LogFunc(fmt.Sprintf(format, args...))
	}
}

// Run translates items through stage, returning exactly len(items)
// results in input order and the rolling context after the last
// successful (or degraded) chunk. literalMap supplies the polish
// stage's fallback text for degraded items; literal callers pass nil.
func (e *Engine) Run(ctx context.Context, stage Stage, items []Item, glossaryText, initialContext string, literalMap map[int]string) ([]map[string]any, string) {
	results := make([]map[string]any, 0, len(items))
	runningContext := initialContext
	if runningContext == "" {
		runningContext = "None"
	}

	i := 0
	for i < len(items) {
		remaining := len(items) - i
		success := false

		for _, size := range ladderSizes {
			if size > remaining {
				continue
			}
			chunk := items[i : i+size]

			if res, ok := e.attemptWithRetries(ctx, stage, chunk, glossaryText, runningContext, literalMap, 2); ok {
				results = append(results, res...)
				runningContext = stage.ContextUpdate(res, runningContext)
				i += size
				success = true
				break
			}

			if res, ok := e.attempt(ctx, stage, chunk, "{}", "None", literalMap); ok {
				results = append(results, res...)
				runningContext = stage.ContextUpdate(res, runningContext)
				i += size
				success = true
				break
			}
		}

		if success {
			continue
		}

		bad := items[i]
		e.log("ladder: cue %d unrecoverable, degrading to pass-through (%s stage)", bad.ID, stage.Name())
		degraded := stage.DegradedItem(bad, literalMap)
		results = append(results, degraded)
		runningContext = stage.ContextUpdate([]map[string]any{degraded}, runningContext)
		i++
	}

	return results, runningContext
}

func (e *Engine) attemptWithRetries(ctx context.Context, stage Stage, chunk []Item, glossaryText, context_ string, literalMap map[int]string, tries int) ([]map[string]any, bool) {
	for try := 0; try < tries; try++ {
		if res, ok := e.attempt(ctx, stage, chunk, glossaryText, context_, literalMap); ok {
			return res, true
		}
	}
	return nil, false
}

func (e *Engine) attempt(ctx context.Context, stage Stage, chunk []Item, glossaryText, context_ string, literalMap map[int]string) ([]map[string]any, bool) {
	messages := stage.BuildMessages(chunk, glossaryText, context_)
	raw, ok := e.Transport.Call(ctx, messages, stage.Temperature())
	if !ok || raw == "" {
		return nil, false
	}

	value := jsonsalvage.Salvage(raw)
	expected := make(map[int]bool, len(chunk))
	for _, item := range chunk {
		expected[item.ID] = true
	}

	items, err := validate(value, expected, stage.RequiredField())
	if err != nil {
		e.log("%s", (&ProtocolError{Stage: stage.Name(), Reason: err.Error()}).Error())
		return nil, false
	}

	stage.Annotate(items, chunk)
	return items, true
}

// validate implements the strict response validation from spec.md §4.6:
// a JSON list of exactly chunk length, every element id-parseable, the
// returned id set exactly equal to the expected set, and the stage's
// required field present.
func validate(value jsonsalvage.LLMValue, expectedIDs map[int]bool, requiredField string) ([]map[string]any, error) {
	if value.Kind != jsonsalvage.KindArray {
		return nil, fmt.Errorf("response is not a JSON list")
	}
	if len(value.Arr) != len(expectedIDs) {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", len(expectedIDs), len(value.Arr))
	}

	seen := make(map[int]bool, len(value.Arr))
	for _, item := range value.Arr {
		id, ok := intField(item, "id")
		if !ok {
			return nil, fmt.Errorf("element missing parseable id")
		}
		if _, present := item[requiredField]; !present {
			return nil, fmt.Errorf("element %d missing required field %q", id, requiredField)
		}
		seen[id] = true
	}

	if len(seen) != len(expectedIDs) {
		return nil, fmt.Errorf("id set mismatch")
	}
	for id := range expectedIDs {
		if !seen[id] {
			return nil, fmt.Errorf("id set mismatch: missing %d", id)
		}
	}

	return value.Arr, nil
}

func intField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		var n int
		if _, err := fmt.Sscanf(t, "%d", &n); err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
