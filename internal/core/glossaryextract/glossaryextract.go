// Package glossaryextract discovers a bilingual term glossary from a
// transcript: a dynamic number of LLM sampling passes over the cue
// text, merged with whatever the curated/discovery glossary store
// already recognizes in the same text.
package glossaryextract

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lsilvatti/subtrans/internal/core/glossary"
	"github.com/lsilvatti/subtrans/internal/core/jsonsalvage"
	"github.com/lsilvatti/subtrans/internal/core/llm"
	"github.com/lsilvatti/subtrans/internal/core/prompt"
)

// maxSampleLen is the per-request character budget for sampled text,
// matching translation_pipeline.py's MAX_SAMPLE_LEN.
const maxSampleLen = 4000

// Cue is the minimal shape Extract needs from a parsed subtitle cue.
type Cue struct {
	Content string
}

// Extractor discovers an LLM-proposed glossary and merges it with the
// historical glossary store.
type Extractor struct {
	Transport *llm.Transport
	Templates prompt.Templates
	Store     *glossary.Store
	Temp      float64
	LogFunc   func(string)
}

func New(tr *llm.Transport, templates prompt.Templates, store *glossary.Store, temp float64) *Extractor {
	return &Extractor{Transport: tr, Templates: templates, Store: store, Temp: temp}
}

func (e *Extractor) log(msg string) {
	if e.LogFunc != nil {
		e.LogFunc(msg)
	}
}

// PassCount implements the dynamic step-count formula from
// translation_pipeline.py: at least 5 passes, scaling up for every 100
// cues so large transcripts get proportionally wider sampling.
func PassCount(numCues int) int {
	passes := (numCues + 99) / 100
	if passes < 5 {
		passes = 5
	}
	return passes
}

// samplePasses builds num_passes round-robin samples over cues (pass
// idx takes cues idx, idx+numPasses, idx+2*numPasses, ...) and splits
// each sample into maxSampleLen-character parts.
func samplePasses(cues []Cue, numPasses int) [][]string {
	parts := make([][]string, 0, numPasses)
	for pass := 0; pass < numPasses; pass++ {
		var sampled string
		for i := pass; i < len(cues); i += numPasses {
			sampled += cues[i].Content + "\n"
		}
		if sampled == "" {
			continue
		}
		runes := []rune(sampled)
		var passParts []string
		for i := 0; i < len(runes); i += maxSampleLen {
			end := i + maxSampleLen
			if end > len(runes) {
				end = len(runes)
			}
			passParts = append(passParts, string(runes[i:end]))
		}
		parts = append(parts, passParts)
	}
	return parts
}

// Extract runs the LLM term-sampling passes concurrently, merges the
// result with the historical glossary (historical entries win over
// freshly discovered ones, matching extract_global_terms's
// `{**all_llm_glossary, **historical_glossary}` precedence), persists
// the newly discovered terms, and returns the final merged glossary.
func (e *Extractor) Extract(ctx context.Context, cues []Cue) (map[string]string, error) {
	numPasses := PassCount(len(cues))
	e.log(formatPassBanner(numPasses))

	var textParts []string
	for _, passParts := range samplePasses(cues, numPasses) {
		textParts = append(textParts, passParts...)
	}

	llmGlossary := make(map[string]string)
	if len(textParts) > 0 {
		llmGlossary = e.dispatchExtraction(ctx, textParts)
	}

	var fullText string
	for _, c := range cues {
		fullText += c.Content + "\n"
	}
	historical := map[string]string{}
	if e.Store != nil {
		historical = e.Store.ExtractTerms(fullText)
	}

	final := make(map[string]string, len(llmGlossary)+len(historical))
	for k, v := range llmGlossary {
		final[k] = v
	}
	for k, v := range historical {
		final[k] = v
	}

	if len(llmGlossary) > 0 && e.Store != nil {
		if err := e.Store.SaveTerms(llmGlossary, "LLM_Discovered"); err != nil {
			e.log("glossaryextract: failed to persist discovered terms: " + err.Error())
		}
	}

	return final, nil
}

// dispatchExtraction fans the per-part term-extraction calls out across
// an errgroup, bounded implicitly by the Transport's own semaphore, and
// merges results last-write-wins in completion order — matching the
// Python's sequential dict.update over gathered results, which has no
// stronger ordering guarantee either.
func (e *Extractor) dispatchExtraction(ctx context.Context, parts []string) map[string]string {
	results := make(chan map[string]string, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		part := part
		g.Go(func() error {
			messages := []llm.Message{{Role: "system", Content: e.Templates.TermExtract(part)}}
			raw, ok := e.Transport.Call(gctx, messages, e.Temp)
			if !ok || raw == "" {
				results <- nil
				return nil
			}
			value := jsonsalvage.Salvage(raw)
			if value.Kind != jsonsalvage.KindObject {
				results <- nil
				return nil
			}
			results <- value.Obj
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	merged := make(map[string]string)
	for partial := range results {
		for k, v := range partial {
			merged[k] = v
		}
	}
	return merged
}

func formatPassBanner(numPasses int) string {
	return fmt.Sprintf("glossaryextract: building glossary over %d sampling pass(es)", numPasses)
}
