// Package pipeline orchestrates a full translation run: task glossary
// construction, resumable batch processing through the literal then
// polish stages, prefetch pipelining of the literal stage, and
// checkpointed output writing.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lsilvatti/subtrans/internal/core/cue"
	"github.com/lsilvatti/subtrans/internal/core/glossary"
	"github.com/lsilvatti/subtrans/internal/core/glossaryextract"
	"github.com/lsilvatti/subtrans/internal/core/ladder"
	"github.com/lsilvatti/subtrans/internal/core/llm"
	"github.com/lsilvatti/subtrans/internal/core/prompt"
)

// RunProgress is the resumable state persisted alongside the output
// file: which cues have already been written and the rolling polish
// context to resume with.
type RunProgress struct {
	LastIndex        int          `json:"last_index"`
	ProcessedIndices map[int]bool `json:"-"`
	OutputBlockIndex int          `json:"output_block_index"`
	LastContext      string       `json:"last_context"`
}

type progressFile struct {
	LastIndex        int    `json:"last_index"`
	ProcessedIndices []int  `json:"processed_indices"`
	OutputBlockIndex int    `json:"output_block_index"`
	LastContext      string `json:"last_context"`
}

// LiteralMap is the per-batch mapping from cue id to its literal
// translation, produced by the literal stage and consumed by polish.
type LiteralMap map[int]string

// PolishItem is one fully processed cue, ready for checkpointed output.
type PolishItem struct {
	ID        int
	Timestamp string
	Original  string
	Polished  string
}

// Config parameterizes one Run.
type Config struct {
	BatchSize      int
	PrefetchWindow int
	Bilingual      bool
	TargetLang     string
	TempTerms      float64
	TempLiteral    float64
	TempPolish     float64

	OutputPath         string
	ProgressPath       string
	TaskGlossaryPath   string
	EnableLLMDiscovery bool
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 8
	}
	if c.PrefetchWindow <= 0 {
		c.PrefetchWindow = 3
	}
}

// Orchestrator drives one translation run end to end.
type Orchestrator struct {
	Transport        *llm.Transport
	Store            *glossary.Store
	Config           Config
	LogCallback      func(string)
	ProgressCallback func(current, total int)
}

func New(tr *llm.Transport, store *glossary.Store, cfg Config) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{Transport: tr, Store: store, Config: cfg}
}

func (o *Orchestrator) log(format string, args ...any) {
	if o.LogCallback != nil {
		o.LogCallback(fmt.Sprintf(format, args...))
	}
}

func (o *Orchestrator) progress(current, total int) {
	if o.ProgressCallback != nil {
		o.ProgressCallback(current, total)
	}
}

// Run executes the full pipeline over cues: task-glossary load/build,
// progress resume, batch partitioning, pipelined translation, and
// checkpointed output.
func (o *Orchestrator) Run(ctx context.Context, cues []cue.Cue) error {
	taskGlossary, err := o.loadOrBuildTaskGlossary(ctx, cues)
	if err != nil {
		return fmt.Errorf("pipeline: task glossary: %w", err)
	}

	prog := o.loadProgress()
	remaining := filterUnprocessed(cues, prog.ProcessedIndices)
	if len(remaining) == 0 {
		o.log("pipeline: all cues already processed")
		return nil
	}

	if len(prog.ProcessedIndices) == 0 {
		if err := cue.Truncate(o.Config.OutputPath); err != nil {
			return fmt.Errorf("pipeline: truncate output: %w", err)
		}
		prog.OutputBlockIndex = 1
	}

	templates := prompt.Load(o.Config.TargetLang)
	batches := batchCues(remaining, o.Config.BatchSize)
	totalBatches := len(batches)
	o.log("pipeline: %d batch(es) remaining", totalBatches)

	literalFutures := make(map[int]chan literalResult)
	launchLiteral := func(idx int) {
		if _, exists := literalFutures[idx]; exists {
			return
		}
		ch := make(chan literalResult, 1)
		literalFutures[idx] = ch
		go func(batch []cue.Cue) {
			literalMap, glossaryText := o.runLiteralStage(ctx, templates, batch, taskGlossary)
			ch <- literalResult{literalMap: literalMap, glossaryText: glossaryText}
		}(batches[idx])
	}

	for i := range batches {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for j := i; j < i+o.Config.PrefetchWindow+1 && j < totalBatches; j++ {
			launchLiteral(j)
		}

		res := <-literalFutures[i]
		delete(literalFutures, i)

		finalBlocks := o.runPolishStage(ctx, templates, batches[i], res.literalMap, res.glossaryText, prog.LastContext)
		if len(finalBlocks) == 0 {
			o.log("pipeline: batch %d produced no output", i+1)
			continue
		}

		prog.LastContext = rollingContext(finalBlocks)
		if err := o.checkpoint(finalBlocks, &prog); err != nil {
			return fmt.Errorf("pipeline: checkpoint batch %d: %w", i+1, err)
		}

		o.progress(i+1, totalBatches)
		o.log("pipeline: batch %d/%d complete", i+1, totalBatches)
	}

	return nil
}

type literalResult struct {
	literalMap   LiteralMap
	glossaryText string
}

// filterRelevantGlossary restricts glossary to entries whose source
// term appears (case-insensitively) in text, matching
// translation_pipeline.py::filter_relevant_glossary.
func filterRelevantGlossary(text string, full map[string]string) map[string]string {
	lower := strings.ToLower(text)
	relevant := make(map[string]string)
	for src, tgt := range full {
		if strings.Contains(lower, strings.ToLower(src)) {
			relevant[src] = tgt
		}
	}
	return relevant
}

func (o *Orchestrator) runLiteralStage(ctx context.Context, templates prompt.Templates, batch []cue.Cue, taskGlossary map[string]string) (LiteralMap, string) {
	var batchText strings.Builder
	for i, c := range batch {
		if i > 0 {
			batchText.WriteByte(' ')
		}
		batchText.WriteString(c.Text)
	}
	relevant := filterRelevantGlossary(batchText.String(), taskGlossary)
	glossaryText, _ := json.Marshal(relevant)

	items := make([]ladder.Item, len(batch))
	for i, c := range batch {
		items[i] = ladder.Item{ID: c.ID, Original: c.Text}
	}

	stage := ladder.LiteralStage{Templates: templates, Temperature_: o.Config.TempLiteral}
	engine := ladder.Engine{Transport: o.Transport, LogFunc: o.LogCallback}
	results, _ := engine.Run(ctx, stage, items, string(glossaryText), "", nil)

	literalMap := make(LiteralMap, len(results))
	for _, r := range results {
		id, ok := intField(r, "id")
		if !ok {
			continue
		}
		trans, _ := r["trans"].(string)
		literalMap[id] = trans
	}
	return literalMap, string(glossaryText)
}

func (o *Orchestrator) runPolishStage(ctx context.Context, templates prompt.Templates, batch []cue.Cue, literalMap LiteralMap, glossaryText, previousContext string) []PolishItem {
	items := make([]ladder.Item, len(batch))
	for i, c := range batch {
		items[i] = ladder.Item{ID: c.ID, Original: c.Text}
	}

	stage := ladder.PolishStage{Templates: templates, Temperature_: o.Config.TempPolish, LiteralMap: literalMap}
	engine := ladder.Engine{Transport: o.Transport, LogFunc: o.LogCallback}
	results, _ := engine.Run(ctx, stage, items, glossaryText, previousContext, literalMap)

	byID := make(map[int]cue.Cue, len(batch))
	for _, c := range batch {
		byID[c.ID] = c
	}

	final := make([]PolishItem, 0, len(results))
	for _, r := range results {
		id, ok := intField(r, "id")
		if !ok {
			continue
		}
		polished, _ := r["polished"].(string)
		if polished == "" {
			polished = literalMap[id]
		}
		source := byID[id]
		if polished == "" {
			polished = source.Text
		}
		final = append(final, PolishItem{ID: id, Timestamp: source.Timestamp, Original: source.Text, Polished: polished})
	}
	return final
}

// rollingContext keeps the last 3 processed cues as "original ->
// polished" lines, matching the orchestrator-side truncation from
// translate_srt_llm.py::run_translation (the ladder engine's own
// ContextUpdate only accumulates; this function does the truncation).
func rollingContext(items []PolishItem) string {
	recent := items
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	lines := make([]string, len(recent))
	for i, it := range recent {
		lines[i] = fmt.Sprintf("- %s -> %s", it.Original, it.Polished)
	}
	return strings.Join(lines, "\n")
}

// checkpoint writes the batch's output blocks and persists progress
// via an atomic temp-sibling rename, so a crash mid-write never leaves
// a half-written progress file.
func (o *Orchestrator) checkpoint(items []PolishItem, prog *RunProgress) error {
	var b strings.Builder
	nextIndex := prog.OutputBlockIndex
	for _, it := range items {
		if o.Config.Bilingual {
			b.WriteString(cue.FormatBlock(nextIndex, it.Timestamp, it.Original))
			nextIndex++
			b.WriteString(cue.FormatBlock(nextIndex, it.Timestamp, it.Polished))
			nextIndex++
		} else {
			b.WriteString(cue.FormatBlock(nextIndex, it.Timestamp, it.Polished))
			nextIndex++
		}
	}

	if err := cue.AppendBlocks(o.Config.OutputPath, b.String()); err != nil {
		return err
	}

	prog.OutputBlockIndex = nextIndex
	prog.LastIndex = items[len(items)-1].ID
	if prog.ProcessedIndices == nil {
		prog.ProcessedIndices = make(map[int]bool)
	}
	for _, it := range items {
		prog.ProcessedIndices[it.ID] = true
	}

	return o.saveProgress(prog)
}

func (o *Orchestrator) saveProgress(prog *RunProgress) error {
	ids := make([]int, 0, len(prog.ProcessedIndices))
	for id := range prog.ProcessedIndices {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := progressFile{
		LastIndex:        prog.LastIndex,
		ProcessedIndices: ids,
		OutputBlockIndex: prog.OutputBlockIndex,
		LastContext:      prog.LastContext,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(o.Config.ProgressPath)
	tempPath := filepath.Join(dir, ".subtrans-progress-"+uuid.NewString()+".tmp")
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, o.Config.ProgressPath)
}

func (o *Orchestrator) loadProgress() RunProgress {
	data, err := os.ReadFile(o.Config.ProgressPath)
	if err != nil {
		return RunProgress{ProcessedIndices: make(map[int]bool), LastContext: "None"}
	}

	var pf progressFile
	if err := json.Unmarshal(data, &pf); err != nil {
		o.log("pipeline: progress file unreadable, starting fresh: %v", err)
		return RunProgress{ProcessedIndices: make(map[int]bool), LastContext: "None"}
	}

	processed := make(map[int]bool, len(pf.ProcessedIndices))
	for _, id := range pf.ProcessedIndices {
		processed[id] = true
	}
	ctx := pf.LastContext
	if ctx == "" {
		ctx = "None"
	}
	return RunProgress{
		LastIndex:        pf.LastIndex,
		ProcessedIndices: processed,
		OutputBlockIndex: pf.OutputBlockIndex,
		LastContext:      ctx,
	}
}

func filterUnprocessed(cues []cue.Cue, processed map[int]bool) []cue.Cue {
	out := make([]cue.Cue, 0, len(cues))
	for _, c := range cues {
		if !processed[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func batchCues(cues []cue.Cue, size int) [][]cue.Cue {
	var batches [][]cue.Cue
	for i := 0; i < len(cues); i += size {
		end := i + size
		if end > len(cues) {
			end = len(cues)
		}
		batches = append(batches, cues[i:end])
	}
	return batches
}

// loadOrBuildTaskGlossary loads the cached per-task glossary when
// present, otherwise runs glossary extraction and persists the result,
// matching run_translation's cache-file handling.
func (o *Orchestrator) loadOrBuildTaskGlossary(ctx context.Context, cues []cue.Cue) (map[string]string, error) {
	if data, err := os.ReadFile(o.Config.TaskGlossaryPath); err == nil {
		var cached map[string]string
		if err := json.Unmarshal(data, &cached); err == nil && len(cached) > 0 {
			o.log("pipeline: loaded cached task glossary (%d terms)", len(cached))
			return cached, nil
		}
	}

	o.log("pipeline: building task glossary from %d cue(s)", len(cues))
	templates := prompt.Load(o.Config.TargetLang)
	extractorCues := make([]glossaryextract.Cue, len(cues))
	for i, c := range cues {
		extractorCues[i] = glossaryextract.Cue{Content: c.Text}
	}

	extractor := glossaryextract.New(o.Transport, templates, o.Store, o.Config.TempTerms)
	extractor.LogFunc = o.LogCallback
	built, err := extractor.Extract(ctx, extractorCues)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(built, "", "  ")
	if err == nil {
		if writeErr := os.WriteFile(o.Config.TaskGlossaryPath, data, 0o644); writeErr != nil {
			o.log("pipeline: failed to cache task glossary: %v", writeErr)
		}
	}

	return built, nil
}

func intField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
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
