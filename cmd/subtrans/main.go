package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lsilvatti/subtrans/internal/config"
	"github.com/lsilvatti/subtrans/internal/core/cue"
	"github.com/lsilvatti/subtrans/internal/core/glossary"
	"github.com/lsilvatti/subtrans/internal/core/llm"
	"github.com/lsilvatti/subtrans/internal/core/pipeline"
	"github.com/lsilvatti/subtrans/internal/ui/progress"
	"github.com/lsilvatti/subtrans/pkg/runtimectx"
)

func main() {
	inputPath := flag.String("in", "", "path to the source .srt file (required)")
	outputPath := flag.String("out", "", "path to write the translated .srt file (defaults to <in>.translated.srt)")
	targetLang := flag.String("lang", "", "prompt language suffix: zh or en (overrides config)")
	apiURL := flag.String("api-url", "", "override the chat completions endpoint")
	apiKey := flag.String("api-key", "", "override the API key")
	model := flag.String("model", "", "override the model name")
	bilingual := flag.Bool("bilingual", false, "force bilingual (original + polished) output")
	plain := flag.Bool("plain", false, "force plain log output instead of the TUI")
	exportBundle := flag.String("export-bundle", "", "write a tar+gzip backup of the glossary store to this path and exit")
	importBundle := flag.String("import-bundle", "", "restore a glossary bundle written by -export-bundle and exit")
	flag.Parse()

	if *exportBundle != "" || *importBundle != "" {
		runtimectx.SafeRun(func() {
			runBundleCommand(*exportBundle, *importBundle)
		})
		return
	}

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "subtrans: -in is required")
		flag.Usage()
		os.Exit(2)
	}

	runtimectx.SafeRun(func() {
		run(*inputPath, *outputPath, *targetLang, *apiURL, *apiKey, *model, *bilingual, *plain)
	})
}

// runBundleCommand handles the -export-bundle/-import-bundle maintenance
// commands, bypassing the translation pipeline entirely.
func runBundleCommand(exportPath, importPath string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if importPath != "" {
		if err := glossary.ImportBundle(importPath, cfg.GlossaryDir); err != nil {
			fmt.Fprintf(os.Stderr, "subtrans: failed to import glossary bundle: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("subtrans: restored glossary bundle from %s into %s\n", importPath, cfg.GlossaryDir)
		return
	}

	store, err := glossary.New(cfg.GlossaryDir, cfg.GlossaryDBPath, cfg.LLMDiscoveryDBPath, glossary.WithDiscovery(cfg.EnableLLMDiscovery))
	if err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: failed to open glossary store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.ExportBundle(exportPath, cfg.GlossaryDBPath, cfg.LLMDiscoveryDBPath); err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: failed to export glossary bundle: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("subtrans: wrote glossary bundle to %s\n", exportPath)
}

func run(inputPath, outputPath, targetLang, apiURL, apiKey, model string, bilingualFlag, forcePlain bool) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if targetLang != "" {
		cfg.TargetLang = targetLang
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if model != "" {
		cfg.ModelName = model
	}
	if bilingualFlag {
		cfg.Bilingual = true
	}

	if outputPath == "" {
		outputPath = inputPath + ".translated.srt"
	}
	progressPath := outputPath + ".progress.json"
	taskGlossaryPath := outputPath + ".task_glossary.json"

	cues, err := cue.ParseFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: failed to parse %s: %v\n", inputPath, err)
		os.Exit(1)
	}
	if len(cues) == 0 {
		fmt.Fprintf(os.Stderr, "subtrans: %s contains no subtitle cues\n", inputPath)
		os.Exit(1)
	}

	store, err := glossary.New(cfg.GlossaryDir, cfg.GlossaryDBPath, cfg.LLMDiscoveryDBPath, glossary.WithDiscovery(cfg.EnableLLMDiscovery))
	if err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: failed to open glossary store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Initialize(func(string) {}); err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: failed to initialize glossary store: %v\n", err)
		os.Exit(1)
	}

	transport := llm.New(llm.Config{
		APIKey:                cfg.APIKey,
		APIURL:                cfg.APIURL,
		ModelName:             cfg.ModelName,
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		RPMLimit:              cfg.RPMLimit,
		MaxRetries:            cfg.MaxRetries,
		RetryDelay:            time.Duration(cfg.RetryDelay * float64(time.Second)),
	})

	orch := pipeline.New(transport, store, pipeline.Config{
		BatchSize:          cfg.BatchSize,
		PrefetchWindow:     cfg.PrefetchWindow,
		Bilingual:          cfg.Bilingual,
		TargetLang:         cfg.TargetLang,
		TempTerms:          cfg.TempTerms,
		TempLiteral:        cfg.TempLiteral,
		TempPolish:         cfg.TempPolish,
		OutputPath:         outputPath,
		ProgressPath:       progressPath,
		TaskGlossaryPath:   taskGlossaryPath,
		EnableLLMDiscovery: cfg.EnableLLMDiscovery,
	})

	totalBatches := (len(cues) + orch.Config.BatchSize - 1) / orch.Config.BatchSize

	if forcePlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		runPlain(orch, cues)
		return
	}
	runTUI(orch, cues, inputPath, len(cues), totalBatches)
}

// runPlain drives the pipeline with stdlib logging, for piped stdout,
// CI, or cron invocations where a TUI would just corrupt the output.
func runPlain(orch *pipeline.Orchestrator, cues []cue.Cue) {
	reporter := progress.NewPlainReporter()
	orch.LogCallback = func(msg string) { reporter.Log(progress.LogInfo, msg) }
	orch.ProgressCallback = func(current, total int) {
		reporter.Batch(current, total, current*orch.Config.BatchSize, len(cues))
	}

	err := orch.Run(context.Background(), cues)
	reporter.Done(err)
	if err != nil {
		os.Exit(1)
	}
}

// runTUI drives the pipeline on a background goroutine while a
// bubbletea program renders its progress, the way bakasub's dashboard
// wraps long-running jobs.
func runTUI(orch *pipeline.Orchestrator, cues []cue.Cue, jobName string, totalCues, totalBatches int) {
	model := progress.New(jobName, totalCues, totalBatches)
	program := tea.NewProgram(model, tea.WithAltScreen())
	reporter := progress.NewTUIReporter(program)

	orch.LogCallback = func(msg string) { reporter.Log(progress.LogInfo, msg) }
	orch.ProgressCallback = func(current, total int) {
		reporter.Batch(current, total, current*orch.Config.BatchSize, totalCues)
	}

	var runErr error
	go func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("pipeline: panic: %v", r)
				reporter.Done(runErr)
			}
		}()
		runErr = orch.Run(context.Background(), cues)
		reporter.Done(runErr)
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: tui error: %v\n", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
