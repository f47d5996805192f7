package progress

import (
	"log"

	tea "github.com/charmbracelet/bubbletea"
)

// Reporter is how a pipeline run surfaces progress without caring
// whether it's talking to a live terminal.
type Reporter interface {
	Log(level LogLevel, message string)
	Batch(batchIndex, totalBatches, cuesDone, totalCues int)
	Done(err error)
}

// TUIReporter drives a running bubbletea program. Program.Send is safe
// to call from any goroutine, which is what lets batch goroutines and
// the polish stage report concurrently.
type TUIReporter struct {
	program *tea.Program
}

func NewTUIReporter(program *tea.Program) *TUIReporter {
	return &TUIReporter{program: program}
}

func (r *TUIReporter) Log(level LogLevel, message string) {
	r.program.Send(LogMsg{Level: level, Message: message})
}

func (r *TUIReporter) Batch(batchIndex, totalBatches, cuesDone, totalCues int) {
	r.program.Send(BatchMsg{BatchIndex: batchIndex, TotalBatches: totalBatches, CuesDone: cuesDone, TotalCues: totalCues})
}

func (r *TUIReporter) Done(err error) {
	status := StatusComplete
	if err != nil {
		status = StatusFailed
	}
	r.program.Send(StatusMsg{Status: status, Err: err})
}

// PlainReporter logs to the standard logger, for runs where stdout
// isn't a terminal (piped output, CI, cron).
type PlainReporter struct{}

func NewPlainReporter() *PlainReporter { return &PlainReporter{} }

func (r *PlainReporter) Log(level LogLevel, message string) {
	log.Printf("%s %s", levelTag(level), message)
}

func (r *PlainReporter) Batch(batchIndex, totalBatches, cuesDone, totalCues int) {
	log.Printf("batch %d/%d (%d/%d cues)", batchIndex, totalBatches, cuesDone, totalCues)
}

func (r *PlainReporter) Done(err error) {
	if err != nil {
		log.Printf("run failed: %v", err)
		return
	}
	log.Printf("run complete")
}

func levelTag(level LogLevel) string {
	switch level {
	case LogWarn:
		return "[WARN]"
	case LogError:
		return "[ERR]"
	case LogSuccess:
		return "[OK]"
	default:
		return "[INFO]"
	}
}
