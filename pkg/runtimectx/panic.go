package runtimectx

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	// Version is the current subtrans release.
	Version = "v0.1.0"
	// RepoURL is where crash reports should be filed.
	RepoURL = "https://github.com/lsilvatti/subtrans"
)

var (
	crashStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#8B0000")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)
)

// RecoverPanic is a top-level panic handler for the CLI entrypoint. Unlike
// an interactive TUI it never blocks on stdin: a translation run is a batch
// job and must fail loudly without waiting on a terminal that may not exist.
func RecoverPanic() {
	if r := recover(); r != nil {
		renderCrash(r)
		os.Exit(1)
	}
}

// SafeRun wraps fn with RecoverPanic.
func SafeRun(fn func()) {
	defer RecoverPanic()
	fn()
}

func renderCrash(panicValue any) {
	width := 80
	var b strings.Builder

	b.WriteString(strings.Repeat("=", width))
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("subtrans: run aborted by an unrecovered panic"))
	b.WriteString("\n\n")

	b.WriteString(errorStyle.Render("Error:"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%v", panicValue))
	b.WriteString("\n\n")

	stack := string(debug.Stack())
	lines := strings.Split(stack, "\n")
	b.WriteString(errorStyle.Render("Stack (first 10 lines):"))
	b.WriteString("\n")
	limit := 10
	if len(lines) < limit {
		limit = len(lines)
	}
	for i := 0; i < limit; i++ {
		b.WriteString("  " + lines[i] + "\n")
	}
	if len(lines) > limit {
		b.WriteString(fmt.Sprintf("  ... and %d more lines\n", len(lines)-limit))
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Please report this at %s/issues/new\n", RepoURL))
	b.WriteString(strings.Repeat("=", width))

	fmt.Fprintln(os.Stderr, crashStyle.Render(b.String()))
}
