// Package cue parses and formats the time-coded subtitle block stream
// consumed and produced by the translation pipeline.
package cue

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Cue is one time-coded subtitle block: a numeric id, an opaque timestamp
// range, and the (possibly multi-line) text.
type Cue struct {
	ID        int
	Timestamp string
	Text      string
}

// ParseError wraps a failure to read or decode a cue stream.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("cue: parse %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("cue: parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const arrowToken = "-->"

// ParseFile opens path and parses it as a cue stream.
func ParseFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	cues, err := Parse(f)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return cues, nil
}

// Parse reads a cue stream from r. It strips a leading byte-order mark,
// normalizes line endings, splits on blank-line separators, and skips
// malformed blocks rather than failing the whole parse. Skipped blocks are
// dropped silently; Parse emits no warning for them.
//
// A block is kept only when it has at least two lines, either the first
// line is a decimal id or the second contains the arrow token, and the
// remaining lines join into non-empty text.
func Parse(r io.Reader) ([]Cue, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	text := string(raw)
	text = strings.TrimPrefix(text, "﻿")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var cues []Cue
	nextFallbackID := 1
	for _, block := range strings.Split(text, "\n\n") {
		c, ok := parseBlock(block)
		if !ok {
			continue
		}
		if c.ID == 0 {
			// Line 1 wasn't numeric but line 2 had the arrow token, so the
			// block is kept per spec; assign a synthetic id so it doesn't
			// collide with another such block or with a real id of 0.
			c.ID = nextFallbackID
		}
		nextFallbackID = c.ID + 1
		cues = append(cues, c)
	}
	return cues, nil
}

func parseBlock(block string) (Cue, bool) {
	block = strings.TrimSpace(block)
	if block == "" {
		return Cue{}, false
	}

	lines := strings.Split(block, "\n")
	if len(lines) < 2 {
		return Cue{}, false
	}

	idLine := strings.TrimSpace(lines[0])
	tsLine := strings.TrimSpace(lines[1])

	id, idErr := strconv.Atoi(idLine)
	hasArrow := strings.Contains(tsLine, arrowToken)
	if idErr != nil && !hasArrow {
		return Cue{}, false
	}
	if idErr != nil {
		id = 0
	}

	text := strings.TrimSpace(strings.Join(lines[2:], "\n"))
	if text == "" {
		return Cue{}, false
	}

	return Cue{ID: id, Timestamp: tsLine, Text: text}, true
}

// FormatBlock renders a single output block in the same grammar Parse
// accepts: id, timestamp line, text, blank-line terminator.
func FormatBlock(index int, timestamp, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n%s\n%s\n\n", index, timestamp, text)
	return b.String()
}

// Format renders cues as a complete cue stream, renumbering output blocks
// sequentially starting at 1. Use FormatBlock directly when block indices
// must be assigned out of band (e.g. bilingual doubling).
func Format(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		b.WriteString(FormatBlock(i+1, c.Timestamp, c.Text))
	}
	return b.String()
}

// AppendBlocks appends pre-formatted blocks to the file at path, creating it
// if necessary. It is the single writer the orchestrator uses to grow the
// output file one batch at a time.
func AppendBlocks(path string, blocks string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(blocks); err != nil {
		return err
	}
	return w.Flush()
}

// Truncate empties (or creates) the output file at path. Called once, when
// a run starts from scratch with no previously processed cues.
func Truncate(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
