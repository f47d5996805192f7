package cue

import (
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	input := "1\n00:00:01,000 --> 00:00:02,500\nHello there.\n\n2\n00:00:03,000 --> 00:00:04,000\nSecond line.\n"

	cues, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].ID != 1 || cues[0].Timestamp != "00:00:01,000 --> 00:00:02,500" || cues[0].Text != "Hello there." {
		t.Errorf("unexpected first cue: %+v", cues[0])
	}
	if cues[1].ID != 2 || cues[1].Text != "Second line." {
		t.Errorf("unexpected second cue: %+v", cues[1])
	}
}

func TestParseStripsBOM(t *testing.T) {
	input := "﻿1\n00:00:01,000 --> 00:00:02,000\nHi.\n"

	cues, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if cues[0].ID != 1 {
		t.Errorf("BOM not stripped from id line: %+v", cues[0])
	}
}

func TestParseNormalizesLineEndings(t *testing.T) {
	input := "1\r\n00:00:01,000 --> 00:00:02,000\r\nHi.\r\n\r\n2\r00:00:03,000 --> 00:00:04,000\rBye.\r"

	cues, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
}

func TestParseSkipsMalformedBlocksWithoutFailing(t *testing.T) {
	input := "1\n00:00:01,000 --> 00:00:02,000\nGood cue.\n\n" +
		"garbage\nnot a timestamp\n\n" +
		"3\n00:00:05,000 --> 00:00:06,000\n\n" +
		"4\n00:00:07,000 --> 00:00:08,000\nAnother good cue.\n"

	cues, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse should not fail on malformed blocks: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 surviving cues, got %d: %+v", len(cues), cues)
	}
	if cues[0].Text != "Good cue." || cues[1].Text != "Another good cue." {
		t.Errorf("unexpected surviving cues: %+v", cues)
	}
}

func TestParseAssignsDistinctFallbackIDsForNonNumericIDLines(t *testing.T) {
	input := "header\n00:00:01,000 --> 00:00:02,000\nFirst.\n\n" +
		"also-header\n00:00:03,000 --> 00:00:04,000\nSecond.\n"

	cues, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d: %+v", len(cues), cues)
	}
	if cues[0].ID == cues[1].ID {
		t.Errorf("expected distinct fallback ids for non-numeric id lines, got %+v and %+v", cues[0], cues[1])
	}
}

func TestParseEmptyInputYieldsNoCuesNoError(t *testing.T) {
	cues, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse on empty input should not error, got %v", err)
	}
	if len(cues) != 0 {
		t.Fatalf("expected no cues, got %d", len(cues))
	}
}

func TestFormatRoundTrip(t *testing.T) {
	cues := []Cue{
		{ID: 1, Timestamp: "00:00:01,000 --> 00:00:02,000", Text: "Hello there."},
		{ID: 2, Timestamp: "00:00:03,000 --> 00:00:04,000", Text: "Line one.\nLine two."},
	}

	out := Format(cues)
	reparsed, err := Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("Parse(Format(cues)): %v", err)
	}
	if len(reparsed) != len(cues) {
		t.Fatalf("round trip lost cues: got %d want %d", len(reparsed), len(cues))
	}
	for i := range cues {
		if reparsed[i].Timestamp != cues[i].Timestamp || reparsed[i].Text != cues[i].Text {
			t.Errorf("round trip mismatch at %d: got %+v want text/timestamp of %+v", i, reparsed[i], cues[i])
		}
	}
}

func TestFormatBlockGrammar(t *testing.T) {
	block := FormatBlock(7, "00:00:01,000 --> 00:00:02,000", "text")
	if !strings.HasPrefix(block, "7\n00:00:01,000 --> 00:00:02,000\ntext\n") {
		t.Errorf("unexpected block grammar: %q", block)
	}
	if !strings.HasSuffix(block, "\n\n") {
		t.Errorf("block must end with blank-line separator: %q", block)
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("/nonexistent/path/does-not-exist.srt")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var pe *ParseError
	if !strings.Contains(err.Error(), "cue: parse") {
		t.Errorf("expected ParseError-shaped message, got %v", err)
	}
	_ = pe
}
