package progress

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestLogBufferCircularEviction(t *testing.T) {
	lb := NewLogBuffer(2)
	lb.AddLine(LogInfo, "one")
	lb.AddLine(LogInfo, "two")
	lb.AddLine(LogInfo, "three")

	if lb.Count() != 2 {
		t.Fatalf("expected buffer capped at 2, got %d", lb.Count())
	}
	text := lb.GetRawText()
	if strings.Contains(text, "one") {
		t.Errorf("expected oldest entry evicted, got %q", text)
	}
	if !strings.Contains(text, "two") || !strings.Contains(text, "three") {
		t.Errorf("expected both recent entries present, got %q", text)
	}
}

func TestModelUpdateAppendsLogAndBatch(t *testing.T) {
	m := New("test.srt", 10, 5)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model := updated.(Model)

	updated, _ = model.Update(LogMsg{Level: LogSuccess, Message: "batch done"})
	model = updated.(Model)
	if model.logBuffer.Count() != 1 {
		t.Fatalf("expected 1 log line, got %d", model.logBuffer.Count())
	}

	updated, _ = model.Update(BatchMsg{BatchIndex: 2, TotalBatches: 5, CuesDone: 4, TotalCues: 10})
	model = updated.(Model)
	if model.batchIndex != 2 || model.cuesDone != 4 {
		t.Errorf("expected batch state updated, got index=%d cuesDone=%d", model.batchIndex, model.cuesDone)
	}

	view := model.View()
	if !strings.Contains(view, "BATCH 2/5") {
		t.Errorf("expected progress line in view, got %q", view)
	}
}

func TestViewRendersTooSmallWarning(t *testing.T) {
	m := New("test.srt", 10, 5)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	model := updated.(Model)

	view := model.View()
	if !strings.Contains(view, "TERMINAL TOO SMALL") {
		t.Errorf("expected too-small warning, got %q", view)
	}
}

func TestBatchMsgAnimatesProgressBar(t *testing.T) {
	m := New("test.srt", 10, 5)
	_, cmd := m.Update(BatchMsg{BatchIndex: 2, TotalBatches: 4, CuesDone: 4, TotalCues: 10})
	if cmd == nil {
		t.Fatal("expected a progress-bar animation command after a batch update")
	}
}
