package render

import (
	"bytes"
	"strings"
	"testing"

	"voxcanvas/internal/protocol"
	"voxcanvas/internal/session"
)

func liveSnapshot() session.Snapshot {
	return session.Snapshot{
		Display: session.Display{
			Image:   "https://img/1.png",
			Caption: "why is the sky blue?",
			IsLive:  true,
		},
		Status:     "Dreaming about: tides...",
		Connection: session.StateOpen,
		Generating: true,
		HistoryLen: 2,
		Metrics: &protocol.MetricsSnapshot{
			Latency: map[string]float64{"image": 6.2, "question": 1.1},
			Cost:    protocol.Cost{Total: 0.0312},
		},
	}
}

func TestFrame_Live(t *testing.T) {
	out := Frame(NewStyles(DefaultTheme), liveSnapshot(), 80, false)
	for _, want := range []string{"LIVE", "https://img/1.png", "why is the sky blue?", "connected", "Dreaming about: tides", "2 in history", "$0.0312", "image 6.2s"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected frame to contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Transcript") {
		t.Error("debug sections must be hidden by default")
	}
}

func TestFrame_History(t *testing.T) {
	snap := liveSnapshot()
	snap.Display = session.Display{Image: "u0", Caption: "q0", PositionLabel: "1 of 2"}
	snap.Connection = session.StateClosed
	out := Frame(NewStyles(DefaultTheme), snap, 80, false)
	if !strings.Contains(out, "HISTORY 1 of 2") || !strings.Contains(out, "disconnected") {
		t.Errorf("unexpected history frame:\n%s", out)
	}
}

func TestFrame_Debug(t *testing.T) {
	snap := liveSnapshot()
	snap.Debug = []string{"the sky is"}
	snap.Questions = []string{"why is the sky blue?"}
	snap.ProtocolErrors = 3
	out := Frame(NewStyles(DefaultTheme), snap, 80, true)
	for _, want := range []string{"Transcript", "the sky is", "Questions", "3 malformed messages dropped"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected debug frame to contain %q:\n%s", want, out)
		}
	}
}

func TestFrame_Empty(t *testing.T) {
	out := Frame(NewStyles(DefaultTheme), session.Snapshot{Display: session.Display{IsLive: true}}, 10, false)
	if !strings.Contains(out, "waiting for the first image") && !strings.Contains(out, "waiting") {
		t.Errorf("expected placeholder, got:\n%s", out)
	}
}

func TestTerminal_SkipsIdenticalFrames(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, WithWidth(60))

	term.Draw(liveSnapshot())
	first := buf.Len()
	if first == 0 {
		t.Fatal("expected first frame to be written")
	}
	term.Draw(liveSnapshot())
	if buf.Len() != first {
		t.Error("expected identical frame to be skipped")
	}

	snap := liveSnapshot()
	snap.MicActive = true
	term.Draw(snap)
	if buf.Len() == first {
		t.Error("expected changed frame to be written")
	}
}

func TestTerminal_SetDebugRepaints(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)
	term.Draw(liveSnapshot())
	n := buf.Len()

	term.SetDebug(true)
	if buf.Len() == n {
		t.Error("expected repaint after SetDebug")
	}
	if !term.Debug() {
		t.Error("expected debug to be on")
	}
}

func TestTerminal_NoticeStaysUnderFrame(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, WithClear(true))
	term.Draw(liveSnapshot())

	term.Notice("NAME  MODIFIED\nSession_1  2026-10-15\n")
	if !strings.Contains(buf.String(), "Session_1") {
		t.Fatalf("expected notice to be written:\n%s", buf.String())
	}

	buf.Reset()
	snap := liveSnapshot()
	snap.Status = "Dreaming about: rain..."
	term.Draw(snap)
	out := buf.String()
	if !strings.Contains(out, "rain") || !strings.Contains(out, "Session_1") {
		t.Errorf("expected redraw to keep the notice:\n%s", out)
	}
	if strings.Index(out, "Session_1") < strings.Index(out, "rain") {
		t.Error("expected notice below the frame")
	}
}

func TestTerminal_NoticeBeforeFirstFrame(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)
	term.Notice("hello")
	if buf.String() != "hello\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q, want %q", got, "abc…")
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate = %q, want %q", got, "abc")
	}
}
