package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voxcanvas/internal/capture"
	"voxcanvas/internal/realtime"
	"voxcanvas/internal/render"
	"voxcanvas/internal/session"
	"voxcanvas/internal/settings"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"VOXCANVAS_URL", "VOXCANVAS_DATA_DIR", "VOXCANVAS_SETTINGS", "VOXCANVAS_METRICS_ADDR", "VOXCANVAS_LOG_LEVEL", "VOXCANVAS_EXPORT_DIR"} {
		t.Setenv(k, "")
	}
	cfg := loadConfig()
	if cfg.URL != "ws://localhost:8000/ws" {
		t.Errorf("unexpected default URL %q", cfg.URL)
	}
	if cfg.LogLevel != "info" || cfg.ExportDir != "." || cfg.DataDir == "" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("VOXCANVAS_URL", "wss://art.example.com/ws")
	t.Setenv("VOXCANVAS_DATA_DIR", "/tmp/vc")
	t.Setenv("VOXCANVAS_SETTINGS", "/etc/voxcanvas.yaml")
	t.Setenv("VOXCANVAS_METRICS_ADDR", ":9464")
	t.Setenv("VOXCANVAS_LOG_LEVEL", "debug")
	t.Setenv("VOXCANVAS_EXPORT_DIR", "/srv/exports")

	cfg := loadConfig()
	want := Config{
		URL:          "wss://art.example.com/ws",
		DataDir:      "/tmp/vc",
		SettingsFile: "/etc/voxcanvas.yaml",
		MetricsAddr:  ":9464",
		LogLevel:     "debug",
		ExportDir:    "/srv/exports",
	}
	if cfg != want {
		t.Errorf("loadConfig() = %+v, want %+v", cfg, want)
	}
}

func TestSetupLogging(t *testing.T) {
	if err := setupLogging("warn"); err != nil {
		t.Errorf("expected warn to be accepted, got %v", err)
	}
	if err := setupLogging("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"p", command{verb: "p"}},
		{"  N  ", command{verb: "n"}},
		{"load Gallery Night", command{verb: "load", arg: "Gallery Night"}},
		{"LOAD   spaced ", command{verb: "load", arg: "spaced"}},
		{"", command{}},
	}
	for _, tt := range tests {
		if got := parseCommand(tt.line); got != tt.want {
			t.Errorf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestPrintSessions(t *testing.T) {
	var buf bytes.Buffer
	printSessions(&buf, []realtime.SessionInfo{{Name: "Session_1", Modified: "2026-10-15T10:00:00"}})
	if !strings.Contains(buf.String(), "Session_1") || !strings.Contains(buf.String(), "MODIFIED") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	printSessions(&buf, nil)
	if buf.String() != "No sessions.\n" {
		t.Errorf("unexpected empty output %q", buf.String())
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, []session.HistoryEntry{{Question: "why?", ArtifactRef: "u0", Timestamp: "t0"}})
	if !strings.Contains(buf.String(), "why?") || !strings.Contains(buf.String(), "u0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "sessions", "load", "export"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("expected subcommand %q, got %v (%v)", name, c, err)
		}
	}
}

type noMic struct{}

func (noMic) Open(int, int, func([]float32)) (capture.Stream, error) {
	return nil, &capture.Error{Kind: capture.ErrDeviceUnavailable}
}

// lockedBuffer lets the test read what the terminal wrote from other
// goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestOperator(t *testing.T, httpURL string, cfg settings.Config) (*operator, *lockedBuffer) {
	t.Helper()
	out := &lockedBuffer{}
	syncer := settings.NewSynchronizer(cfg, settings.NewMemoryStore())
	ctrl := realtime.NewController(realtime.ControllerConfig{
		URL:      "ws://127.0.0.1:1/ws",
		Device:   noMic{},
		Settings: syncer,
		Sessions: realtime.NewSessionsClient(httpURL, nil),
	})
	return &operator{
		ctrl:      ctrl,
		term:      render.NewTerminal(out, render.WithClear(false)),
		settings:  syncer,
		exportDir: t.TempDir(),
		quit:      func() {},
	}, out
}

func waitForText(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output:\n%s", want, out.String())
}

func TestOperator_DebugToggleUpdatesSettings(t *testing.T) {
	op, _ := newTestOperator(t, "http://127.0.0.1:1", settings.Default())

	op.handle(context.Background(), parseCommand("d"))
	if !op.settings.Current().DebugEnabled || !op.term.Debug() {
		t.Error("expected debug on in both settings and terminal")
	}
	op.handle(context.Background(), parseCommand("debug"))
	if op.settings.Current().DebugEnabled || op.term.Debug() {
		t.Error("expected debug off in both settings and terminal")
	}
}

func TestOperator_ExportUsesCurrentLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("PK\x03\x04"))
	}))
	defer srv.Close()

	op, out := newTestOperator(t, srv.URL, settings.Default())
	label := "Night Show"
	op.settings.Update(settings.Partial{SessionLabel: &label})

	op.handle(context.Background(), parseCommand("export"))
	waitForText(t, out, "Exported to")
	if _, err := os.Stat(filepath.Join(op.exportDir, "Night Show.zip")); err != nil {
		t.Errorf("expected archive named after the current label: %v", err)
	}
}

func TestOperator_SessionsListedThroughTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"Session_1","modified":"2026-10-15T10:00:00"}]`))
	}))
	defer srv.Close()

	op, out := newTestOperator(t, srv.URL, settings.Default())
	op.handle(context.Background(), parseCommand("sessions"))
	waitForText(t, out, "Session_1")

	op.handle(context.Background(), parseCommand("bogus"))
	waitForText(t, out, `unknown command "bogus"`)
}
