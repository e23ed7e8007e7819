package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voxcanvas/internal/capture/paudio"
	"voxcanvas/internal/observe"
	"voxcanvas/internal/realtime"
	"voxcanvas/internal/render"
	"voxcanvas/internal/settings"
	"voxcanvas/internal/watcher"
)

func newRunCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the backend and run the kiosk display",
		Long: `Connect to the backend, stream the microphone on demand and show the
live image. Operator commands are read line by line from stdin:

  p        previous image in history
  n        next image (returns to live past the end)
  l        jump back to live
  m        toggle the microphone
  d        toggle the debug view
  load X   load persisted session X into history
  sessions list persisted sessions
  export   download the current session archive
  q        quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd.Context(), *cfg, os.Stdin, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.SettingsFile, "settings", cfg.SettingsFile, "YAML settings file; edits are applied live")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	f.StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "directory for exported archives")
	f.BoolVar(&cfg.Plain, "plain", cfg.Plain, "append frames instead of redrawing the screen")
	return cmd
}

func runLive(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := settings.OpenBadger(settings.BadgerOptions{Dir: filepath.Join(cfg.DataDir, "settings")})
	if err != nil {
		return err
	}
	defer store.Close()

	sessCfg, err := settings.Load(ctx, store)
	if err != nil {
		return err
	}
	if cfg.SettingsFile != "" {
		p, err := settings.LoadFile(cfg.SettingsFile)
		switch {
		case err == nil:
			merged := sessCfg.Merge(p)
			if verr := settings.Validate(merged); verr != nil {
				slog.Warn("settings file ignored", "path", cfg.SettingsFile, "err", verr)
				break
			}
			sessCfg = merged
		case errors.Is(err, os.ErrNotExist):
			slog.Info("settings file not found; watching for it", "path", cfg.SettingsFile)
		default:
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	metrics := observe.Discard()
	if cfg.MetricsAddr != "" {
		prov, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return err
		}
		defer prov.Shutdown(context.Background())
		if metrics, err = observe.NewMetrics(prov); err != nil {
			return err
		}
		serveMetrics(gctx, g, cfg.MetricsAddr, prov.Handler())
	}

	base, err := realtime.HTTPBase(cfg.URL)
	if err != nil {
		return err
	}

	renderOpts := []render.TerminalOption{
		render.WithDebug(sessCfg.DebugEnabled),
		render.WithClear(!cfg.Plain),
	}
	term := render.NewTerminal(out, renderOpts...)

	syncer := settings.NewSynchronizer(sessCfg, store)
	ctrl := realtime.NewController(realtime.ControllerConfig{
		URL:      cfg.URL,
		Device:   paudio.Device{},
		Settings: syncer,
		Sessions: realtime.NewSessionsClient(base, nil),
		Metrics:  metrics,
		Render:   term.Draw,
	})
	slog.Info("starting", "url", cfg.URL, "conn_id", ctrl.ConnectionID(), "version", version)

	if cfg.SettingsFile != "" {
		w := watcher.New(0, func(path string) {
			p, err := settings.LoadFile(path)
			if err != nil {
				slog.Warn("settings file rejected", "path", path, "err", err)
				return
			}
			if p.DebugEnabled != nil {
				term.SetDebug(*p.DebugEnabled)
			}
			ctrl.ApplySettings(p)
		})
		if err := w.Watch(cfg.SettingsFile); err != nil {
			slog.Warn("settings file not watched", "path", cfg.SettingsFile, "err", err)
		}
		defer w.Shutdown()
	}

	op := &operator{
		ctrl:      ctrl,
		term:      term,
		settings:  syncer,
		exportDir: cfg.ExportDir,
		quit:      cancel,
	}

	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return op.loop(gctx, readLines(in)) })
	return g.Wait()
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		slog.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// readLines feeds lines from r until EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

type command struct {
	verb string
	arg  string
}

func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	verb, arg, _ := strings.Cut(line, " ")
	return command{verb: strings.ToLower(verb), arg: strings.TrimSpace(arg)}
}

// operator maps stdin commands onto controller input events. Its output
// goes through the terminal so it never interleaves with a redraw.
type operator struct {
	ctrl      *realtime.Controller
	term      *render.Terminal
	settings  *settings.Synchronizer
	exportDir string
	quit      func()
}

func (o *operator) loop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// No operator attached; keep running until signalled.
				lines = nil
				continue
			}
			o.handle(ctx, parseCommand(line))
		}
	}
}

func (o *operator) handle(ctx context.Context, c command) {
	switch c.verb {
	case "":
	case "p", "prev":
		o.ctrl.Previous()
	case "n", "next":
		o.ctrl.Next()
	case "l", "live":
		o.ctrl.GoLive()
	case "m", "mic":
		o.ctrl.ToggleMic()
	case "d", "debug":
		on := !o.settings.Current().DebugEnabled
		o.settings.Update(settings.Partial{DebugEnabled: &on})
		o.term.SetDebug(on)
	case "load":
		if c.arg == "" {
			o.term.Notice("usage: load <name>")
			return
		}
		o.ctrl.LoadSession(ctx, c.arg)
	case "sessions":
		go func() {
			list, err := o.ctrl.Sessions().ListSessions(ctx)
			if err != nil {
				slog.Warn("list sessions failed", "err", err)
				o.term.Notice("Could not list sessions")
				return
			}
			var b strings.Builder
			printSessions(&b, list)
			o.term.Notice(b.String())
		}()
	case "export":
		label := o.settings.Current().SessionLabel
		go func() {
			path, err := o.ctrl.Sessions().Export(ctx, o.exportDir, label)
			if err != nil {
				slog.Warn("export failed", "err", err)
				o.term.Notice("Export failed")
				return
			}
			slog.Info("session exported", "path", path)
			o.term.Notice("Exported to " + path)
		}()
	case "q", "quit", "exit":
		o.quit()
	default:
		o.term.Notice(fmt.Sprintf("unknown command %q", c.verb))
	}
}
