package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"tilemux/app"
	"tilemux/internal/buildinfo"
	"tilemux/mux"
)

type scriptList []string

func (s *scriptList) String() string { return strings.Join(*s, ",") }

func (s *scriptList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		cfg         app.Config
		scripts     scriptList
		interactive bool
		logTopics   string
		logFile     string
		version     bool
	)
	flag.Var(&scripts, "script", "Run a scenario file. Repeat to run one tile per file in parallel.")
	flag.BoolVar(&interactive, "interactive", false, "Read commands for tile 0 from the terminal.")
	flag.BoolVar(&cfg.Realtime, "realtime", false, "Drive tiles from the host clock instead of simulated time.")
	flag.BoolVar(&cfg.VirtMem, "vm", false, "Give every activity its own address space.")
	flag.Uint64Var(&cfg.TimeSlice, "slice", mux.TimeSlice, "Time slice in ns.")
	flag.StringVar(&logTopics, "log", mux.LogDefault.String(), "Comma-separated log topics (all, none, err, acts, calls, ctxsws, upcalls, foreignmsg, corereqs, timer, irqs).")
	flag.StringVar(&logFile, "logfile", "", "Write tile logs to this file instead of stdout.")
	flag.BoolVar(&version, "version", false, "Print the version and exit.")
	flag.Parse()

	if version {
		fmt.Println("tilesim", buildinfo.String())
		return
	}

	flags, err := mux.ParseLogFlags(logTopics)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.LogFlags = flags

	if len(scripts) == 0 && !interactive {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -script or -interactive")
		flag.Usage()
		os.Exit(2)
	}

	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		cfg.Log = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, scripts, interactive); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg app.Config, scripts []string, interactive bool) error {
	if interactive {
		t, err := app.NewTile(cfg)
		if err != nil {
			return err
		}
		for _, path := range scripts {
			if err := runFile(ctx, t, path, os.Stdout); err != nil {
				return err
			}
		}
		return app.Interactive(ctx, t)
	}

	tiles, err := app.NewTiles(len(scripts), cfg)
	if err != nil {
		return err
	}
	return app.RunTiles(ctx, tiles, func(ctx context.Context, t *app.Tile) error {
		path := scripts[t.ID()-cfg.TileID]
		return runFile(ctx, t, path, &prefixWriter{w: os.Stdout, prefix: fmt.Sprintf("[T%d] ", t.ID())})
	})
}

func runFile(ctx context.Context, t *app.Tile, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := app.NewRunner(t, out).Run(ctx, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// prefixWriter tags every write with the tile it came from. The runner
// writes whole lines.
type prefixWriter struct {
	w      io.Writer
	prefix string
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	if _, err := io.WriteString(p.w, p.prefix); err != nil {
		return 0, err
	}
	return p.w.Write(b)
}
