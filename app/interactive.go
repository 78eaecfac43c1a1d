package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	tty "github.com/mattn/go-tty"
)

// Interactive reads commands from the controlling terminal until "quit",
// end of input or cancellation of ctx.
func Interactive(ctx context.Context, t *Tile) error {
	term, err := tty.Open()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer term.Close()
	return interact(ctx, t, term.ReadString, term.Output())
}

func interact(ctx context.Context, t *Tile, readLine func() (string, error), out io.Writer) error {
	r := NewRunner(t, out)
	fmt.Fprintf(out, "tile %d ready, \"help\" lists commands\n", t.ID())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "tilemux> ")
		line, err := readLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.TrimSpace(line) {
		case "quit":
			return nil
		case "help":
			printHelp(out)
			continue
		}
		if err := r.Exec(ctx, line); err != nil {
			if errors.Is(err, ErrHalted) {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func printHelp(out io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s %s\n", name, commands[name].args)
	}
	fmt.Fprintln(out, "  quit")
}
