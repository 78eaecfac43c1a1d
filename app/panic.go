package app

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"tilemux/hal"
	"tilemux/mux"
)

var (
	panicOnce sync.Once
	// panicLogs maps a tile id to the logger its panic report goes to.
	panicLogs sync.Map
)

func registerPanicLog(tile uint16, l hal.Logger) {
	panicLogs.Store(tile, l)
}

func installPanicHandler() {
	panicOnce.Do(func() {
		mux.SetPanicHandler(reportPanic)
	})
}

func reportPanic(info mux.PanicInfo) {
	var l hal.Logger = stderrLogger{}
	if v, ok := panicLogs.Load(info.Tile); ok {
		l = v.(hal.Logger)
	}
	for _, line := range panicLines(info) {
		l.WriteLineString(line)
	}
}

func panicLines(info mux.PanicInfo) []string {
	lines := []string{
		fmt.Sprintf("TileMux panic: tile=%d act=%d panic=%v", info.Tile, info.Act, info.Value),
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

type stderrLogger struct{}

func (stderrLogger) WriteLineString(s string) { fmt.Fprintln(os.Stderr, s) }
func (stderrLogger) WriteLineBytes(b []byte)  { fmt.Fprintln(os.Stderr, string(b)) }
