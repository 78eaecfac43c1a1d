package mux

import (
	"fmt"
	"strings"
)

// LogFlags selects which topics the mux logs.
type LogFlags uint32

const (
	LogErr LogFlags = 1 << iota
	LogActs
	LogCalls
	LogCtxSws
	LogUpcalls
	LogForeignMsg
	LogCoreReqs
	LogTimer
	LogIRQs

	LogDefault = LogErr
	LogAll     = LogErr | LogActs | LogCalls | LogCtxSws | LogUpcalls | LogForeignMsg | LogCoreReqs | LogTimer | LogIRQs
)

var logFlagNames = []struct {
	flag LogFlags
	name string
}{
	{LogErr, "err"},
	{LogActs, "acts"},
	{LogCalls, "calls"},
	{LogCtxSws, "ctxsws"},
	{LogUpcalls, "upcalls"},
	{LogForeignMsg, "foreignmsg"},
	{LogCoreReqs, "corereqs"},
	{LogTimer, "timer"},
	{LogIRQs, "irqs"},
}

func (f LogFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range logFlagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseLogFlags parses a comma-separated list of topics. "all" and "none" are accepted.
func ParseLogFlags(s string) (LogFlags, error) {
	var f LogFlags
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch part {
		case "":
			continue
		case "all":
			f |= LogAll
			continue
		case "none":
			continue
		}
		found := false
		for _, n := range logFlagNames {
			if n.name == part {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown log topic %q", part)
		}
	}
	return f, nil
}

func (m *Mux) logf(flag LogFlags, format string, args ...any) {
	if m.cfg.LogFlags&flag == 0 || m.log == nil {
		return
	}
	m.log.WriteLineString(fmt.Sprintf(format, args...))
}
