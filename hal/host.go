//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"tilemux/kernel"
)

// HostConfig describes one simulated tile.
type HostConfig struct {
	Tile uint16
	// Clock defaults to a SimClock starting at 0.
	Clock Clock
	// Log defaults to stdout.
	Log io.Writer
	// KernelInbox receives everything the tile sends to the kernel.
	KernelInbox *kernel.Mailbox
}

// Host is the host HAL: a simulated TCU, a flat pager and a line logger.
type Host struct {
	logger *hostLogger
	tcu    *HostTCU
	pager  *HostPager
	clock  Clock
}

// New returns a host HAL implementation.
func New(cfg HostConfig) *Host {
	if cfg.Clock == nil {
		cfg.Clock = NewSimClock(0)
	}
	if cfg.Log == nil {
		cfg.Log = os.Stdout
	}
	if cfg.KernelInbox == nil {
		cfg.KernelInbox = &kernel.Mailbox{}
	}
	return &Host{
		logger: &hostLogger{w: cfg.Log, prefix: fmt.Sprintf("[T%d] ", cfg.Tile)},
		tcu:    NewHostTCU(cfg.Tile, cfg.Clock, cfg.KernelInbox),
		pager:  NewHostPager(),
		clock:  cfg.Clock,
	}
}

func (h *Host) Logger() Logger { return h.logger }
func (h *Host) TCU() TCU       { return h.tcu }
func (h *Host) Pager() Pager   { return h.pager }

// HostTCU exposes the simulator side of the TCU.
func (h *Host) HostTCU() *HostTCU { return h.tcu }

// HostPager exposes the concrete pager.
func (h *Host) HostPager() *HostPager { return h.pager }

// Clock returns the tile clock.
func (h *Host) Clock() Clock { return h.clock }

type hostLogger struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, l.prefix+s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, l.prefix)
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
