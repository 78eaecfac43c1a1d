package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/shlex"

	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux"
	"tilemux/mux/proto"
)

// Runner executes scenario commands against a tile. Upcall lines act as
// the kernel, pexcall lines as the running activity, the rest as the
// hardware around the tile.
type Runner struct {
	t   *Tile
	out io.Writer
}

// NewRunner returns a Runner that reports to out.
func NewRunner(t *Tile, out io.Writer) *Runner {
	return &Runner{t: t, out: out}
}

// Run executes every line of in. It stops at the first failing line.
func (r *Runner) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Exec(ctx, sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

type command struct {
	args  string
	nargs [2]int
	run   func(r *Runner, ctx context.Context, a args) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		// kernel upcalls
		"init": {"ACT", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.ActCtrl{Act: a.u16(0), ActOp: proto.ActInit, EpsStart: kernel.FirstUserEP})
		}},
		"start": {"ACT", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.ActCtrl{Act: a.u16(0), ActOp: proto.ActStart})
		}},
		"stop": {"ACT", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.ActCtrl{Act: a.u16(0), ActOp: proto.ActStop})
		}},
		"allocep": {"ACT [EP]", [2]int{1, 2}, func(r *Runner, _ context.Context, a args) error {
			ep := kernel.InvalidEP
			if a.len() > 1 {
				ep = a.ep(1)
			}
			return r.upcall(proto.AllocEP{Act: a.u16(0), Ep: ep})
		}},
		"freeep": {"EP", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.FreeEP{Ep: a.ep(0)})
		}},
		"remmsgs": {"ACT MASK", [2]int{2, 2}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.RemMsgs{Act: a.u16(0), UnreadMask: a.u64(1)})
		}},
		"epinval": {"ACT EP", [2]int{2, 2}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.EpInval{Act: a.u16(0), Ep: a.ep(1)})
		}},
		"map": {"ACT VIRT GLOBAL PAGES PERM", [2]int{5, 5}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.Map{Act: a.u16(0), Virt: a.u64(1), Global: a.u64(2), Pages: a.u64(3), Perm: a.u64(4)})
		}},
		"translate": {"ACT VIRT PERM", [2]int{3, 3}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.Translate{Act: a.u16(0), Virt: a.u64(1), Perm: a.u64(2)})
		}},
		"resetstats": {"", [2]int{0, 0}, func(r *Runner, _ context.Context, a args) error {
			return r.upcall(proto.ResetStats{})
		}},

		// pexcalls of the running activity
		"sleep": {"NS [EP]", [2]int{1, 2}, func(r *Runner, _ context.Context, a args) error {
			ep := kernel.InvalidEP
			if a.len() > 1 {
				ep = a.ep(1)
			}
			return r.pexcall("sleep", r.t.Calls().Sleep(a.u64(0), ep))
		}},
		"wait": {"EP IRQ NS", [2]int{3, 3}, func(r *Runner, _ context.Context, a args) error {
			return r.pexcall("wait", r.t.Calls().Wait(a.ep(0), a.u64(1), a.u64(2)))
		}},
		"exit": {"CODE", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			return r.pexcall("exit", r.t.Calls().Exit(a.u64(0)))
		}},
		"yield": {"", [2]int{0, 0}, func(r *Runner, _ context.Context, a args) error {
			return r.pexcall("yield", r.t.Calls().Yield())
		}},
		"noop": {"", [2]int{0, 0}, func(r *Runner, _ context.Context, a args) error {
			return r.pexcall("noop", r.t.Calls().Noop())
		}},
		"regirq": {"IRQ", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			return r.pexcall("reg_irq", r.t.Calls().RegIRQ(hal.IRQId(a.u64(0))))
		}},
		"flushinv": {"", [2]int{0, 0}, func(r *Runner, _ context.Context, a args) error {
			return r.pexcall("flush_inv", r.t.Calls().FlushInv())
		}},

		// environment
		"msg": {"ACT EP", [2]int{2, 2}, func(r *Runner, _ context.Context, a args) error {
			return r.t.Deliver(hal.ActId(a.u16(0)), a.ep(1), nil)
		}},
		"irq": {"N", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			return r.t.AssertIRQ(hal.IRQId(a.u64(0)))
		}},
		"advance": {"NS", [2]int{1, 1}, func(r *Runner, ctx context.Context, a args) error {
			return r.t.Advance(ctx, a.u64(0))
		}},
		"cmd": {"OP EP [ARG1]", [2]int{2, 3}, func(r *Runner, _ context.Context, a args) error {
			op, err := parseCmdOp(a.s[0])
			if err != nil {
				return err
			}
			var arg1 uint64
			if a.len() > 2 {
				arg1 = a.u64(2)
			}
			return r.t.StartCmd(op, a.ep(1), arg1)
		}},
		"pmp": {"PHYS W ERR", [2]int{3, 3}, func(r *Runner, _ context.Context, a args) error {
			return r.t.InjectPMPFailure(uint32(a.u64(0)), a.u64(1) != 0, uint32(a.u64(2)))
		}},
		"status": {"", [2]int{0, 0}, func(r *Runner, _ context.Context, a args) error {
			fmt.Fprintln(r.out, r.t.Status())
			return nil
		}},
		"expect-cur": {"ACT", [2]int{1, 1}, func(r *Runner, _ context.Context, a args) error {
			want := a.actID(0)
			if got := r.t.Mux().Current().ID(); got != want {
				return fmt.Errorf("current activity = %d, want %d", got, want)
			}
			return nil
		}},
		"expect-state": {"ACT STATE", [2]int{2, 2}, func(r *Runner, _ context.Context, a args) error {
			act, ok := r.t.Mux().Activity(a.actID(0))
			if !ok {
				return fmt.Errorf("activity %s does not exist", a.s[0])
			}
			if got := act.State().String(); got != a.s[1] {
				return fmt.Errorf("activity %s state = %s, want %s", a.s[0], got, a.s[1])
			}
			return nil
		}},
		"expect-exit": {"ACT CODE", [2]int{2, 2}, func(r *Runner, _ context.Context, a args) error {
			code, ok := r.t.Mux().ExitStatus(a.actID(0))
			if !ok {
				return fmt.Errorf("activity %s has not exited", a.s[0])
			}
			if want := a.u64(1); code != want {
				return fmt.Errorf("activity %s exit code = %d, want %d", a.s[0], code, want)
			}
			return nil
		}},
	}
}

// Exec executes a single command line. Empty lines and comments are ignored.
func (r *Runner) Exec(ctx context.Context, line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(words) == 0 {
		return nil
	}
	if r.t.Halted() {
		return ErrHalted
	}

	name := words[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	a := args{s: words[1:]}
	if a.len() < cmd.nargs[0] || a.len() > cmd.nargs[1] {
		return fmt.Errorf("usage: %s %s", name, cmd.args)
	}
	if err := a.check(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := cmd.run(r, ctx, a); err != nil {
		return err
	}
	for _, n := range r.t.Exits() {
		fmt.Fprintf(r.out, "activity %d exited with code %d\n", n.Act, n.Code)
	}
	return nil
}

func (r *Runner) upcall(req proto.Request) error {
	res, err := r.t.Upcall(req)
	if err != nil {
		return err
	}
	if res.Error != proto.CodeNone {
		fmt.Fprintf(r.out, "%s -> %s\n", req.Op(), res.Error)
		return nil
	}
	fmt.Fprintf(r.out, "%s -> %#x\n", req.Op(), res.Val)
	return nil
}

func (r *Runner) pexcall(name string, err error) error {
	if r.t.Halted() {
		return ErrHalted
	}
	if err != nil {
		fmt.Fprintf(r.out, "%s -> %s\n", name, proto.CodeOf(err))
		return nil
	}
	fmt.Fprintf(r.out, "%s -> ok\n", name)
	return nil
}

// args holds the operands of a command. Numbers accept Go literal syntax.
type args struct {
	s []string
}

func (a args) len() int { return len(a.s) }

// check rejects malformed numbers up front so accessors can ignore errors.
func (a args) check() error {
	for _, w := range a.s {
		if _, err := strconv.ParseUint(w, 0, 64); err != nil && !isWord(w) {
			return fmt.Errorf("bad number %q", w)
		}
	}
	return nil
}

func isWord(w string) bool {
	switch w {
	case "idle", "own", "any", "none":
		return true
	}
	_, err := parseCmdOp(w)
	if err == nil {
		return true
	}
	_, err = parseState(w)
	return err == nil
}

func (a args) u64(i int) uint64 {
	switch a.s[i] {
	case "any", "none":
		return ^uint64(0)
	}
	v, _ := strconv.ParseUint(a.s[i], 0, 64)
	return v
}

func (a args) u16(i int) uint16 { return uint16(a.actID(i)) }

func (a args) ep(i int) kernel.EpId { return proto.EpArg(a.u64(i)) }

func (a args) actID(i int) hal.ActId {
	switch a.s[i] {
	case "idle":
		return mux.IdleID
	case "own":
		return mux.OwnID
	}
	return hal.ActId(a.u64(i))
}

func parseCmdOp(s string) (hal.CmdOpCode, error) {
	for op := hal.CmdIdle; op <= hal.CmdSleep; op++ {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown TCU command %q", s)
}

func parseState(s string) (mux.ActState, error) {
	for _, st := range []mux.ActState{mux.Blocked, mux.Ready, mux.Running} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", s)
}
