package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"tilemux/kernel"
	"tilemux/mux"
	"tilemux/mux/proto"
)

func newTile(t *testing.T, cfg Config) *Tile {
	t.Helper()
	if cfg.Log == nil {
		cfg.Log = io.Discard
	}
	tile, err := NewTile(cfg)
	if err != nil {
		t.Fatalf("NewTile: %v", err)
	}
	return tile
}

func TestSpawnAndExit(t *testing.T) {
	tile := newTile(t, Config{})
	if err := tile.Spawn(4); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if got := tile.Mux().Current().ID(); got != 4 {
		t.Fatalf("current = %d, want 4", got)
	}

	if err := tile.Calls().Exit(9); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	exits := tile.Exits()
	if len(exits) != 1 || exits[0] != (proto.ExitNotice{Act: 4, Code: 9}) {
		t.Fatalf("exits = %+v", exits)
	}
	if got := tile.Mux().Current().ID(); got != mux.IdleID {
		t.Fatalf("current = %d, want idle", got)
	}
}

func TestSleepAndAdvance(t *testing.T) {
	tile := newTile(t, Config{})
	tile.Spawn(1)
	if err := tile.Calls().Sleep(5000, kernel.InvalidEP); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	ctx := context.Background()
	if err := tile.Advance(ctx, 4999); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := tile.Mux().Current().ID(); got != mux.IdleID {
		t.Fatalf("current = %d before deadline", got)
	}
	if err := tile.Advance(ctx, 1); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := tile.Mux().Current().ID(); got != 1 {
		t.Fatalf("current = %d after deadline, want 1", got)
	}
}

func TestDuplicateSpawn(t *testing.T) {
	tile := newTile(t, Config{})
	tile.Spawn(2)
	err := tile.Spawn(2)
	if !errors.Is(err, proto.CodeExists) {
		t.Fatalf("Spawn twice = %v, want %v", err, proto.CodeExists)
	}
}

func TestDeliverReservedEP(t *testing.T) {
	tile := newTile(t, Config{})
	if err := tile.Deliver(1, 2, nil); err == nil {
		t.Fatal("Deliver to a reserved ep succeeded")
	}
}

func TestDeliverKeepsQueuedMessages(t *testing.T) {
	tile := newTile(t, Config{})
	tile.Spawn(1)
	tile.Spawn(2)
	if err := tile.Deliver(2, 20, []byte("a")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := tile.Deliver(1, 20, []byte("b")); err == nil {
		t.Fatal("Deliver took over an endpoint with unread messages")
	}
	if owner, _ := tile.tcu.RecvOwner(20); owner != 2 || !tile.tcu.HasMsgs(20) {
		t.Fatalf("ep 20: owner %d msgs %v, want 2 with messages", owner, tile.tcu.HasMsgs(20))
	}
	if err := tile.Deliver(2, 20, []byte("c")); err != nil {
		t.Fatalf("second Deliver to the owner: %v", err)
	}
	a, _ := tile.Mux().Activity(2)
	if a.Msgs() != 2 {
		t.Fatalf("msgs of 2 = %d, want 2", a.Msgs())
	}
}

func TestHaltReportsPanic(t *testing.T) {
	var log bytes.Buffer
	tile := newTile(t, Config{TileID: 7, Log: &log, LogFlags: mux.LogErr})
	tile.Spawn(3)

	if s := tile.enter(func() *mux.State { return tile.Mux().UnexpectedIRQ(12) }); s != nil {
		t.Fatal("halted trap returned a state")
	}
	if !tile.Halted() {
		t.Fatal("tile not halted")
	}
	out := log.String()
	if !strings.Contains(out, "TileMux panic: tile=7 act=3") {
		t.Fatalf("panic report missing:\n%s", out)
	}
	if _, err := tile.Upcall(proto.ResetStats{}); !errors.Is(err, ErrHalted) {
		t.Fatalf("Upcall after halt = %v, want %v", err, ErrHalted)
	}
	if err := tile.Calls().Noop(); err != proto.CodeAborted {
		t.Fatalf("Noop after halt = %v, want %v", err, proto.CodeAborted)
	}
}

func TestPanicLines(t *testing.T) {
	lines := panicLines(mux.PanicInfo{Tile: 1, Act: 2, Value: "boom"})
	if len(lines) != 2 || lines[1] != "stack: unavailable" {
		t.Fatalf("lines = %q", lines)
	}
	lines = panicLines(mux.PanicInfo{Tile: 1, Act: 2, Value: "boom", Stack: []byte("a\n\nb\n")})
	if want := []string{"TileMux panic: tile=1 act=2 panic=boom", "stack:", "a", "b"}; strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestRunTiles(t *testing.T) {
	tiles, err := NewTiles(3, Config{TileID: 10, Log: io.Discard})
	if err != nil {
		t.Fatalf("NewTiles: %v", err)
	}
	err = RunTiles(context.Background(), tiles, func(ctx context.Context, tile *Tile) error {
		return tile.Spawn(1)
	})
	if err != nil {
		t.Fatalf("RunTiles: %v", err)
	}
	for _, tile := range tiles {
		if got := tile.Mux().Current().ID(); got != 1 {
			t.Fatalf("tile %d current = %d, want 1", tile.ID(), got)
		}
	}
}

func TestRunTilesError(t *testing.T) {
	tiles, _ := NewTiles(2, Config{Log: io.Discard})
	boom := errors.New("boom")
	err := RunTiles(context.Background(), tiles, func(ctx context.Context, tile *Tile) error {
		if tile.ID() == 1 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "tile 1") {
		t.Fatalf("RunTiles = %v", err)
	}
}
