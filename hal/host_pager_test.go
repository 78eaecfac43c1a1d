//go:build !tinygo

package hal

import (
	"errors"
	"testing"
)

func TestPagerMapTranslate(t *testing.T) {
	p := NewHostPager()
	root, err := p.NewAddrSpace(5)
	if err != nil || root == 0 {
		t.Fatalf("NewAddrSpace = %#x, %v", root, err)
	}
	if err := p.Map(5, 0x20000, 0x80000, 2, PageRW); err != nil {
		t.Fatalf("Map: %v", err)
	}
	got, err := p.Translate(5, 0x21010, PageR)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != 0x81010 {
		t.Fatalf("Translate = %#x, want %#x", got, 0x81010)
	}
	if _, err := p.Translate(5, 0x20000, PageX); !errors.Is(err, ErrUnmapped) {
		t.Fatalf("Translate without X = %v, want %v", err, ErrUnmapped)
	}

	p.Map(5, 0x20000, 0, 1, 0)
	if _, err := p.Translate(5, 0x20000, PageR); !errors.Is(err, ErrUnmapped) {
		t.Fatalf("Translate after unmap = %v, want %v", err, ErrUnmapped)
	}
}

func TestPagerUnknownActivity(t *testing.T) {
	p := NewHostPager()
	if err := p.Map(1, 0, 0, 1, PageR); !errors.Is(err, ErrUnmapped) {
		t.Fatalf("Map = %v, want %v", err, ErrUnmapped)
	}
}

func TestSimClockSet(t *testing.T) {
	c := NewSimClock(100)
	c.Set(50)
	if c.Nanotime() != 100 {
		t.Fatalf("Nanotime = %d, want 100", c.Nanotime())
	}
	c.Set(300)
	if c.Advance(5) != 305 {
		t.Fatalf("Nanotime = %d, want 305", c.Nanotime())
	}
}
