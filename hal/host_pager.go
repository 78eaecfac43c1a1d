//go:build !tinygo

package hal

import (
	"fmt"
	"sync"
)

type hostMapping struct {
	global uint64
	perm   PageFlags
}

type hostAddrSpace struct {
	root  uint64
	pages map[uint64]hostMapping
}

// HostPager keeps one flat page map per activity.
type HostPager struct {
	mu       sync.Mutex
	spaces   map[ActId]*hostAddrSpace
	nextRoot uint64
	current  uint64
	switches int
}

func NewHostPager() *HostPager {
	return &HostPager{spaces: make(map[ActId]*hostAddrSpace), nextRoot: 0x10000}
}

func (p *HostPager) NewAddrSpace(act ActId) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if as, ok := p.spaces[act]; ok {
		return as.root, nil
	}
	root := p.nextRoot
	p.nextRoot += PageSize
	p.spaces[act] = &hostAddrSpace{root: root, pages: make(map[uint64]hostMapping)}
	return root, nil
}

func (p *HostPager) FreeAddrSpace(act ActId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.spaces, act)
}

func (p *HostPager) Map(act ActId, virt, global uint64, pages int, perm PageFlags) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	as, ok := p.spaces[act]
	if !ok {
		return fmt.Errorf("map for activity %d: %w", act, ErrUnmapped)
	}
	base := virt &^ (PageSize - 1)
	for i := 0; i < pages; i++ {
		off := uint64(i) * PageSize
		if perm == 0 {
			delete(as.pages, base+off)
			continue
		}
		as.pages[base+off] = hostMapping{global: global + off, perm: perm}
	}
	return nil
}

func (p *HostPager) Translate(act ActId, virt uint64, perm PageFlags) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	as, ok := p.spaces[act]
	if !ok {
		return 0, fmt.Errorf("translate %#x for activity %d: %w", virt, act, ErrUnmapped)
	}
	m, ok := as.pages[virt&^(PageSize-1)]
	if !ok || m.perm&perm != perm {
		return 0, fmt.Errorf("translate %#x for activity %d: %w", virt, act, ErrUnmapped)
	}
	return m.global + virt&(PageSize-1), nil
}

func (p *HostPager) SwitchTo(root uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = root
	p.switches++
}

// Current returns the active root and the number of switches performed.
func (p *HostPager) Current() (root uint64, switches int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.switches
}
