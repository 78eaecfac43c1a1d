package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunTiles runs fn for every tile on its own goroutine. The first error
// cancels the context passed to the others and is returned.
func RunTiles(ctx context.Context, tiles []*Tile, fn func(ctx context.Context, t *Tile) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tiles {
		t := t
		g.Go(func() error {
			if err := fn(ctx, t); err != nil {
				return fmt.Errorf("tile %d: %w", t.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// NewTiles creates n tiles sharing cfg, numbered from cfg.TileID.
func NewTiles(n int, cfg Config) ([]*Tile, error) {
	tiles := make([]*Tile, 0, n)
	for i := 0; i < n; i++ {
		c := cfg
		c.TileID = cfg.TileID + uint16(i)
		t, err := NewTile(c)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, t)
	}
	return tiles, nil
}
