package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/camsearch/internal/corpus"
)

const rehydrateWorkers = 4

// Rehydrate replays persisted frames into the catalog in their original
// insertion order, so ranking ties resolve as they did before the restart.
// Stored images are read concurrently to rebuild the visual index; frames
// already in the catalog are skipped. It returns how many frames were
// loaded.
func (p *Pipeline) Rehydrate(ctx context.Context) (int, error) {
	if p.frames == nil {
		return 0, nil
	}
	frames, err := p.frames.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading frames: %w", err)
	}

	images := make([][]byte, len(frames))
	if p.images != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(rehydrateWorkers)
		for i, f := range frames {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if data, err := p.images.ReadFile(f.ImageRef); err == nil {
					images[i] = data
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
	}

	loaded := 0
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		err := p.catalog.Append(ctx, f, images[i])
		switch {
		case err == nil:
			loaded++
		case errors.Is(err, corpus.ErrDuplicateFrame):
		default:
			p.log.WithError(err).WithField("image_ref", f.ImageRef).Warn("skipping stored frame")
		}
	}

	p.log.WithFields(logrus.Fields{
		"stored": len(frames),
		"loaded": loaded,
	}).Info("rehydrated catalog")
	return loaded, nil
}
