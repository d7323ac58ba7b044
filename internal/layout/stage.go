// SPDX-License-Identifier: MPL-2.0

package layout

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"
)

// stageParallelism bounds concurrent copies. Staging is I/O bound; a
// small fixed fan-out keeps descriptor use predictable.
const stageParallelism = 8

// Stage materializes the plan under dir on the destination filesystem.
// Any content left by a previous build is purged first so stale files
// never leak into a new archive. Copies run concurrently and are
// idempotent per destination path; a failed stage may be retried on the
// same directory.
func (p *Plan) Stage(ctx context.Context, dst billy.Filesystem, dir string) error {
	if err := util.RemoveAll(dst, dir); err != nil {
		return fmt.Errorf("purging stale staging directory %q: %w", dir, err)
	}
	if err := dst.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating staging directory %q: %w", dir, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(stageParallelism)

	for _, f := range p.Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.SourcePath)
			if err != nil {
				return fmt.Errorf("reading module source %q: %w", f.SourcePath, err)
			}
			target := path.Join(dir, f.ArchivePath)
			if err := util.WriteFile(dst, target, data, 0o644); err != nil {
				return fmt.Errorf("staging %q: %w", target, err)
			}
			return nil
		})
	}

	for _, marker := range p.Markers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			target := path.Join(dir, marker)
			if err := util.WriteFile(dst, target, nil, 0o644); err != nil {
				return fmt.Errorf("staging package marker %q: %w", target, err)
			}
			return nil
		})
	}

	return g.Wait()
}
