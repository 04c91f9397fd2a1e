package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"xmlbar/internal/config"
	"xmlbar/internal/extract"
	"xmlbar/internal/template"
	"xmlbar/internal/xmlstream"
)

// Debug prints what cfg.Debug.Selector selects in each of the first
// cfg.Debug.Limit records (0 means all) and returns the number of matches.
// The record tag comes from cfg.Template when given, otherwise from
// cfg.Debug.Root. Records that fail to parse are reported and skipped.
func (r *Runner) Debug(ctx context.Context, cfg config.Config, w io.Writer) (int, error) {
	logger := r.logger()

	rootTag := strings.TrimSpace(cfg.Debug.Root)
	if cfg.Template != "" {
		tpl, err := template.Load(cfg.Template)
		if err != nil {
			return 0, err
		}
		rootTag = tpl.RootTag
	}

	sources, err := xmlstream.Sources(cfg.Input)
	if err != nil {
		return 0, err
	}

	matches, records := 0, 0
	for _, src := range sources {
		rc, err := xmlstream.Open(ctx, xmlstream.Input{Path: src, Stdin: r.Stdin, Client: r.HTTPClient})
		if err != nil {
			return matches, err
		}
		done, err := func() (bool, error) {
			defer rc.Close()
			rd, err := xmlstream.NewReader(rc, rootTag, xmlstream.Options{})
			if err != nil {
				return false, err
			}
			for {
				if cfg.Debug.Limit > 0 && records >= cfg.Debug.Limit {
					return true, nil
				}
				if err := ctx.Err(); err != nil {
					return false, err
				}
				f, err := rd.Next()
				if errors.Is(err, io.EOF) {
					return false, nil
				}
				if err != nil {
					return false, fmt.Errorf("read %s: %w", src, err)
				}
				records++
				fmt.Fprintf(w, "=== record %d ===\n", records)
				n, err := extract.DebugPrintSelector(w, f.Bytes, cfg.Debug.Selector, cfg.Debug.Text)
				f.Free()
				var se *extract.SelectorError
				if errors.As(err, &se) {
					return false, err
				}
				if err != nil {
					logger.Warn("record skipped", zap.Int("record", records), zap.Error(err))
					continue
				}
				matches += n
			}
		}()
		if err != nil {
			return matches, err
		}
		if done {
			break
		}
	}
	return matches, nil
}
