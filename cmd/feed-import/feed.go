package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalog-service/internal/ingest"
	"github.com/xenking/catalog-service/internal/integration"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxLineSize   = 1 << 20
)

// feedKey is the upstream identity of a feed line, or "" when the line
// cannot be decoded.
func feedKey(line []byte) string {
	var ev struct {
		ProductID string `json:"productId"`
		BasID     string `json:"basId"`
	}
	if err := json.Unmarshal(line, &ev); err != nil {
		return ""
	}
	if ev.ProductID != "" {
		return ev.ProductID
	}
	return ev.BasID
}

// buildFilters creates one bloom filter per feed, concurrently.
func buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64
			if err := streamFeed(ctx, path, func(line []byte) error {
				if key := feedKey(line); key != "" {
					filter.AddString(key)
					count++
					if count%progressEvery == 0 {
						slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("products", count))
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}

			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("products", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// estimateOverlap counts, per feed, the products that probably also appear
// in another feed.
func estimateOverlap(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]int, error) {
	shared := make([]int, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var total int
			if err := streamFeed(ctx, path, func(line []byte) error {
				key := feedKey(line)
				if key == "" {
					return nil
				}
				total++
				for j, f := range filters {
					if j != i && f.TestString(key) {
						shared[i]++
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan %s for overlap", path)
			}

			slog.Info("pass 2 complete",
				slog.String("file", path),
				slog.Int("products", total),
				slog.Int("shared", shared[i]),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shared, nil
}

type replayStats struct {
	outcomes map[ingest.Outcome]int
	invalid  int
}

// replay applies every line of every feed, in order, as a new product
// event. Products already imported from an earlier feed are skipped by the
// handler.
func replay(ctx context.Context, h *ingest.Handlers, src integration.Integration, files []string) (replayStats, error) {
	stats := replayStats{outcomes: make(map[ingest.Outcome]int)}
	for _, path := range files {
		var lines int
		err := streamFeed(ctx, path, func(line []byte) error {
			lines++
			var ev ingest.NewProductEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				stats.invalid++
				return nil
			}
			outcome, err := h.NewProduct(ctx, src, ev)
			switch {
			case errors.Is(err, ingest.ErrInvalidEvent):
				stats.invalid++
				return nil
			case err != nil:
				return errors.Wrapf(err, "line %d", lines)
			}
			stats.outcomes[outcome]++
			if lines%progressEvery == 0 {
				slog.Info("replay progress", slog.String("file", path), slog.Int("lines", lines))
			}
			return nil
		})
		if err != nil {
			return stats, errors.Wrapf(err, "replay %s", path)
		}
		slog.Info("replayed feed", slog.String("file", path), slog.Int("lines", lines))
	}
	return stats, nil
}

// streamFeed opens a gzip-compressed NDJSON file and calls fn for each
// non-empty line.
func streamFeed(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
