package upload

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/pkg/types"
)

// Counts is the platform-reported outcome of one upload.
type Counts struct {
	Imported int
	Ignored  int
	Deleted  int
	// Failed is the number of records in chunks that failed permanently.
	Failed int
}

// Add returns the field-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	c.Imported += o.Imported
	c.Ignored += o.Ignored
	c.Deleted += o.Deleted
	c.Failed += o.Failed
	return c
}

// Counters converts c for merging into the run aggregate. Failed records
// are reported as errors.
func (c Counts) Counters() types.Counters {
	return types.Counters{
		Imported: c.Imported,
		Ignored:  c.Ignored,
		Deleted:  c.Deleted,
		Errors:   c.Failed,
	}
}

// PostFunc sends one chunk and reports the platform's counts for it.
type PostFunc[T any] func(ctx context.Context, chunk []T) (Counts, error)

// Uploader carries chunking, retry and concurrency settings.
type Uploader struct {
	ChunkSize int
	Policy    RetryPolicy

	// Concurrency bounds the goroutines started by UploadLegacy. Requests
	// are additionally bounded by the remote gate.
	Concurrency int
}

// New builds an Uploader from the upload section and the server's request
// concurrency.
func New(cfg config.UploadConfig, concurrency int) *Uploader {
	return &Uploader{
		ChunkSize:   cfg.ChunkSize,
		Policy:      PolicyFromConfig(cfg),
		Concurrency: concurrency,
	}
}

// Chunks splits records into consecutive slices of at most size elements.
func Chunks[T any](records []T, size int) [][]T {
	if size <= 0 {
		size = len(records)
	}
	var out [][]T
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

// Upload posts records in chunks. Every chunk is attempted; counts of the
// successful chunks are returned even when an error is.
func Upload[T any](ctx context.Context, u *Uploader, op string, records []T, post PostFunc[T]) (Counts, error) {
	chunks := Chunks(records, u.ChunkSize)
	if len(chunks) == 0 {
		return Counts{}, nil
	}

	results := make([]types.Result[Counts], len(chunks))
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			name := op + "#" + strconv.Itoa(i)
			c, err := Execute(ctx, u.Policy, name, func(ctx context.Context) (Counts, error) {
				return post(ctx, chunk)
			})
			if err != nil {
				results[i] = types.Fail[Counts](name, err)
				return nil
			}
			results[i] = types.Ok(name, c)
			return nil
		})
	}
	_ = g.Wait()

	var (
		total    Counts
		firstErr *types.UploadError
	)
	for i, r := range results {
		switch r.Err {
		case nil:
			total = total.Add(r.Value)
		default:
			total.Failed += len(chunks[i])
			slog.Error("upload: chunk failed", "op", op, "chunk", i, "records", len(chunks[i]), "err", r.Err)
			if firstErr == nil {
				firstErr = &types.UploadError{Op: op, Chunk: i, Err: r.Err}
			}
		}
	}

	slog.Info("upload: finished",
		"op", op,
		"chunks", len(chunks),
		"imported", total.Imported,
		"ignored", total.Ignored,
		"deleted", total.Deleted,
		"failed", total.Failed)

	if firstErr != nil {
		return total, firstErr
	}
	return total, nil
}
