package generate

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"agenix/internal/jsonl"
	"agenix/internal/logging"
	"agenix/internal/types"
)

// CountExisting tallies candidates already present in path by domain. A
// missing file counts as empty.
func CountExisting(ctx context.Context, path string) (map[string]int, error) {
	counts := make(map[string]int)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return counts, nil
	}

	stats, err := jsonl.EachFile(ctx, path,
		func(e *jsonl.MalformedRecordError) {
			logging.GenerateWarn("resume: skipping %s: %v", path, e)
		},
		func(line int, c types.Candidate) error {
			counts[c.Domain]++
			return nil
		})
	if err != nil {
		return nil, err
	}
	logging.Generate("resume: found %d existing candidates in %s (%d unreadable lines)", stats.Lines-stats.Skipped, path, stats.Skipped)
	return counts, nil
}

// RunFile opens the output stream and runs the generator over it. With resume
// set the stream is appended to and only the per-domain shortfall is
// generated; otherwise it starts empty.
func (g *Generator) RunFile(ctx context.Context, domains []types.Domain, path string, resume, durable bool) (*Report, error) {
	mode := jsonl.Truncate
	var existing map[string]int
	if resume {
		mode = jsonl.Append
		var err error
		if existing, err = CountExisting(ctx, path); err != nil {
			return nil, err
		}
	}

	w, err := jsonl.Open(path, mode, durable)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	return g.Run(ctx, domains, w, existing)
}
