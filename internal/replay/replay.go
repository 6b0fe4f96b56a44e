// Package replay submits saved webhook payload files to a running daemon.
package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matheus3301/wpprelay/internal/ingest"
)

// Submitter hands one payload to the daemon.
type Submitter interface {
	IngestPayload(ctx context.Context, payload []byte) (ingest.Result, error)
}

// Outcome is the result of replaying one file.
type Outcome struct {
	Path   string        `json:"path"`
	Result ingest.Result `json:"result"`
	Err    error         `json:"-"`
}

// Summary totals a replay run.
type Summary struct {
	Files     int `json:"files"`
	Failed    int `json:"failed"`
	Messages  int `json:"messages"`
	Statuses  int `json:"statuses"`
	Unmatched int `json:"unmatched"`
	Stale     int `json:"stale"`
}

func (s *Summary) add(o Outcome) {
	s.Files++
	if o.Err != nil {
		s.Failed++
		return
	}
	s.Messages += o.Result.Messages
	s.Statuses += o.Result.Statuses
	s.Unmatched += o.Result.Unmatched
	s.Stale += o.Result.Stale
}

// Collect expands paths into payload files. Files are taken as given;
// directories contribute their *.json entries in name order.
func Collect(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() && isPayload(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, filepath.Join(p, n))
		}
	}
	return out, nil
}

func isPayload(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json") && !strings.HasPrefix(name, ".")
}

// Files submits every file in order. A failing file is reported and the run
// goes on; only ctx cancellation stops it early.
func Files(ctx context.Context, sub Submitter, files []string, report func(Outcome)) Summary {
	var sum Summary
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		o := submit(ctx, sub, f)
		sum.add(o)
		if report != nil {
			report(o)
		}
	}
	return sum
}

func submit(ctx context.Context, sub Submitter, path string) Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return Outcome{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	res, err := sub.IngestPayload(ctx, data)
	if err != nil {
		return Outcome{Path: path, Err: err}
	}
	return Outcome{Path: path, Result: res}
}
