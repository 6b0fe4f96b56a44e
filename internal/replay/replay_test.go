package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpprelay/internal/ingest"
	"github.com/matheus3301/wpprelay/internal/model"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeSubmitter) IngestPayload(_ context.Context, payload []byte) (ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := string(payload)
	f.seen = append(f.seen, s)
	if strings.Contains(s, "bad") {
		return ingest.Result{}, model.ErrMalformedPayload
	}
	return ingest.Result{Messages: 1, Unmatched: strings.Count(s, "ghost"), Stale: strings.Count(s, "again")}, nil
}

func (f *fakeSubmitter) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.json", "b")
	write(t, dir, "a.json", "a")
	write(t, dir, "notes.txt", "x")
	write(t, dir, ".hidden.json", "h")
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0700); err != nil {
		t.Fatal(err)
	}
	extra := write(t, t.TempDir(), "single.txt", "s")

	files, err := Collect([]string{dir, extra})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json"), extra}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestCollectMissingPath(t *testing.T) {
	if _, err := Collect([]string{filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Error("Collect() expected error for missing path")
	}
}

func TestFilesContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		write(t, dir, "1.json", "ok ghost"),
		write(t, dir, "2.json", "bad"),
		filepath.Join(dir, "gone.json"),
		write(t, dir, "3.json", "ok again"),
	}

	sub := &fakeSubmitter{}
	var outcomes []Outcome
	sum := Files(context.Background(), sub, files, func(o Outcome) { outcomes = append(outcomes, o) })

	if sum.Files != 4 || sum.Failed != 2 || sum.Messages != 2 || sum.Unmatched != 1 || sum.Stale != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(outcomes) != 4 {
		t.Fatalf("got %d outcomes, want 4", len(outcomes))
	}
	if !errors.Is(outcomes[1].Err, model.ErrMalformedPayload) {
		t.Errorf("outcome[1].Err = %v, want malformed payload", outcomes[1].Err)
	}
	if outcomes[2].Err == nil {
		t.Error("missing file should fail")
	}
	if got := sub.payloads(); len(got) != 3 {
		t.Errorf("submitted %d payloads, want 3", len(got))
	}
}

func TestFilesStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := Files(ctx, &fakeSubmitter{}, []string{write(t, dir, "1.json", "ok")}, nil)
	if sum.Files != 0 {
		t.Errorf("files = %d after cancel, want 0", sum.Files)
	}
}

func TestWatcherSubmitsNewFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &fakeSubmitter{}
	outcomes := make(chan Outcome, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, sub, func(o Outcome) { outcomes <- o }) }()

	write(t, dir, "skip.txt", "ignored")
	path := write(t, dir, "new.json", "ok")

	select {
	case o := <-outcomes:
		if o.Path != path || o.Err != nil {
			t.Errorf("outcome = %+v", o)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for replay of new file")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := sub.payloads(); len(got) != 1 {
		t.Errorf("submitted %v, want one payload", got)
	}
}
