package api_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpprelay/internal/api"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/changefeed"
	"github.com/matheus3301/wpprelay/internal/ingest"
	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/notify"
	"github.com/matheus3301/wpprelay/internal/registry"
	"github.com/matheus3301/wpprelay/internal/store"
	"github.com/matheus3301/wpprelay/internal/tui/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type env struct {
	client *client.Client
	reg    *registry.Registry
	svc    *api.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	// Use a short path to stay under the Unix socket path limit.
	tmpDir, err := os.MkdirTemp("/tmp", "wpprelay-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	socketPath := filepath.Join(tmpDir, "d.sock")

	db, err := store.Open(filepath.Join(tmpDir, "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	feed := changefeed.New()
	st := store.New(db, feed, nil)
	reg := registry.New(notify.New(feed, nil), nil)
	b := bus.New()
	svc := api.NewService(api.ServiceDeps{
		Instance:    "test",
		StoreDriver: db.Driver(),
		Ingester:    ingest.New(st, b, ingest.Retry{}, nil),
		Reader:      st,
		Registry:    reg,
		Bus:         b,
		Counter:     bus.NewCounter(),
	})

	srv := grpc.NewServer()
	api.RegisterRelayServer(srv, svc)
	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		svc.Close()
		srv.GracefulStop()
		reg.Close()
		_ = db.Close()
	})
	return &env{client: c, reg: reg, svc: svc}
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	report, err := e.client.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Instance != "test" || report.StoreDriver != store.DriverSQLite || !report.StoreOK {
		t.Errorf("report = %+v, want instance test on healthy sqlite", report)
	}
	if report.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", report.PID, os.Getpid())
	}
}

func TestIngestAndQuery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.client.IngestPayload(ctx, []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"w1","id":"m1","text":{"body":"hi"}}]}}]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Messages != 1 {
		t.Errorf("result = %+v, want 1 message", res)
	}

	convs, err := e.client.ListConversations(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].ConversationID != "w1" || convs[0].LastMessageBody != "hi" {
		t.Errorf("conversations = %+v", convs)
	}

	sent, err := e.client.SendMessage(ctx, "w1", "hello back")
	if err != nil {
		t.Fatal(err)
	}
	if !sent.FromMe || sent.Status != model.StatusSent {
		t.Errorf("sent = %+v, want fromMe sent", sent)
	}

	msgs, err := e.client.ListMessages(ctx, "w1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != sent.ID {
		t.Errorf("messages = %+v, want [m1 %s]", msgs, sent.ID)
	}
}

func TestErrorCodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.IngestPayload(ctx, []byte(`{"nothing":true}`))
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("malformed payload code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
	_, err = e.client.SendMessage(ctx, "", "x")
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("invalid send code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
	_, err = e.client.ListMessages(ctx, "", 10)
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("missing conversation code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
}

func TestWatchConversation(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := e.client.Watch(ctx, "123")
	if err != nil {
		t.Fatal(err)
	}
	f, err := w.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if f.Status != "connected" || f.ConversationID != "123" {
		t.Fatalf("first frame = %+v, want connected 123", f)
	}

	if _, err := e.client.IngestPayload(ctx, []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"456","id":"x","text":{"body":"no"}}]}}]}]}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.client.IngestPayload(ctx, []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"123","id":"y","text":{"body":"yes"}}]}}]}]}`)); err != nil {
		t.Fatal(err)
	}

	f, err = w.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if f.Message == nil || f.Message.ID != "y" {
		t.Fatalf("frame = %+v, want message y", f)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for e.reg.Count("123") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("registry count = %d after cancel, want 0", e.reg.Count("123"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseEndsWatches(t *testing.T) {
	e := newEnv(t)
	w, err := e.client.Watch(context.Background(), "w1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Recv(); err != nil {
		t.Fatal(err)
	}

	e.svc.Close()

	done := make(chan error, 1)
	go func() {
		_, err := w.Recv()
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Recv() after Close returned a frame, want end of stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after Close")
	}
}
