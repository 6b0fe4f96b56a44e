// Package client talks to a running daemon over its Unix socket.
package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/wpprelay/internal/api"
	"github.com/matheus3301/wpprelay/internal/delivery"
	"github.com/matheus3301/wpprelay/internal/ingest"
	"github.com/matheus3301/wpprelay/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket. The connection is established
// lazily on the first call.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Status returns the daemon status report.
func (c *Client) Status(ctx context.Context) (api.StatusReport, error) {
	var out api.StatusReport
	err := c.call(ctx, api.MethodStatus, &emptypb.Empty{}, &out)
	return out, err
}

// ListConversations returns conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	in, err := api.ToStruct(map[string]int{"limit": limit, "offset": offset})
	if err != nil {
		return nil, err
	}
	var out struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	err = c.call(ctx, api.MethodListConversations, in, &out)
	return out.Conversations, err
}

// ListMessages returns the latest messages of a conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	in, err := api.ToStruct(map[string]any{"conversationId": conversationID, "limit": limit})
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	err = c.call(ctx, api.MethodListMessages, in, &out)
	return out.Messages, err
}

// SendMessage stores an outbound message.
func (c *Client) SendMessage(ctx context.Context, conversationID, body string) (model.Message, error) {
	in, err := api.ToStruct(map[string]string{"conversationId": conversationID, "body": body})
	if err != nil {
		return model.Message{}, err
	}
	var out model.Message
	err = c.call(ctx, api.MethodSendMessage, in, &out)
	return out, err
}

// IngestPayload submits a raw webhook payload, as if it came in over HTTP.
func (c *Client) IngestPayload(ctx context.Context, payload []byte) (ingest.Result, error) {
	var out ingest.Result
	err := c.call(ctx, api.MethodIngestPayload, wrapperspb.Bytes(payload), &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method string, in any, out any) error {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	return api.FromStruct(resp, out)
}

// Watcher receives the frames of one conversation.
type Watcher struct {
	stream grpc.ClientStream
}

// Watch opens a live stream for a conversation. The first frame is the
// connected acknowledgement. Cancel ctx to stop.
func (c *Client) Watch(ctx context.Context, conversationID string) (*Watcher, error) {
	stream, err := c.conn.NewStream(ctx, &api.RelayServiceDesc.Streams[0], api.MethodWatchConversation)
	if err != nil {
		return nil, fmt.Errorf("open watch: %w", err)
	}
	if err := stream.SendMsg(wrapperspb.String(conversationID)); err != nil {
		return nil, fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close send: %w", err)
	}
	return &Watcher{stream: stream}, nil
}

// Recv blocks for the next frame.
func (w *Watcher) Recv() (delivery.Frame, error) {
	st := &structpb.Struct{}
	if err := w.stream.RecvMsg(st); err != nil {
		return delivery.Frame{}, err
	}
	var f delivery.Frame
	if err := api.FromStruct(st, &f); err != nil {
		return delivery.Frame{}, err
	}
	return f, nil
}
