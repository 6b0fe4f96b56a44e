package api

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/delivery"
	"github.com/matheus3301/wpprelay/internal/ingest"
	"github.com/matheus3301/wpprelay/internal/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Ingester accepts payloads and outbound messages.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte) (ingest.Result, error)
	Send(ctx context.Context, conversationID, body string) (model.Message, error)
}

// Reader answers queries.
type Reader interface {
	ListConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	Ping(ctx context.Context) error
}

// Registry is the subscription registry as seen by the control API.
type Registry interface {
	delivery.Registrar
	Topics() int
}

// StatusReport is the payload of the Status call.
type StatusReport struct {
	Instance    string           `json:"instance"`
	PID         int              `json:"pid"`
	UptimeMs    int64            `json:"uptimeMs"`
	StoreDriver string           `json:"storeDriver"`
	StoreOK     bool             `json:"storeOk"`
	Topics      int              `json:"topics"`
	Events      map[string]int64 `json:"events,omitempty"`
}

// ServiceDeps groups what the control API needs.
type ServiceDeps struct {
	Instance    string
	StoreDriver string
	Ingester    Ingester
	Reader      Reader
	Registry    Registry
	Bus         *bus.Bus
	Counter     *bus.Counter
	Delivery    delivery.Options
	Logger      *zap.Logger
}

// Service implements RelayServer.
type Service struct {
	deps      ServiceDeps
	startedAt time.Time
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates the control API service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:      deps,
		startedAt: time.Now(),
		logger:    logger.Named("api"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close ends every open watch stream so a graceful stop can finish.
func (s *Service) Close() {
	s.cancel()
}

func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report := StatusReport{
		Instance:    s.deps.Instance,
		PID:         os.Getpid(),
		UptimeMs:    time.Since(s.startedAt).Milliseconds(),
		StoreDriver: s.deps.StoreDriver,
		StoreOK:     s.deps.Reader.Ping(ctx) == nil,
		Topics:      s.deps.Registry.Topics(),
	}
	if s.deps.Counter != nil {
		report.Events = s.deps.Counter.Snapshot()
	}
	return respond(report)
}

type listConversationsRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (s *Service) ListConversations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listConversationsRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}
	convs, err := s.deps.Reader.ListConversations(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus("list conversations", err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return respond(map[string]any{"conversations": convs})
}

type listMessagesRequest struct {
	ConversationID string `json:"conversationId"`
	Limit          int    `json:"limit"`
}

func (s *Service) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listMessagesRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversationId is required")
	}
	if req.Limit <= 0 {
		req.Limit = 200
	}
	msgs, err := s.deps.Reader.ListMessages(ctx, req.ConversationID, req.Limit)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return respond(map[string]any{"messages": msgs})
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Body           string `json:"body"`
}

func (s *Service) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sendMessageRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	msg, err := s.deps.Ingester.Send(ctx, req.ConversationID, req.Body)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	return respond(msg)
}

func (s *Service) IngestPayload(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	res, err := s.deps.Ingester.Ingest(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus("ingest payload", err)
	}
	return respond(res)
}

// WatchConversation runs a delivery session over the stream. It sends the
// same frames as the websocket endpoint.
func (s *Service) WatchConversation(in *wrapperspb.StringValue, stream grpc.ServerStream) error {
	conversationID := in.GetValue()
	if conversationID == "" {
		return grpcstatus.Error(codes.InvalidArgument, "conversation id is required")
	}

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	conn := &streamConn{stream: stream, done: stream.Context().Done()}
	sess := delivery.New(conversationID, conn, s.deps.Registry, s.deps.Delivery, s.deps.Bus, s.logger)
	if err := sess.Run(ctx); err != nil {
		return toStatus("watch", err)
	}
	return nil
}

// streamConn adapts a server stream to delivery.Conn.
type streamConn struct {
	stream grpc.ServerStream
	done   <-chan struct{}
}

func (c *streamConn) Send(_ context.Context, f delivery.Frame) error {
	st, err := ToStruct(f)
	if err != nil {
		return err
	}
	return c.stream.SendMsg(st)
}

func (c *streamConn) Done() <-chan struct{} { return c.done }

// Close is a no-op: the stream ends when the handler returns.
func (c *streamConn) Close(delivery.Reason) error { return nil }

func respond(v any) (*structpb.Struct, error) {
	st, err := ToStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return st, nil
}

func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, model.ErrMalformedPayload), errors.Is(err, ingest.ErrInvalidMessage):
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, model.ErrStoreUnavailable):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.Is(err, model.ErrSessionSend):
		return grpcstatus.Errorf(codes.ResourceExhausted, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
