package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Request is the wire shape of one gateway call.
type Request struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Response is the wire shape of one gateway reply. Exactly one of Result and
// Error is set.
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// Server serves gateway calls over NATS request/reply. Requests are handled
// concurrently; each reply carries either the tool's success payload or a
// structured error.
type Server struct {
	gateway         *Gateway
	conn            *nats.Conn
	subject         string
	requestTimeout  time.Duration
	rebuildInterval time.Duration
	logger          *zap.Logger

	sub  *nats.Subscription
	stop chan struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRequestTimeout bounds how long one gateway call may run. Defaults to
// one minute, comfortably above the executor's own call timeout.
func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.requestTimeout = timeout
		}
	}
}

// WithPeriodicRebuild rebuilds the catalog on the given interval while the
// server runs, in addition to on-demand sync_catalog calls.
func WithPeriodicRebuild(interval time.Duration) ServerOption {
	return func(s *Server) {
		if interval > 0 {
			s.rebuildInterval = interval
		}
	}
}

// NewServer creates a gateway server over an established NATS connection.
func NewServer(g *Gateway, conn *nats.Conn, subject string, logger *zap.Logger, opts ...ServerOption) (*Server, error) {
	if g == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	s := &Server{
		gateway:        g,
		conn:           conn,
		subject:        subject,
		requestTimeout: time.Minute,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start subscribes to the gateway subject. Members of the same queue group
// share the request load.
func (s *Server) Start() error {
	sub, err := s.conn.QueueSubscribe(s.subject, "talaria-gateway", func(msg *nats.Msg) {
		go s.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.stop = make(chan struct{})

	if s.rebuildInterval > 0 {
		go s.rebuildLoop()
	}

	s.logger.Info("Gateway serving", zap.String("subject", s.subject))
	return nil
}

// Stop unsubscribes from the gateway subject and halts the rebuild loop.
func (s *Server) Stop() error {
	if s.sub == nil {
		return nil
	}
	close(s.stop)
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	s.sub = nil
	return nil
}

func (s *Server) rebuildLoop() {
	ticker := time.NewTicker(s.rebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			built := s.gateway.builder.Build()
			s.logger.Debug("Periodic catalog rebuild",
				zap.Int("nodes", built.Size()),
				zap.Int("skipped", len(built.Skipped())))
		case <-s.stop:
			return
		}
	}
}

func (s *Server) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.reply(msg, Response{Error: &ErrorBody{
			ErrorKind: "ParamValidationError",
			Message:   "request is not a valid tool call",
		}})
		return
	}

	result, err := s.gateway.Call(ctx, req.Tool, req.Arguments)
	if err != nil {
		body := ErrorBodyFor(err)
		s.reply(msg, Response{Error: &body})
		return
	}
	s.reply(msg, Response{Result: result})
}

func (s *Server) reply(msg *nats.Msg, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to marshal gateway response", zap.Error(err))
		data = []byte(`{"error":{"errorKind":"ExecutionFailure","message":"response serialization failed"}}`)
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("Failed to send gateway response", zap.Error(err))
	}
}
