package audit

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"

	"github.com/antonkrylov/simrelay/internal/relay"
)

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=./mocks/publisher_mock.go -package=mocks . Publisher

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes every event as a protobuf-encoded Struct on
// <subject>.<kind>, e.g. simrelay.events.success.
type NATSSink struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
	conn    *nats.Conn
}

func NewNATSSink(pub Publisher, subject string, logger *slog.Logger) *NATSSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{pub: pub, subject: strings.TrimSuffix(subject, "."), logger: logger}
}

// DialNATS connects to url and returns a sink that owns the connection.
func DialNATS(url, subject string, logger *slog.Logger) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("simrelay"))
	if err != nil {
		return nil, err
	}
	s := NewNATSSink(conn, subject, logger)
	s.conn = conn
	return s, nil
}

// Observe never blocks the relay on broker trouble; failures are logged.
func (s *NATSSink) Observe(_ context.Context, ev relay.Event) {
	msg, err := EncodeEvent(ev)
	if err != nil {
		s.logger.Warn("audit event encode failed", "err", err)
		return
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		s.logger.Warn("audit event marshal failed", "err", err)
		return
	}
	subject := s.subject + "." + ev.Result.Kind.String()
	if err := s.pub.Publish(subject, payload); err != nil {
		s.logger.Warn("audit publish failed", "subject", subject, "err", err)
	}
}

// Close drains the connection when the sink dialled it.
func (s *NATSSink) Close() {
	if s.conn != nil {
		_ = s.conn.Drain()
		s.conn.Close()
	}
}
