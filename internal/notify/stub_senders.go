package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// RecordingSender captures sent messages. Used in tests and as a placeholder
// transport for methods with no production integration yet (postal mail).
type RecordingSender struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

// NewRecordingSender creates an in-memory sender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// FailWith makes every subsequent Send return the given error.
func (s *RecordingSender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Send records the message.
func (s *RecordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (s *RecordingSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LogSender writes the message to the log instead of an external transport.
// Stands in for email/SMS gateways in environments without credentials.
type LogSender struct {
	method string
	logger *zap.Logger
}

// NewLogSender creates a log-backed sender for one delivery method.
func NewLogSender(method string, logger *zap.Logger) *LogSender {
	return &LogSender{method: method, logger: logger}
}

// Send logs the rendered message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("Notification sent",
		zap.String("method", s.method),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
	)
	return nil
}
