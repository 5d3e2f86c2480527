package oracle

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/tomyedwab/ocidb/oci"
)

// Message is a dequeued queue message.
type Message struct {
	// ID is the 16-byte message identifier as 32 upper-case hex digits.
	ID          string
	Correlation string
	Payload     []byte
}

type enqueueOptions struct {
	correlation string
	payload     []byte
}

// EnqueueOption configures a message being enqueued.
type EnqueueOption func(*enqueueOptions)

// WithCorrelation tags the message with a correlation identifier.
func WithCorrelation(id string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.correlation = id
	}
}

// WithPayload sets the RAW payload of the message.
func WithPayload(payload []byte) EnqueueOption {
	return func(o *enqueueOptions) {
		o.payload = payload
	}
}

func messageID(raw []byte) string {
	return strings.ToUpper(hex.EncodeToString(raw))
}

// Enqueue puts a message of payloadType on queue and commits. On failure
// the transaction is rolled back. It returns the message identifier.
func (s *session) Enqueue(queue, payloadType string, opts ...EnqueueOption) (string, error) {
	conn, err := s.handle()
	if err != nil {
		return "", err
	}
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	fail := func(err error, format string, args ...any) (string, error) {
		s.lib.Rollback(conn)
		s.logger.Error("Enqueue failed", "queue", queue, "error", err)
		return "", wrapNative(s.lib, KindExecutionFailed, err, "", format, args...)
	}

	ti, err := s.lib.TypeInfoGet(conn, payloadType, oci.TypeInfoType)
	if err != nil {
		return fail(err, "failed to describe payload type %s", payloadType)
	}
	defer s.lib.TypeInfoFree(ti)

	enq, err := s.lib.EnqueueCreate(ti, queue)
	if err != nil {
		return fail(err, "failed to open queue %s", queue)
	}
	defer s.lib.EnqueueFree(enq)

	msg, err := s.lib.MsgCreate(ti)
	if err != nil {
		return fail(err, "failed to create message")
	}
	defer s.lib.MsgFree(msg)

	if o.correlation != "" {
		if err := s.lib.MsgSetCorrelation(msg, o.correlation); err != nil {
			return fail(err, "failed to set correlation")
		}
	}
	if o.payload != nil {
		if err := s.lib.MsgSetRaw(msg, o.payload); err != nil {
			return fail(err, "failed to set payload")
		}
	}
	if err := s.lib.EnqueuePut(enq, msg); err != nil {
		return fail(err, "failed to enqueue on %s", queue)
	}
	if err := s.lib.Commit(conn); err != nil {
		return fail(err, "failed to commit enqueue on %s", queue)
	}
	raw, err := s.lib.MsgID(msg)
	if err != nil {
		return "", wrapNative(s.lib, KindExecutionFailed, err, "", "failed to read message id")
	}
	id := messageID(raw)
	s.logger.Debug("Message enqueued", "queue", queue, "msg_id", id)
	return id, nil
}

// Dequeue takes the next message of payloadType from queue and commits. An
// empty queue returns an error matching ErrQueueEmpty.
func (s *session) Dequeue(queue, payloadType string) (*Message, error) {
	conn, err := s.handle()
	if err != nil {
		return nil, err
	}
	fail := func(kind ErrorKind, err error, format string, args ...any) (*Message, error) {
		s.lib.Rollback(conn)
		return nil, wrapNative(s.lib, kind, err, "", format, args...)
	}

	ti, err := s.lib.TypeInfoGet(conn, payloadType, oci.TypeInfoType)
	if err != nil {
		return fail(KindExecutionFailed, err, "failed to describe payload type %s", payloadType)
	}
	defer s.lib.TypeInfoFree(ti)

	deq, err := s.lib.DequeueCreate(ti, queue)
	if err != nil {
		return fail(KindExecutionFailed, err, "failed to open queue %s", queue)
	}
	// The dequeued message is owned by the dequeue handle.
	defer s.lib.DequeueFree(deq)

	msg, err := s.lib.DequeueGet(deq)
	if err != nil {
		var oe *oci.Error
		if errors.As(err, &oe) && oe.Code == oci.CodeDequeueNoMessage {
			return fail(KindQueueEmpty, err, "queue %s is empty", queue)
		}
		s.logger.Error("Dequeue failed", "queue", queue, "error", err)
		return fail(KindExecutionFailed, err, "failed to dequeue from %s", queue)
	}
	raw, err := s.lib.MsgID(msg)
	if err != nil {
		return fail(KindExecutionFailed, err, "failed to read message id")
	}
	m := &Message{
		ID:          messageID(raw),
		Correlation: s.lib.MsgCorrelation(msg),
		Payload:     append([]byte(nil), s.lib.MsgRaw(msg)...),
	}
	if err := s.lib.Commit(conn); err != nil {
		return fail(KindExecutionFailed, err, "failed to commit dequeue from %s", queue)
	}
	s.logger.Debug("Message dequeued", "queue", queue, "msg_id", m.ID)
	return m, nil
}
