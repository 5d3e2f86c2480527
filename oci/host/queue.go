package host

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tomyedwab/ocidb/oci"
)

type enqueueCtx struct {
	typ   *typeInfo
	queue string
}

type dequeueCtx struct {
	typ   *typeInfo
	queue string
	msg   string // handle of the last dequeued message
}

type message struct {
	typ         *typeInfo
	id          []byte
	correlation string
	payload     []byte
}

type queuedMessage struct {
	Seq         int64  `db:"seq"`
	MsgID       []byte `db:"msgid"`
	Correlation string `db:"correlation"`
	Payload     []byte `db:"payload"`
}

// openQueue checks that queue exists and carries payloads of type t.
func (h *Host) openQueue(t oci.TypeInfo, queue string) (*typeInfo, string, error) {
	ti, err := lookup[*typeInfo](h, string(t), "type info")
	if err != nil {
		return nil, "", err
	}
	name := normalizeName(queue)
	var q queueRecord
	err = h.db.Get(&q, "SELECT * FROM oci_queues WHERE name = $1", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", serverError(oraNoSuchQueue, "QUEUE %s does not exist", name)
	}
	if err != nil {
		return nil, "", sqlError(nil, err)
	}
	if q.PayloadType != ti.name {
		return nil, "", serverError(oraPayloadMismatch, "user_data type and queue type do not match")
	}
	return ti, name, nil
}

func (h *Host) EnqueueCreate(t oci.TypeInfo, queue string) (oci.Enqueue, error) {
	ti, name, err := h.openQueue(t, queue)
	if err != nil {
		return "", err
	}
	return oci.Enqueue(h.register(&enqueueCtx{typ: ti, queue: name})), nil
}

func (h *Host) EnqueueFree(e oci.Enqueue) error {
	if _, err := lookup[*enqueueCtx](h, string(e), "enqueue"); err != nil {
		return err
	}
	h.unregister(string(e))
	return nil
}

// EnqueuePut inserts the message inside the session transaction; the caller
// commits or rolls back.
func (h *Host) EnqueuePut(e oci.Enqueue, m oci.Msg) error {
	enq, err := lookup[*enqueueCtx](h, string(e), "enqueue")
	if err != nil {
		return err
	}
	msg, err := lookup[*message](h, string(m), "message")
	if err != nil {
		return err
	}
	if msg.typ.name != enq.typ.name {
		return serverError(oraPayloadMismatch, "user_data type and queue type do not match")
	}

	s := enq.typ.sess
	ctx, done := s.call()
	defer done()
	if err := s.begin(ctx); err != nil {
		return err
	}
	id := uuid.New()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO oci_queue_messages (msgid, queue, correlation, payload, enq_time)
		VALUES ($1, $2, $3, $4, $5)`,
		id[:], enq.queue, msg.correlation, msg.payload, time.Now().UnixMicro())
	if err != nil {
		return sqlError(ctx, err)
	}
	msg.id = id[:]
	return nil
}

func (h *Host) DequeueCreate(t oci.TypeInfo, queue string) (oci.Dequeue, error) {
	ti, name, err := h.openQueue(t, queue)
	if err != nil {
		return "", err
	}
	return oci.Dequeue(h.register(&dequeueCtx{typ: ti, queue: name})), nil
}

func (h *Host) DequeueFree(d oci.Dequeue) error {
	deq, err := lookup[*dequeueCtx](h, string(d), "dequeue")
	if err != nil {
		return err
	}
	if deq.msg != "" {
		h.unregister(deq.msg)
	}
	h.unregister(string(d))
	return nil
}

// DequeueGet removes the oldest message of the queue inside the session
// transaction.
func (h *Host) DequeueGet(d oci.Dequeue) (oci.Msg, error) {
	deq, err := lookup[*dequeueCtx](h, string(d), "dequeue")
	if err != nil {
		return "", err
	}
	s := deq.typ.sess
	ctx, done := s.call()
	defer done()
	if err := s.begin(ctx); err != nil {
		return "", err
	}

	var qm queuedMessage
	err = s.conn.GetContext(ctx, &qm, `
		SELECT seq, msgid, correlation, payload FROM oci_queue_messages
		WHERE queue = $1 ORDER BY seq LIMIT 1`, deq.queue)
	if errors.Is(err, sql.ErrNoRows) {
		return "", serverError(oci.CodeDequeueNoMessage, "timeout or end-of-fetch during message dequeue from %s", deq.queue)
	}
	if err != nil {
		return "", sqlError(ctx, err)
	}
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM oci_queue_messages WHERE seq = $1", qm.Seq); err != nil {
		return "", sqlError(ctx, err)
	}

	if deq.msg != "" {
		h.unregister(deq.msg)
	}
	deq.msg = h.register(&message{
		typ:         deq.typ,
		id:          qm.MsgID,
		correlation: qm.Correlation,
		payload:     qm.Payload,
	})
	return oci.Msg(deq.msg), nil
}

func (h *Host) MsgCreate(t oci.TypeInfo) (oci.Msg, error) {
	ti, err := lookup[*typeInfo](h, string(t), "type info")
	if err != nil {
		return "", err
	}
	return oci.Msg(h.register(&message{typ: ti})), nil
}

func (h *Host) MsgFree(m oci.Msg) error {
	if _, err := lookup[*message](h, string(m), "message"); err != nil {
		return err
	}
	h.unregister(string(m))
	return nil
}

func (h *Host) MsgSetCorrelation(m oci.Msg, correlation string) error {
	msg, err := lookup[*message](h, string(m), "message")
	if err != nil {
		return err
	}
	msg.correlation = correlation
	return nil
}

func (h *Host) MsgCorrelation(m oci.Msg) string {
	msg, err := lookup[*message](h, string(m), "message")
	if err != nil {
		return ""
	}
	return msg.correlation
}

func (h *Host) MsgSetRaw(m oci.Msg, payload []byte) error {
	msg, err := lookup[*message](h, string(m), "message")
	if err != nil {
		return err
	}
	msg.payload = append([]byte(nil), payload...)
	return nil
}

func (h *Host) MsgRaw(m oci.Msg) []byte {
	msg, err := lookup[*message](h, string(m), "message")
	if err != nil {
		return nil
	}
	return msg.payload
}

func (h *Host) MsgID(m oci.Msg) ([]byte, error) {
	msg, err := lookup[*message](h, string(m), "message")
	if err != nil {
		return nil, err
	}
	if len(msg.id) == 0 {
		return nil, driverError(drvNotPrepared, "message has not been enqueued")
	}
	return msg.id, nil
}
