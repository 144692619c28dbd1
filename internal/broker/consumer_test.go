package broker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/metrics"
	"github.com/xelth-com/odoobridge/internal/models"
)

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

// recorder implements amqp.Acknowledger
type recorder struct {
	mu  sync.Mutex
	log map[uint64]*ackRecord
}

func (r *recorder) rec(tag uint64) *ackRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log == nil {
		r.log = make(map[uint64]*ackRecord)
	}
	if r.log[tag] == nil {
		r.log[tag] = &ackRecord{}
	}
	return r.log[tag]
}

func (r *recorder) Ack(tag uint64, multiple bool) error {
	r.rec(tag).acked = true
	return nil
}

func (r *recorder) Nack(tag uint64, multiple, requeue bool) error {
	rec := r.rec(tag)
	rec.nacked = true
	rec.requeue = requeue
	return nil
}

func (r *recorder) Reject(tag uint64, requeue bool) error {
	return r.Nack(tag, false, requeue)
}

type enqueueCall struct {
	key     export.Key
	localID int64
	payload map[string]interface{}
}

type fakeQueue struct {
	calls []enqueueCall
	err   error
}

func (f *fakeQueue) Enqueue(ctx context.Context, key export.Key, localID int64, payload map[string]interface{}) (*models.SyncQueue, bool, error) {
	f.calls = append(f.calls, enqueueCall{key: key, localID: localID, payload: payload})
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.SyncQueue{ID: int64(len(f.calls))}, true, nil
}

func newTestConsumer(q *fakeQueue) *Consumer {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Consumer{target: q, metrics: metrics.New(), log: log}
}

func deliver(c *Consumer, ack *recorder, tag uint64, body string) *ackRecord {
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)})
	return ack.rec(tag)
}

func TestValidMessageIsEnqueuedAndAcked(t *testing.T) {
	q := &fakeQueue{}
	c := newTestConsumer(q)
	ack := &recorder{}

	rec := deliver(c, ack, 1, `{"entity_type":"order","remote_model":"sale.order","local_id":42,"payload":{"reason":"placed"}}`)

	require.Len(t, q.calls, 1)
	assert.Equal(t, export.Key{EntityType: "order", RemoteModel: "sale.order", Variant: "default"}, q.calls[0].key)
	assert.Equal(t, int64(42), q.calls[0].localID)
	assert.Equal(t, "placed", q.calls[0].payload["reason"])
	assert.True(t, rec.acked)
	assert.False(t, rec.nacked)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.BrokerMessages.WithLabelValues("queued")))
}

func TestVariantIsKept(t *testing.T) {
	q := &fakeQueue{}
	c := newTestConsumer(q)

	deliver(c, &recorder{}, 1, `{"entity_type":"user","remote_model":"res.partner","export_variant":"company","local_id":7}`)

	require.Len(t, q.calls, 1)
	assert.Equal(t, "company", q.calls[0].key.Variant)
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	bodies := map[string]string{
		"not json":      `{"entity_type":`,
		"missing model": `{"entity_type":"order","local_id":1}`,
		"zero id":       `{"entity_type":"order","remote_model":"sale.order","local_id":0}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			q := &fakeQueue{}
			c := newTestConsumer(q)

			rec := deliver(c, &recorder{}, 9, body)

			assert.Empty(t, q.calls)
			assert.True(t, rec.nacked)
			assert.False(t, rec.requeue)
			assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.BrokerMessages.WithLabelValues("malformed")))
		})
	}
}

func TestUnknownExporterIsDropped(t *testing.T) {
	q := &fakeQueue{err: export.ErrUnknownExporter}
	c := newTestConsumer(q)

	rec := deliver(c, &recorder{}, 3, `{"entity_type":"coupon","remote_model":"x.coupon","local_id":1}`)

	assert.True(t, rec.nacked)
	assert.False(t, rec.requeue)
}

func TestStorageFailureIsRequeued(t *testing.T) {
	q := &fakeQueue{err: errors.New("connection refused")}
	c := newTestConsumer(q)

	rec := deliver(c, &recorder{}, 4, `{"entity_type":"order","remote_model":"sale.order","local_id":1}`)

	assert.True(t, rec.nacked)
	assert.True(t, rec.requeue)
	assert.False(t, rec.acked)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.BrokerMessages.WithLabelValues("error")))
}
