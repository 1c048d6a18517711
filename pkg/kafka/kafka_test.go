package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/products"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	err      error
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	writer := &fakeWriter{}
	p := newProducer(writer, "ingredient-events", logging.Silent())

	evt := events.New(events.TypeAliasApplied, "catalog-1", events.AliasApplied{AliasID: "a1", CatalogID: "catalog-1", Applied: 3})
	require.NoError(t, p.Publish(context.Background(), evt))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "ingredient-events", msg.Topic)
	assert.Equal(t, "catalog-1", string(msg.Key))
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte(events.TypeAliasApplied)})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.ID, decoded["id"])
	assert.Equal(t, float64(3), decoded["payload"].(map[string]any)["applied"])
}

func TestProducerPublishEmptyAndFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(writer, "ingredient-events", logging.Silent())

	require.NoError(t, p.Publish(context.Background()))

	err := p.Publish(context.Background(), events.New(events.TypeMatchResolved, "p1", events.MatchResolved{}))
	require.Error(t, err)
	assert.Equal(t, errkind.Transient, errkind.Of(err))
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, kafka.Gzip, compressionCodec("gzip"))
	assert.Equal(t, kafka.Zstd, compressionCodec("zstd"))
	assert.Equal(t, kafka.Compression(0), compressionCodec("none"))
	assert.Equal(t, kafka.Snappy, compressionCodec(""))
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeUpdater struct {
	mu     sync.Mutex
	errs   map[string]error
	inputs []products.UpdateIngredientsInput
}

func (u *fakeUpdater) UpdateIngredients(ctx context.Context, input products.UpdateIngredientsInput) (*products.UpdateResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inputs = append(u.inputs, input)
	if err := u.errs[input.ProductID]; err != nil {
		return nil, err
	}
	return &products.UpdateResult{ProductID: input.ProductID, SavedList: input.Ingredients}, nil
}

func changeMessage(t *testing.T, offset int64, key string, change events.IngredientsChanged) kafka.Message {
	t.Helper()
	data, err := json.Marshal(events.New(events.TypeIngredientsChanged, key, change))
	require.NoError(t, err)
	return kafka.Message{Topic: "product-ingredients", Offset: offset, Key: []byte(key), Value: data}
}

func TestConsumerHandle(t *testing.T) {
	updater := &fakeUpdater{errs: map[string]error{
		"missing": errkind.New(errkind.NotFound, "product not found"),
		"busy":    errkind.New(errkind.Transient, "connection reset"),
	}}

	tests := []struct {
		name      string
		msg       kafka.Message
		committed bool
	}{
		{"applied", changeMessage(t, 1, "p1", events.IngredientsChanged{ProductID: "p1", Ingredients: []string{"Aqua"}}), true},
		{"key fills product id", changeMessage(t, 2, "p2", events.IngredientsChanged{Text: "Aqua, Glycerin"}), true},
		{"unknown product dropped", changeMessage(t, 3, "missing", events.IngredientsChanged{ProductID: "missing", Text: "Aqua"}), true},
		{"retryable left uncommitted", changeMessage(t, 4, "busy", events.IngredientsChanged{ProductID: "busy", Text: "Aqua"}), false},
		{"malformed dropped", kafka.Message{Offset: 5, Value: []byte("{not json")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			c := newConsumer(reader, "product-ingredients", logging.Silent(), updater)

			assert.Equal(t, tt.committed, c.handle(context.Background(), tt.msg))
			if tt.committed {
				assert.Equal(t, []int64{tt.msg.Offset}, reader.commits())
			} else {
				assert.Empty(t, reader.commits())
			}
		})
	}

	assert.Equal(t, "p2", updater.inputs[1].ProductID)
	assert.Equal(t, "Aqua, Glycerin", updater.inputs[1].Text)
}

func TestConsumerRejectsOtherEventTypes(t *testing.T) {
	updater := &fakeUpdater{}
	data, err := json.Marshal(events.New(events.TypeAliasApplied, "x", events.AliasApplied{}))
	require.NoError(t, err)

	c := newConsumer(&fakeReader{}, "product-ingredients", logging.Silent(), updater)
	err = c.apply(context.Background(), kafka.Message{Value: data})
	assert.Equal(t, errkind.InvalidArgument, errkind.Of(err))
	assert.Empty(t, updater.inputs)
}

func TestConsumerStartStop(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		changeMessage(t, 10, "p1", events.IngredientsChanged{Text: "Aqua"}),
		changeMessage(t, 11, "p2", events.IngredientsChanged{Text: "Glycerin"}),
	}}
	c := newConsumer(reader, "product-ingredients", logging.Silent(), &fakeUpdater{})

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())
	assert.Equal(t, []int64{10, 11}, reader.commits())
}
