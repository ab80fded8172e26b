package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanBroker struct {
	published map[string][]byte
	ch        chan []byte
}

func (b *chanBroker) Publish(_ context.Context, channel string, message interface{}) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.published[channel] = raw
	return nil
}

func (b *chanBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func (b *chanBroker) Close() error { return nil }

func TestAdapterPublishesRawJSON(t *testing.T) {
	b := &chanBroker{published: map[string][]byte{}}
	adapter := NewBrokerAdapter(b)

	require.NoError(t, adapter.Publish(context.Background(), "payment.created", []byte(`{"amount":"150.00"}`)))
	assert.JSONEq(t, `{"amount":"150.00"}`, string(b.published["payment.created"]))
}

func TestAdapterKeepsDeliveringAfterHandlerError(t *testing.T) {
	b := &chanBroker{ch: make(chan []byte, 2)}
	adapter := NewBrokerAdapter(b)

	got := make(chan string, 2)
	require.NoError(t, adapter.Subscribe(context.Background(), "payment.created", func(msg []byte) error {
		got <- string(msg)
		return errors.New("handler failed")
	}))

	b.ch <- []byte("first")
	b.ch <- []byte("second")
	close(b.ch)

	for _, want := range []string{"first", "second"} {
		select {
		case msg := <-got:
			assert.Equal(t, want, msg)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
