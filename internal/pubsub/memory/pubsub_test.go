package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBeforeSubscribeIsDelivered(t *testing.T) {
	ps := NewPubSub(logger.NewNopLogger())
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"payment_id":"pay_1"}`))
	require.NoError(t, ps.Publish(ctx, "payments", msg))

	ch, err := ps.Subscribe(ctx, "payments")
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, msg.UUID, got.UUID)
		assert.JSONEq(t, `{"payment_id":"pay_1"}`, string(got.Payload))
		got.Ack()
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}
