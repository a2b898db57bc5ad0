package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-admin/internal/shared/eventbus"
)

func TestDecodeMessage(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := decodeMessage(redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]interface{}{
			"id":        "evt-abc",
			"type":      eventbus.EventApplicationReviewed,
			"timestamp": ts.Format(time.RFC3339Nano),
			"audience":  `["usr-1","usr-2"]`,
			"data":      `{"status":"approved"}`,
		},
	})
	assert.Equal(t, "evt-abc", ev.ID)
	assert.Equal(t, eventbus.EventApplicationReviewed, ev.Type)
	assert.True(t, ts.Equal(ev.Timestamp))
	assert.Equal(t, []string{"usr-1", "usr-2"}, ev.Audience)
	assert.Equal(t, "approved", ev.Data["status"])

	bare := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Equal(t, "1-0", bare.ID)
	assert.Empty(t, bare.Type)
}

func TestPublishAndSubscribe(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	s := NewStoreFromClient(client)
	s.stream = "test_domain_events:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(context.Background(), s.stream) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch, err := s.Subscribe(ctx)
	require.NoError(t, err)
	// 等待 XREAD 阻塞就绪
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, s.Publish(ctx, &eventbus.Event{Type: eventbus.EventApartmentRented, Audience: []string{"usr-9"}}))

	select {
	case ev := <-ch:
		assert.Equal(t, eventbus.EventApartmentRented, ev.Type)
		assert.True(t, ev.VisibleTo("usr-9"))
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}

	recent, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}
