/**
 * @description
 * QuoteStreamHub multiplexes Redis pub/sub quote updates to many SSE clients
 * without spawning a Redis subscription per HTTP request.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type QuoteStreamHub struct {
	redis       *redis.Client
	channelName string

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

func NewQuoteStreamHub(rdb *redis.Client, channel string) *QuoteStreamHub {
	hub := &QuoteStreamHub{
		redis:       rdb,
		channelName: channel,
		subscribers: make(map[chan []byte]struct{}),
	}

	go hub.run()

	return hub
}

func (h *QuoteStreamHub) run() {
	ctx := context.Background()

	for {
		pubsub := h.redis.Subscribe(ctx, h.channelName)
		ch := pubsub.Channel(redis.WithChannelSize(4096))

		for msg := range ch {
			h.broadcast([]byte(msg.Payload))
		}

		_ = pubsub.Close()

		// Avoid a tight loop if the Redis connection drops
		time.Sleep(time.Second)
	}
}

func (h *QuoteStreamHub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub <- payload:
		default:
			// Subscriber is too slow; drop the oldest message to keep the hub responsive
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- payload:
			default:
			}
		}
	}
}

// Subscribe registers a new listener and returns a channel plus cleanup function.
func (h *QuoteStreamHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 256)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, unsubscribe
}
