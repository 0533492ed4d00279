package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// EventBroker fans feed events out to subscribed clients. The in-memory
// Broker covers a single process; RedisBroker spans replicas.
type EventBroker interface {
    Subscribe(topic string) chan FeedEvent
    Unsubscribe(topic string, ch chan FeedEvent)
    Publish(topic string, evt FeedEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so feed clients see
// events regardless of which replica produced them.
type RedisBroker struct {
    rdb *redis.Client

    mu   sync.Mutex
    open map[chan FeedEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisBroker{rdb: redis.NewClient(opt), open: map[chan FeedEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(topic string) chan FeedEvent {
    ch := make(chan FeedEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(topic))
    // initial consume to ensure the subscription is established
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.open[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt FeedEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the underlying PubSub; the reader goroutine then drains
// out and closes the channel, so the channel is only ever closed once.
func (b *RedisBroker) Unsubscribe(topic string, ch chan FeedEvent) {
    b.mu.Lock()
    ps := b.open[ch]
    delete(b.open, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(topic string, evt FeedEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(topic), data).Err()
}

func (b *RedisBroker) chanName(topic string) string { return "railopt:" + topic }
