package api

import (
    "sync"
)

// FeedEvent is one message on a live feed topic. Type names the event
// (position.updated, run.completed, run.failed) and Data is the payload as
// it goes over SSE or WebSocket.
type FeedEvent struct {
    Type string
    Data map[string]any
}

// Topics are scoped per tenant: positions:<tenant> for the live position
// feed and runs:<tenant> for run lifecycle events.
func PositionsTopic(tenant string) string { return "positions:" + tenant }
func RunsTopic(tenant string) string      { return "runs:" + tenant }

// Broker is the in-process fanout used when no Redis is configured.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan FeedEvent]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan FeedEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan FeedEvent {
    ch := make(chan FeedEvent, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan FeedEvent]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan FeedEvent) {
    b.mu.Lock()
    if m := b.subs[topic]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, topic) }
    }
    b.mu.Unlock()
    close(ch)
}

// Publish delivers to every subscriber that can take the event without
// blocking. A slow feed client drops events rather than stalling the solver
// or the position feeder.
func (b *Broker) Publish(topic string, evt FeedEvent) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
