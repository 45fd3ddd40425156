// Package pubsub implements the MDS's advisory subscription mechanism
// (spec §4.8): subscribers register interest in a bucket, a single
// object, or a key prefix, and receive notifications for matching events.
// Delivery is best-effort and unordered by design — the resolution spec's
// own Open Questions settle on, not something this package works around.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package pubsub

import (
	"strconv"
	"strings"
	"sync"

	"github.com/geds-project/geds/internal/glog"
)

// Type names what a Subscription matches against.
type Type int

const (
	Bucket Type = iota
	Object
	Prefix
)

// EventKind names what happened to the object an Event describes.
type EventKind int

const (
	Created EventKind = iota
	Updated
	Deleted
)

// Event is one notification published to matching subscribers.
type Event struct {
	Kind   EventKind
	Bucket string
	Key    string
}

func (t Type) matches(sub subKey, e Event) bool {
	if e.Bucket != sub.bucket {
		return false
	}
	switch t {
	case Bucket:
		return true
	case Object:
		return e.Key == sub.key
	case Prefix:
		return strings.HasPrefix(e.Key, sub.key)
	default:
		return false
	}
}

type subKey struct {
	bucket string
	key    string
}

// subscriptionQueueDepth bounds each subscriber's pending-event channel;
// once full, further notifications for that subscriber are dropped rather
// than blocking the publisher — the concrete shape "best-effort" takes
// here.
const subscriptionQueueDepth = 64

// Subscription is a live, long-lived interest registration. Events() is
// the channel a stream RPC handler drains and forwards to the subscriber.
type Subscription struct {
	ID           string
	SubscriberID string
	Type         Type
	key          subKey
	events       chan Event
}

func (s *Subscription) Events() <-chan Event { return s.events }

// Hub holds every live subscription and fans out published events to the
// ones that match.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
	seq  uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new subscription and returns it; callers read from
// its Events() channel until Unsubscribe is called, which closes it.
func (h *Hub) Subscribe(subscriberID, bucket, key string, typ Type) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	sub := &Subscription{
		ID:           subscriberID + "#" + strconv.FormatUint(h.seq, 10),
		SubscriberID: subscriberID,
		Type:         typ,
		key:          subKey{bucket: bucket, key: key},
		events:       make(chan Event, subscriptionQueueDepth),
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		close(sub.events)
		delete(h.subs, id)
	}
}

// Publish fans e out to every matching subscription. Delivery never
// blocks: a subscriber whose queue is full misses the event, matching
// spec §4.8's "best-effort ... does not guarantee ordering or
// exactly-once".
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.Type.matches(sub.key, e) {
			continue
		}
		select {
		case sub.events <- e:
		default:
			glog.Warningf("pubsub: dropping event for subscriber %s, queue full", sub.SubscriberID)
		}
	}
}
