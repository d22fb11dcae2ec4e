package server

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
)

const realtimeBufferSize = 16

// RealtimeMessage is a room event addressed to every subscriber of one room.
type RealtimeMessage struct {
	Namespace string
	RoomCode  string
	Event     collab.RemoteEvent
}

// RealtimeDispatcher fans room events out to subscribers. A subscriber whose
// buffer is full misses the event.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

func roomKey(namespace, roomCode string) string {
	return namespace + "/" + roomCode
}

// Subscribe registers for events of one room until ctx is done or cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, namespace, roomCode string) (<-chan RealtimeMessage, func()) {
	if namespace == "" || roomCode == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	key := roomKey(namespace, roomCode)
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(key, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(key, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Namespace == "" || message.RoomCode == "" || message.Event.Type == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[roomKey(message.Namespace, message.RoomCode)]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers one room has.
func (d *RealtimeDispatcher) SubscriberCount(namespace, roomCode string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[roomKey(namespace, roomCode)])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(key string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[key]; !ok {
		d.subscribers[key] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[key][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(key string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[key]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, key)
		}
	}
	d.mu.Unlock()
}
