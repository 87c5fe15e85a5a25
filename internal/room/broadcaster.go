// Package room keeps track of which connected endpoints belong to which session
// and fans messages out to them.
package room

import (
	"sync"

	"github.com/rs/zerolog/log"

	"quiz-live-service/internal/domain"
)

// Endpoint is one connected client. Send must not block; an error means the
// endpoint is gone or too slow and it will be dropped from its room.
type Endpoint interface {
	ID() string
	Send(msg domain.Message) error
}

// Tag labels an endpoint inside a room.
type Tag string

// HostTag marks the host channel of a room.
const HostTag Tag = "host"

// PlayerTag labels the endpoint of one player.
func PlayerTag(playerID string) Tag { return Tag("player:" + playerID) }

type member struct {
	endpoint Endpoint
	tag      Tag
}

// Broadcaster maps session codes to connected endpoints.
type Broadcaster struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]member
	located map[string]string // endpoint id -> code
	onDrop  func(code string, ep Endpoint, tag Tag)
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithDropHook is called after an endpoint was dropped because a send failed.
func WithDropHook(fn func(code string, ep Endpoint, tag Tag)) Option {
	return func(b *Broadcaster) { b.onDrop = fn }
}

func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		rooms:   make(map[string]map[string]member),
		located: make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Join adds ep to the room of code. Joining again updates the tag, and joining
// another room moves the endpoint.
func (b *Broadcaster) Join(code string, ep Endpoint, tag Tag) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.located[ep.ID()]; ok && prev != code {
		b.removeLocked(prev, ep.ID())
	}
	members := b.rooms[code]
	if members == nil {
		members = make(map[string]member)
		b.rooms[code] = members
	}
	members[ep.ID()] = member{endpoint: ep, tag: tag}
	b.located[ep.ID()] = code
}

// Leave removes ep from the room of code.
func (b *Broadcaster) Leave(code string, ep Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.located[ep.ID()] == code {
		b.removeLocked(code, ep.ID())
	}
}

// Drop removes the endpoint from whatever room it is in and returns that room's code and the endpoint's tag.
func (b *Broadcaster) Drop(endpointID string) (string, Tag, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	code, ok := b.located[endpointID]
	if !ok {
		return "", "", false
	}
	tag := b.rooms[code][endpointID].tag
	b.removeLocked(code, endpointID)
	return code, tag, true
}

// Has reports whether the endpoint is in the room of code under tag.
func (b *Broadcaster) Has(code, endpointID string, tag Tag) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.rooms[code][endpointID]
	return ok && m.tag == tag
}

func (b *Broadcaster) removeLocked(code, endpointID string) {
	delete(b.located, endpointID)
	members, ok := b.rooms[code]
	if !ok {
		return
	}
	delete(members, endpointID)
	if len(members) == 0 {
		delete(b.rooms, code)
	}
}

// SendToAll delivers msg to every endpoint in the room.
func (b *Broadcaster) SendToAll(code string, msg domain.Message) {
	b.deliver(code, msg, b.targets(code, func(member) bool { return true }))
}

// SendToOne delivers msg to a single endpoint of the room.
func (b *Broadcaster) SendToOne(code, endpointID string, msg domain.Message) {
	b.deliver(code, msg, b.targets(code, func(m member) bool { return m.endpoint.ID() == endpointID }))
}

// SendToAllExcept delivers msg to everyone in the room but the sender.
func (b *Broadcaster) SendToAllExcept(code, endpointID string, msg domain.Message) {
	b.deliver(code, msg, b.targets(code, func(m member) bool { return m.endpoint.ID() != endpointID }))
}

// SendToTag delivers msg to the endpoints labelled tag, e.g. the host channel.
func (b *Broadcaster) SendToTag(code string, tag Tag, msg domain.Message) {
	b.deliver(code, msg, b.targets(code, func(m member) bool { return m.tag == tag }))
}

// Count returns the number of endpoints in the room.
func (b *Broadcaster) Count(code string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[code])
}

// CloseRoom forgets every member of the room without notifying them.
func (b *Broadcaster) CloseRoom(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.rooms[code] {
		delete(b.located, id)
	}
	delete(b.rooms, code)
}

func (b *Broadcaster) targets(code string, keep func(member) bool) []member {
	b.mu.RLock()
	defer b.mu.RUnlock()
	members := b.rooms[code]
	out := make([]member, 0, len(members))
	for _, m := range members {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// deliver sends outside the lock so a slow endpoint never holds up membership changes.
func (b *Broadcaster) deliver(code string, msg domain.Message, targets []member) {
	for _, m := range targets {
		if err := m.endpoint.Send(msg); err != nil {
			log.Warn().
				Err(err).
				Str("code", code).
				Str("endpoint_id", m.endpoint.ID()).
				Str("type", msg.Type).
				Msg("dropping endpoint after failed send")
			b.Leave(code, m.endpoint)
			if b.onDrop != nil {
				b.onDrop(code, m.endpoint, m.tag)
			}
		}
	}
}
