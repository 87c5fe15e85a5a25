package room_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/room"
)

type fakeEndpoint struct {
	id   string
	fail bool

	mu   sync.Mutex
	msgs []domain.Message
}

func (f *fakeEndpoint) ID() string { return f.id }

func (f *fakeEndpoint) Send(msg domain.Message) error {
	if f.fail {
		return errors.New("buffer full")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeEndpoint) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestBroadcasterTargets(t *testing.T) {
	b := room.NewBroadcaster()
	host := &fakeEndpoint{id: "h"}
	alice := &fakeEndpoint{id: "a"}
	bob := &fakeEndpoint{id: "b"}
	other := &fakeEndpoint{id: "o"}

	b.Join("111111", host, room.HostTag)
	b.Join("111111", alice, room.PlayerTag("alice"))
	b.Join("111111", bob, room.PlayerTag("bob"))
	b.Join("222222", other, room.PlayerTag("x"))

	b.SendToAll("111111", domain.Message{Type: "all"})
	b.SendToOne("111111", "a", domain.Message{Type: "one"})
	b.SendToAllExcept("111111", "b", domain.Message{Type: "except"})
	b.SendToTag("111111", room.HostTag, domain.Message{Type: "host"})

	assert.Equal(t, []string{"all", "except", "host"}, host.types())
	assert.Equal(t, []string{"all", "one", "except"}, alice.types())
	assert.Equal(t, []string{"all"}, bob.types())
	assert.Empty(t, other.types())
	assert.Equal(t, 3, b.Count("111111"))
}

func TestBroadcasterJoinMovesEndpoint(t *testing.T) {
	b := room.NewBroadcaster()
	ep := &fakeEndpoint{id: "e"}

	b.Join("111111", ep, room.PlayerTag("p"))
	b.Join("111111", ep, room.PlayerTag("p"))
	assert.Equal(t, 1, b.Count("111111"))

	b.Join("222222", ep, room.HostTag)
	assert.Equal(t, 0, b.Count("111111"))
	assert.Equal(t, 1, b.Count("222222"))

	code, tag, ok := b.Drop("e")
	assert.True(t, ok)
	assert.Equal(t, "222222", code)
	assert.Equal(t, room.HostTag, tag)
	assert.Equal(t, 0, b.Count("222222"))

	_, _, ok = b.Drop("e")
	assert.False(t, ok)
}

func TestBroadcasterDropsFailingEndpoint(t *testing.T) {
	var dropped []string
	b := room.NewBroadcaster(room.WithDropHook(func(code string, ep room.Endpoint, tag room.Tag) {
		dropped = append(dropped, ep.ID())
	}))
	slow := &fakeEndpoint{id: "slow", fail: true}
	ok := &fakeEndpoint{id: "ok"}
	b.Join("111111", slow, room.PlayerTag("s"))
	b.Join("111111", ok, room.PlayerTag("k"))

	b.SendToAll("111111", domain.Message{Type: "tick"})

	assert.Equal(t, []string{"slow"}, dropped)
	assert.Equal(t, 1, b.Count("111111"))
	assert.Equal(t, []string{"tick"}, ok.types())
}

func TestLeaveIgnoresOtherRoom(t *testing.T) {
	b := room.NewBroadcaster()
	ep := &fakeEndpoint{id: "e"}
	b.Join("111111", ep, room.HostTag)

	b.Leave("999999", ep)
	assert.Equal(t, 1, b.Count("111111"))

	b.Leave("111111", ep)
	assert.Equal(t, 0, b.Count("111111"))
}

func TestHasMatchesRoomAndTag(t *testing.T) {
	b := room.NewBroadcaster()
	ep := &fakeEndpoint{id: "e"}
	b.Join("111111", ep, room.PlayerTag("p1"))

	assert.True(t, b.Has("111111", "e", room.PlayerTag("p1")))
	assert.False(t, b.Has("111111", "e", room.PlayerTag("p2")))
	assert.False(t, b.Has("111111", "e", room.HostTag))
	assert.False(t, b.Has("222222", "e", room.PlayerTag("p1")))
	assert.False(t, b.Has("111111", "x", room.PlayerTag("p1")))

	b.Leave("111111", ep)
	assert.False(t, b.Has("111111", "e", room.PlayerTag("p1")))
}
