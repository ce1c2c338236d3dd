package realtime

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrumdeck/core/internal/model"
)

type fakeSink struct {
	payloads [][]byte
	fail     bool
}

func (s *fakeSink) Send(payload []byte) error {
	if s.fail {
		return errors.New("sink closed")
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func decode(t *testing.T, payload []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func TestFlagBasedDelivery(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil)

	listed, unlisted, setted := &fakeSink{}, &fakeSink{}, &fakeSink{}
	r.Register("c1", listed)
	r.Register("c2", unlisted)
	r.Register("c3", setted)
	r.SetFlag("c1", model.CategoryList, true)
	r.SetFlag("c3", model.CategorySets, true)

	b.Notify(model.CategoryList, model.ListEvent{Action: model.ActionAdd, ID: "r1"})

	require.Len(t, listed.payloads, 1)
	assert.Empty(t, unlisted.payloads)
	assert.Empty(t, setted.payloads, "catalog flag must not receive room-list events")
	assert.Equal(t, model.CategoryList, decode(t, listed.payloads[0]).Type)
}

func TestCatalogDeliveryOncePerSubscriber(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil)

	s1, s2 := &fakeSink{}, &fakeSink{}
	r.Register("c1", s1)
	r.Register("c2", s2)
	r.SetFlag("c1", model.CategorySets, true)
	r.SetFlag("c2", model.CategorySets, true)

	b.Notify(model.CategorySets, model.SetsEvent{Action: model.ActionAdd, ID: "s1", Set: model.CardSet{Name: "fib"}})

	require.Len(t, s1.payloads, 1)
	require.Len(t, s2.payloads, 1)
	assert.Equal(t, s1.payloads[0], s2.payloads[0], "both subscribers carry the same payload")
}

func TestRoomScoping(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil)

	inA, inB := &fakeSink{}, &fakeSink{}
	r.Register("a", inA)
	r.Register("b", inB)
	r.Focus("a", "roomA")
	r.Focus("b", "roomB")

	b.Notify(model.CategoryRoom, model.RoomEvent{}, "roomA")
	require.Len(t, inA.payloads, 1)
	assert.Empty(t, inB.payloads)

	r.Unfocus("a", "roomA")
	b.Notify(model.CategoryRoom, model.RoomEvent{}, "roomA")
	assert.Len(t, inA.payloads, 1, "unfocus stops delivery")
}

func TestRoomEventWithoutRoomsIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil)

	sink := &fakeSink{}
	r.Register("a", sink)
	r.Focus("a", "roomA")

	b.Notify(model.CategoryRoom, model.RoomEvent{})
	assert.Empty(t, sink.payloads)
}

func TestMultiRoomFocusDeliversOnce(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil)

	sink := &fakeSink{}
	r.Register("a", sink)
	r.Focus("a", "roomA")
	r.Focus("a", "roomB")

	b.Notify(model.CategoryRoom, model.RoomEvent{}, "roomA", "roomB")
	assert.Len(t, sink.payloads, 1, "one connection, one delivery")
}

func TestDeadSinkDoesNotAbortDelivery(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil)

	dead, alive := &fakeSink{fail: true}, &fakeSink{}
	r.Register("dead", dead)
	r.Register("alive", alive)
	r.Focus("dead", "roomA")
	r.Focus("alive", "roomA")

	b.Notify(model.CategoryRoom, model.RoomEvent{}, "roomA")
	assert.Len(t, alive.payloads, 1)
}

func TestBindUserGuard(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("c1", &fakeSink{})

	require.NoError(t, r.BindUser("c1", "u1"))
	require.NoError(t, r.BindUser("c1", "u1"), "re-binding the same user is fine")
	assert.ErrorIs(t, r.BindUser("c1", "u2"), ErrImpersonation)

	userID, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)

	// A second connection may bind the same user (second tab).
	r.Register("c2", &fakeSink{})
	assert.NoError(t, r.BindUser("c2", "u1"))
}

func TestRoomsFocusedBy(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("c1", &fakeSink{})
	r.Register("c2", &fakeSink{})
	r.Register("c3", &fakeSink{})
	require.NoError(t, r.BindUser("c1", "u1"))
	require.NoError(t, r.BindUser("c2", "u1"))
	require.NoError(t, r.BindUser("c3", "u2"))
	r.Focus("c1", "roomA")
	r.Focus("c2", "roomA")
	r.Focus("c2", "roomB")
	r.Focus("c3", "roomC")

	rooms := r.RoomsFocusedBy("u1")
	assert.ElementsMatch(t, []model.RoomID{"roomA", "roomB"}, rooms)
	assert.Empty(t, r.RoomsFocusedBy("ghost"))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	sink := &fakeSink{}
	r.Register("c1", sink)
	r.SetFlag("c1", model.CategoryList, true)

	r.Unregister("c1")
	r.Unregister("c1")

	assert.Empty(t, r.SinksFor(model.CategoryList))

	// Mutations on a gone connection are harmless no-ops.
	r.SetFlag("c1", model.CategoryList, true)
	r.Focus("c1", "roomA")
	assert.NoError(t, r.BindUser("c1", "u1"))
	assert.Empty(t, r.SinksFor(model.CategoryList))
	assert.Empty(t, r.SinksFocusedOn("roomA"))
}
