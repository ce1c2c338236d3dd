package ws_session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrumdeck/core/internal/directory"
	"github.com/scrumdeck/core/internal/gateway"
	"github.com/scrumdeck/core/internal/model"
	"github.com/scrumdeck/core/internal/realtime"
)

type fakeSink struct {
	payloads [][]byte
}

func (s *fakeSink) Send(payload []byte) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

// stubRooms records user upserts; everything else is inert.
type stubRooms struct {
	putUsers map[model.RoomID][]model.User
	err      error
}

func newStubRooms() *stubRooms {
	return &stubRooms{putUsers: make(map[model.RoomID][]model.User)}
}

func (s *stubRooms) CreateRoom(context.Context, model.RoomID, model.RoomSummary, model.User, []model.Card, []model.Task) error {
	return s.err
}
func (s *stubRooms) GetRoom(context.Context, model.RoomID) (model.Room, error) {
	return model.Room{}, s.err
}
func (s *stubRooms) DeleteRoom(context.Context, model.RoomID) error { return s.err }
func (s *stubRooms) PutUser(_ context.Context, id model.RoomID, user model.User, _ bool) error {
	if s.err != nil {
		return s.err
	}
	s.putUsers[id] = append(s.putUsers[id], user)
	return nil
}
func (s *stubRooms) AddTask(context.Context, model.RoomID, model.Task) error     { return s.err }
func (s *stubRooms) DeleteTask(context.Context, model.RoomID, string) error      { return s.err }
func (s *stubRooms) SetComment(context.Context, model.RoomID, string, string) error {
	return s.err
}
func (s *stubRooms) AcceptVote(context.Context, model.RoomID, string, string) error {
	return s.err
}
func (s *stubRooms) RecordVote(context.Context, model.RoomID, string, string, string) error {
	return s.err
}
func (s *stubRooms) ClearVotes(context.Context, model.RoomID) error { return s.err }
func (s *stubRooms) Votes(context.Context, model.RoomID, string) (map[string]string, error) {
	return nil, s.err
}
func (s *stubRooms) ListRoomSummaries(context.Context) (map[model.RoomID]model.RoomSummary, error) {
	return nil, s.err
}

type stubCatalog struct{}

func (stubCatalog) CreateCardSet(context.Context, string, model.CardSet) error { return nil }
func (stubCatalog) ModifyCardSet(context.Context, string, model.CardSet) error { return nil }
func (stubCatalog) DeleteCardSet(context.Context, string) error                { return nil }
func (stubCatalog) ListCardSets(context.Context) (map[string]model.CardSet, error) {
	return nil, nil
}

type fixture struct {
	controller *Controller
	registry   *realtime.Registry
	rooms      *stubRooms
	dir        *directory.Directory
	sink       *fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := realtime.NewRegistry(nil)
	rooms := newStubRooms()
	dir := directory.New()
	gw := gateway.New(rooms, stubCatalog{}, dir, realtime.NewBroadcaster(registry, nil), registry, func() string { return "fixed-id" }, nil)

	f := &fixture{
		controller: NewController(registry, gw, func() string { return "conn-1" }, nil),
		registry:   registry,
		rooms:      rooms,
		dir:        dir,
		sink:       &fakeSink{},
	}
	f.registry.Register("conn-1", f.sink)
	return f
}

func TestSubscriptionFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"list","userId":"u1","data":true}`))
	assert.Len(t, f.registry.SinksFor(model.CategoryList), 1)

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"sets","userId":"u1","data":true}`))
	assert.Len(t, f.registry.SinksFor(model.CategorySets), 1)

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"list","userId":"u1","data":false}`))
	assert.Empty(t, f.registry.SinksFor(model.CategoryList))
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.controller.handle(ctx, "conn-1", []byte(`{not json`))
	f.controller.handle(ctx, "conn-1", []byte(`{"type":"list","userId":"u1","data":"not a bool"}`))
	f.controller.handle(ctx, "conn-1", []byte(`{"type":"teleport","userId":"u1","data":true}`))
	f.controller.handle(ctx, "conn-1", []byte(`{"type":"room","userId":"u1","data":42}`))

	assert.Empty(t, f.registry.SinksFor(model.CategoryList))
	assert.Empty(t, f.rooms.putUsers)
}

func TestImpersonationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"list","userId":"u1","data":true}`))
	// Same connection now claims to be someone else: dropped outright.
	f.controller.handle(ctx, "conn-1", []byte(`{"type":"list","userId":"u2","data":false}`))

	assert.Len(t, f.registry.SinksFor(model.CategoryList), 1, "the rejected unsubscribe must not apply")
	userID, ok := f.registry.UserOf("conn-1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
}

func TestRoomJoinUpsertsThenFocuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dir.Put("r1", model.RoomSummary{Name: "sprint"})

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"room","userId":"u1","data":{"action":"add","roomId":"r1","user":{"name":"Alice"}}}`))

	require.Len(t, f.rooms.putUsers["r1"], 1)
	assert.Equal(t, model.User{ID: "u1", Name: "Alice"}, f.rooms.putUsers["r1"][0])
	assert.Len(t, f.registry.SinksFocusedOn("r1"), 1)

	// The join announcement went out before focus was granted, so the
	// joiner itself saw nothing. Later events reach it.
	assert.Empty(t, f.sink.payloads)
	f.controller.handle(ctx, "conn-1", []byte(`{"type":"room","userId":"u1","data":{"action":"add","roomId":"r1","user":{"name":"Alice renamed"}}}`))
	assert.Len(t, f.sink.payloads, 1)
}

func TestRoomJoinFailureDoesNotFocus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dir.Put("r1", model.RoomSummary{Name: "sprint"})
	f.rooms.err = errors.New("io error")

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"room","userId":"u1","data":{"action":"add","roomId":"r1","user":{"name":"Alice"}}}`))

	assert.Empty(t, f.registry.SinksFocusedOn("r1"), "focus is only granted after a durable join")
}

func TestRoomJoinUnknownRoom(t *testing.T) {
	f := newFixture(t)

	f.controller.handle(context.Background(), "conn-1", []byte(`{"type":"room","userId":"u1","data":{"action":"add","roomId":"ghost","user":{"name":"Alice"}}}`))

	assert.Empty(t, f.registry.SinksFocusedOn("ghost"))
	assert.Empty(t, f.rooms.putUsers)
}

func TestRoomJoinWithoutUserIsDropped(t *testing.T) {
	f := newFixture(t)
	f.dir.Put("r1", model.RoomSummary{Name: "sprint"})

	f.controller.handle(context.Background(), "conn-1", []byte(`{"type":"room","userId":"u1","data":{"action":"add","roomId":"r1"}}`))

	assert.Empty(t, f.registry.SinksFocusedOn("r1"))
	assert.Empty(t, f.rooms.putUsers)
}

func TestRoomLeaveUnfocuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dir.Put("r1", model.RoomSummary{Name: "sprint"})

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"room","userId":"u1","data":{"action":"add","roomId":"r1","user":{"name":"Alice"}}}`))
	require.Len(t, f.registry.SinksFocusedOn("r1"), 1)

	f.controller.handle(ctx, "conn-1", []byte(`{"type":"room","userId":"u1","data":{"action":"remove","roomId":"r1"}}`))
	assert.Empty(t, f.registry.SinksFocusedOn("r1"))
}
