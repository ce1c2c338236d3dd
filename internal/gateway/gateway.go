package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/scrumdeck/core/internal/directory"
	"github.com/scrumdeck/core/internal/model"
)

var (
	ErrNotFound = errors.New("no such resource")
	ErrStorage  = errors.New("storage failure")
)

// RoomStore is the durable side of a room: one unit per room, opened and
// closed per call by the implementation.
type RoomStore interface {
	CreateRoom(ctx context.Context, id model.RoomID, summary model.RoomSummary, owner model.User, deck []model.Card, tasks []model.Task) error
	GetRoom(ctx context.Context, id model.RoomID) (model.Room, error)
	DeleteRoom(ctx context.Context, id model.RoomID) error
	PutUser(ctx context.Context, id model.RoomID, user model.User, assertModerator bool) error
	AddTask(ctx context.Context, id model.RoomID, task model.Task) error
	DeleteTask(ctx context.Context, id model.RoomID, taskID string) error
	SetComment(ctx context.Context, id model.RoomID, taskID, comment string) error
	AcceptVote(ctx context.Context, id model.RoomID, taskID, cardID string) error
	RecordVote(ctx context.Context, id model.RoomID, taskID, userID, cardID string) error
	ClearVotes(ctx context.Context, id model.RoomID) error
	Votes(ctx context.Context, id model.RoomID, taskID string) (map[string]string, error)
	ListRoomSummaries(ctx context.Context) (map[model.RoomID]model.RoomSummary, error)
}

type CatalogStore interface {
	CreateCardSet(ctx context.Context, id string, set model.CardSet) error
	ModifyCardSet(ctx context.Context, id string, set model.CardSet) error
	DeleteCardSet(ctx context.Context, id string) error
	ListCardSets(ctx context.Context) (map[string]model.CardSet, error)
}

type Notifier interface {
	Notify(category model.Category, event any, roomIDs ...model.RoomID)
}

// FocusIndex answers which rooms a user currently has open, from live
// connections only.
type FocusIndex interface {
	RoomsFocusedBy(userID string) []model.RoomID
}

type IDSource func() string

// Gateway sequences every mutation the same way: commit to storage first,
// then update the directory and notify subscribers. A change that did not
// durably commit is never announced.
type Gateway struct {
	rooms     RoomStore
	catalog   CatalogStore
	directory *directory.Directory
	notifier  Notifier
	focus     FocusIndex
	newID     IDSource
	logger    *slog.Logger

	// Writers to the same room unit are serialized; calls against
	// different rooms proceed concurrently.
	lockMu    sync.Mutex
	roomLocks map[model.RoomID]*sync.Mutex
}

func New(rooms RoomStore, catalog CatalogStore, dir *directory.Directory, notifier Notifier, focus FocusIndex, newID IDSource, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		rooms:     rooms,
		catalog:   catalog,
		directory: dir,
		notifier:  notifier,
		focus:     focus,
		newID:     newID,
		logger:    logger,
		roomLocks: make(map[model.RoomID]*sync.Mutex),
	}
}

func (g *Gateway) lockRoom(id model.RoomID) func() {
	g.lockMu.Lock()
	lock, ok := g.roomLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		g.roomLocks[id] = lock
	}
	g.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (g *Gateway) dropRoomLock(id model.RoomID) {
	g.lockMu.Lock()
	delete(g.roomLocks, id)
	g.lockMu.Unlock()
}

func storage(err error) error {
	return errors.Join(ErrStorage, err)
}

func (g *Gateway) CreateRoom(ctx context.Context, name string, persisted bool, owner model.User, deck []model.Card, taskPattern string, tasks []model.Task) (model.RoomID, error) {
	id := model.RoomID(g.newID())
	summary := model.RoomSummary{
		Name:        name,
		Persisted:   persisted,
		Owner:       owner.ID,
		TaskPattern: taskPattern,
	}
	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = g.newID()
		}
	}

	if err := g.rooms.CreateRoom(ctx, id, summary, owner, deck, tasks); err != nil {
		return model.EmptyRoomID, storage(err)
	}

	g.directory.Put(id, summary)
	g.notifier.Notify(model.CategoryList, model.ListEvent{Action: model.ActionAdd, ID: id, Room: summary})
	g.logger.Info("room created", "room_id", string(id), "name", name, "persisted", persisted)
	return id, nil
}

func (g *Gateway) GetRoom(ctx context.Context, id model.RoomID) (model.Room, error) {
	if !g.directory.Exists(id) {
		return model.Room{}, ErrNotFound
	}
	room, err := g.rooms.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Room{}, ErrNotFound
		}
		return model.Room{}, storage(err)
	}
	return room, nil
}

func (g *Gateway) RoomList() map[model.RoomID]model.RoomSummary {
	return g.directory.List()
}

func (g *Gateway) DeleteRoom(ctx context.Context, id model.RoomID) error {
	summary, ok := g.directory.Get(id)
	if !ok {
		return ErrNotFound
	}

	unlock := g.lockRoom(id)
	err := g.rooms.DeleteRoom(ctx, id)
	unlock()
	if err != nil {
		return storage(err)
	}
	g.dropRoomLock(id)

	g.directory.Remove(id)
	g.notifier.Notify(model.CategoryList, model.ListEvent{Action: model.ActionRemove, ID: id, Room: summary})
	g.logger.Info("room deleted", "room_id", string(id))
	return nil
}

func (g *Gateway) CreateCardSet(ctx context.Context, set model.CardSet) (string, error) {
	id := g.newID()
	for i := range set.Cards {
		if set.Cards[i].ID == "" {
			set.Cards[i].ID = g.newID()
		}
	}

	if err := g.catalog.CreateCardSet(ctx, id, set); err != nil {
		return "", storage(err)
	}
	g.notifier.Notify(model.CategorySets, model.SetsEvent{Action: model.ActionAdd, ID: id, Set: set})
	return id, nil
}

func (g *Gateway) ModifySet(ctx context.Context, id string, set model.CardSet) error {
	if err := g.catalog.ModifyCardSet(ctx, id, set); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storage(err)
	}
	g.notifier.Notify(model.CategorySets, model.SetsEvent{Action: model.ActionUpdate, ID: id, Set: set})
	return nil
}

func (g *Gateway) DeleteSet(ctx context.Context, id string) error {
	if err := g.catalog.DeleteCardSet(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storage(err)
	}
	g.notifier.Notify(model.CategorySets, model.SetsEvent{Action: model.ActionRemove, ID: id})
	return nil
}

func (g *Gateway) CardSets(ctx context.Context) (map[string]model.CardSet, error) {
	sets, err := g.catalog.ListCardSets(ctx)
	if err != nil {
		return nil, storage(err)
	}
	return sets, nil
}

func (g *Gateway) AddTaskToRoom(ctx context.Context, roomID model.RoomID, task model.Task) (string, error) {
	if !g.directory.Exists(roomID) {
		return "", ErrNotFound
	}
	if task.ID == "" {
		task.ID = g.newID()
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.AddTask(ctx, roomID, task)
	unlock()
	if err != nil {
		return "", g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		Task: &model.TaskDelta{Action: model.ActionAdd, ID: task.ID, Task: &task},
	}, roomID)
	return task.ID, nil
}

func (g *Gateway) DeleteTask(ctx context.Context, roomID model.RoomID, taskID string) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.DeleteTask(ctx, roomID, taskID)
	unlock()
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		Task: &model.TaskDelta{Action: model.ActionRemove, ID: taskID},
	}, roomID)
	return nil
}

func (g *Gateway) SaveComment(ctx context.Context, roomID model.RoomID, taskID, comment string) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.SetComment(ctx, roomID, taskID, comment)
	unlock()
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		Task: &model.TaskDelta{Action: model.ActionUpdate, ID: taskID, Task: &model.Task{ID: taskID, Comment: comment}},
	}, roomID)
	return nil
}

// Vote records one user's card for one task and tells the room that this
// user's vote changed. Nobody else's vote travels with the event.
func (g *Gateway) Vote(ctx context.Context, roomID model.RoomID, taskID, userID, cardID string) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.RecordVote(ctx, roomID, taskID, userID, cardID)
	unlock()
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		User: &model.UserDelta{ID: userID, Vote: &cardID},
	}, roomID)
	return nil
}

// BeginVoting makes a task the active ballot: every vote in the room is
// cleared so clients can show a blank slate.
func (g *Gateway) BeginVoting(ctx context.Context, roomID model.RoomID, taskID string) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.ClearVotes(ctx, roomID)
	unlock()
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		Voting: &model.VotingDelta{TaskID: taskID},
	}, roomID)
	return nil
}

// RevealVotes publishes the recorded tally for a task. Storage is read, not
// mutated.
func (g *Gateway) RevealVotes(ctx context.Context, roomID model.RoomID, taskID string) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	voted, err := g.rooms.Votes(ctx, roomID, taskID)
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		Voting: &model.VotingDelta{TaskID: taskID, Voted: voted},
	}, roomID)
	return nil
}

func (g *Gateway) AcceptVote(ctx context.Context, roomID model.RoomID, taskID, cardID string) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.AcceptVote(ctx, roomID, taskID, cardID)
	unlock()
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		Task: &model.TaskDelta{Action: model.ActionUpdate, ID: taskID, Task: &model.Task{ID: taskID, AcceptedCardID: cardID}},
	}, roomID)
	return nil
}

// AddUserToRoom upserts a user into one room, without touching an existing
// moderator flag, and tells the room about them.
func (g *Gateway) AddUserToRoom(ctx context.Context, roomID model.RoomID, user model.User) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.PutUser(ctx, roomID, user, false)
	unlock()
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		User: &model.UserDelta{ID: user.ID, Name: user.Name},
	}, roomID)
	return nil
}

// Moderation asserts a user's moderator flag in one room.
func (g *Gateway) Moderation(ctx context.Context, roomID model.RoomID, user model.User) error {
	if !g.directory.Exists(roomID) {
		return ErrNotFound
	}

	unlock := g.lockRoom(roomID)
	err := g.rooms.PutUser(ctx, roomID, user, true)
	unlock()
	if err != nil {
		return g.roomErr(err)
	}

	g.notifier.Notify(model.CategoryRoom, model.RoomEvent{
		User: &model.UserDelta{ID: user.ID, Name: user.Name, Moderator: &user.Moderator},
	}, roomID)
	return nil
}

// ChangeName renames a user in every room their live connections are focused
// on. No focused rooms is a quiet no-op: there is nothing to rename yet.
func (g *Gateway) ChangeName(ctx context.Context, userID, name string) error {
	roomIDs := g.focus.RoomsFocusedBy(userID)
	if len(roomIDs) == 0 {
		g.logger.Debug("rename without focused rooms", "user_id", userID)
		return nil
	}

	for _, roomID := range roomIDs {
		if err := g.AddUserToRoom(ctx, roomID, model.User{ID: userID, Name: name}); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup deletes the durable unit of every room not marked persisted.
// Runs at shutdown; deletion failures are logged, not fatal.
func (g *Gateway) Cleanup(ctx context.Context) {
	for id, summary := range g.directory.List() {
		if summary.Persisted {
			continue
		}
		if err := g.rooms.DeleteRoom(ctx, id); err != nil {
			g.logger.Error("failed to delete ephemeral room", "room_id", string(id), "error", err)
			continue
		}
		g.directory.Remove(id)
		g.logger.Debug("ephemeral room removed", "room_id", string(id))
	}
}

// roomErr keeps driver-reported NotFound intact and wraps the rest as
// storage failures.
func (g *Gateway) roomErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return storage(err)
}
