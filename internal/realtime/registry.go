package realtime

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/scrumdeck/core/internal/model"
)

var ErrImpersonation = errors.New("connection already bound to another user")

// Sink is the outbound half of a connection. Send must not block: a full or
// closed sink reports an error and the caller moves on.
type Sink interface {
	Send(payload []byte) error
}

type connection struct {
	sink    Sink
	userID  string
	focused map[model.RoomID]struct{}
	list    bool
	sets    bool
}

// Registry tracks every live connection: its declared user, the rooms it is
// focused on and its subscription flags. Connection behavior is data here,
// never a captured closure; the ws layer owns the sockets themselves.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*connection
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*connection),
		logger: logger,
	}
}

func (r *Registry) Register(connID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connID] = &connection{
		sink:    sink,
		focused: make(map[model.RoomID]struct{}),
	}
	r.logger.Debug("connection registered", "conn_id", connID)
}

// Unregister is idempotent; closing an unknown connection is not an error.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, connID)
	r.logger.Debug("connection unregistered", "conn_id", connID)
}

// BindUser attaches a user identifier to a connection. The first binding is
// free; a later message declaring a different user is rejected so one
// connection cannot act as another user.
func (r *Registry) BindUser(connID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	if conn.userID != "" && conn.userID != userID {
		return ErrImpersonation
	}
	conn.userID = userID
	return nil
}

func (r *Registry) Focus(connID string, roomID model.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		conn.focused[roomID] = struct{}{}
	}
}

func (r *Registry) Unfocus(connID string, roomID model.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		delete(conn.focused, roomID)
	}
}

// SetFlag flips a flag-based subscription. Only the room-list and catalog
// categories are flag-based; room interest goes through Focus.
func (r *Registry) SetFlag(connID string, category model.Category, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	switch category {
	case model.CategoryList:
		conn.list = on
	case model.CategorySets:
		conn.sets = on
	}
}

func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok || conn.userID == "" {
		return "", false
	}
	return conn.userID, true
}

// RoomsFocusedBy scans live connections bound to the given user and collects
// every room any of them is focused on. Linear, but bounded by concurrent
// connections rather than history.
func (r *Registry) RoomsFocusedBy(userID string) []model.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[model.RoomID]struct{})
	var rooms []model.RoomID
	for _, conn := range r.conns {
		if conn.userID != userID {
			continue
		}
		for roomID := range conn.focused {
			if _, dup := seen[roomID]; dup {
				continue
			}
			seen[roomID] = struct{}{}
			rooms = append(rooms, roomID)
		}
	}
	return rooms
}

// SinksFor returns the sinks of every connection with the given flag set.
func (r *Registry) SinksFor(category model.Category) []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []Sink
	for _, conn := range r.conns {
		switch category {
		case model.CategoryList:
			if conn.list {
				sinks = append(sinks, conn.sink)
			}
		case model.CategorySets:
			if conn.sets {
				sinks = append(sinks, conn.sink)
			}
		}
	}
	return sinks
}

// SinksFocusedOn returns the sinks focused on any of the given rooms, each
// sink at most once even when focused on several of them.
func (r *Registry) SinksFocusedOn(roomIDs ...model.RoomID) []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []Sink
	for _, conn := range r.conns {
		for _, roomID := range roomIDs {
			if _, ok := conn.focused[roomID]; ok {
				sinks = append(sinks, conn.sink)
				break
			}
		}
	}
	return sinks
}
