package realtime

import (
	"encoding/json"
	"log/slog"

	"github.com/scrumdeck/core/internal/model"
)

// Envelope is the outbound wire frame: the category tag tells the client
// library which local subscribers the update belongs to.
type Envelope struct {
	Type   model.Category `json:"type"`
	Update any            `json:"update"`
}

// Broadcaster fans an event out to the connections the registry says are
// interested. Delivery is fire-and-forget per recipient: a dead or slow sink
// is skipped, never letting one connection starve the rest.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger,
	}
}

// Notify serializes the event once and pushes it to every matching sink.
// Room-scoped events with no room identifiers are a no-op.
func (b *Broadcaster) Notify(category model.Category, event any, roomIDs ...model.RoomID) {
	var sinks []Sink
	switch category {
	case model.CategoryList, model.CategorySets:
		sinks = b.registry.SinksFor(category)
	case model.CategoryRoom:
		if len(roomIDs) == 0 {
			return
		}
		sinks = b.registry.SinksFocusedOn(roomIDs...)
	default:
		b.logger.Warn("unknown broadcast category", "category", string(category))
		return
	}
	if len(sinks) == 0 {
		return
	}

	payload, err := json.Marshal(Envelope{Type: category, Update: event})
	if err != nil {
		b.logger.Error("failed to marshal event", "category", string(category), "error", err)
		return
	}

	for _, sink := range sinks {
		if err := sink.Send(payload); err != nil {
			b.logger.Debug("dropping undeliverable connection", "category", string(category), "error", err)
		}
	}
}
