package infra_sqlite_room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/scrumdeck/core/internal/gateway"
	"github.com/scrumdeck/core/internal/model"
)

// One database file per room under dir. Every operation opens the unit,
// applies its statements and closes it again; nothing holds a unit open
// across calls, so a crash can only lose the call in flight.
type Driver struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create room folder %s: %w", dir, err)
	}
	return &Driver{dir: dir, logger: logger}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    moderator INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS tasks (
    id               TEXT PRIMARY KEY,
    num              TEXT,
    name             TEXT NOT NULL,
    comment          TEXT,
    accepted_card_id TEXT
);
CREATE TABLE IF NOT EXISTS cards (
    id    TEXT PRIMARY KEY,
    value REAL NOT NULL,
    label TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS votes (
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    PRIMARY KEY (task_id, user_id)
);
`

const (
	metaName        = "name"
	metaPersisted   = "is_persisted"
	metaOwner       = "owner"
	metaTaskPattern = "task_pattern"
)

type userDTO struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Moderator bool   `db:"moderator"`
}

type taskDTO struct {
	ID             string         `db:"id"`
	Num            sql.NullString `db:"num"`
	Name           string         `db:"name"`
	Comment        sql.NullString `db:"comment"`
	AcceptedCardID sql.NullString `db:"accepted_card_id"`
}

type cardDTO struct {
	ID    string  `db:"id"`
	Value float64 `db:"value"`
	Label string  `db:"label"`
}

type voteDTO struct {
	TaskID string `db:"task_id"`
	UserID string `db:"user_id"`
	CardID string `db:"card_id"`
}

func (d *Driver) path(id model.RoomID) string {
	return filepath.Join(d.dir, string(id)+".db")
}

// open connects to an existing unit, mapping a missing file to ErrNotFound
// instead of letting the driver create an empty database.
func (d *Driver) open(id model.RoomID) (*sqlx.DB, error) {
	path := d.path(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, gateway.ErrNotFound
		}
		return nil, err
	}
	return sqlx.Open("sqlite", path)
}

func (d *Driver) CreateRoom(ctx context.Context, id model.RoomID, summary model.RoomSummary, owner model.User, deck []model.Card, tasks []model.Task) error {
	db, err := sqlx.Open("sqlite", d.path(id))
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create room schema: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	meta := map[string]string{
		metaName:      summary.Name,
		metaPersisted: boolValue(summary.Persisted),
		metaOwner:     summary.Owner,
	}
	if summary.TaskPattern != "" {
		meta[metaTaskPattern] = summary.TaskPattern
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return err
		}
	}

	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO users (id, name, moderator) VALUES (:id, :name, :moderator)`,
		userDTO{ID: owner.ID, Name: owner.Name, Moderator: true}); err != nil {
		return err
	}
	for _, card := range deck {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO cards (id, value, label) VALUES (:id, :value, :label)`,
			cardDTO{ID: card.ID, Value: card.Value, Label: card.Label}); err != nil {
			return err
		}
	}
	for _, task := range tasks {
		if err := insertTask(ctx, tx, task); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *Driver) GetRoom(ctx context.Context, id model.RoomID) (model.Room, error) {
	db, err := d.open(id)
	if err != nil {
		return model.Room{}, err
	}
	defer db.Close()

	summary, err := readSummary(ctx, db)
	if err != nil {
		return model.Room{}, err
	}

	var users []userDTO
	if err := db.SelectContext(ctx, &users, `SELECT id, name, moderator FROM users ORDER BY rowid`); err != nil {
		return model.Room{}, err
	}
	var tasks []taskDTO
	if err := db.SelectContext(ctx, &tasks, `SELECT id, num, name, comment, accepted_card_id FROM tasks ORDER BY rowid`); err != nil {
		return model.Room{}, err
	}
	var cards []cardDTO
	if err := db.SelectContext(ctx, &cards, `SELECT id, value, label FROM cards ORDER BY rowid`); err != nil {
		return model.Room{}, err
	}
	var votes []voteDTO
	if err := db.SelectContext(ctx, &votes, `SELECT task_id, user_id, card_id FROM votes`); err != nil {
		return model.Room{}, err
	}

	room := model.Room{ID: id, Summary: summary}
	for _, u := range users {
		room.Users = append(room.Users, model.User{ID: u.ID, Name: u.Name, Moderator: u.Moderator})
	}
	for _, t := range tasks {
		room.Tasks = append(room.Tasks, model.Task{
			ID:             t.ID,
			Num:            t.Num.String,
			Name:           t.Name,
			Comment:        t.Comment.String,
			AcceptedCardID: t.AcceptedCardID.String,
		})
	}
	for _, c := range cards {
		room.Cards = append(room.Cards, model.Card{ID: c.ID, Value: c.Value, Label: c.Label})
	}
	for _, v := range votes {
		room.Votes = append(room.Votes, model.Vote{TaskID: v.TaskID, UserID: v.UserID, CardID: v.CardID})
	}
	return room, nil
}

// DeleteRoom removes the unit file. An already-gone unit is logged and
// ignored; deleting what is not there is not a failure.
func (d *Driver) DeleteRoom(ctx context.Context, id model.RoomID) error {
	if err := os.Remove(d.path(id)); err != nil {
		if os.IsNotExist(err) {
			d.logger.Debug("room unit already gone", "room_id", string(id))
			return nil
		}
		return err
	}
	return nil
}

// PutUser upserts by id. The moderator flag is only written when the caller
// asserts moderator status; a plain rename never demotes anyone.
func (d *Driver) PutUser(ctx context.Context, id model.RoomID, user model.User, assertModerator bool) error {
	db, err := d.open(id)
	if err != nil {
		return err
	}
	defer db.Close()

	query := `
		INSERT INTO users (id, name, moderator) VALUES (:id, :name, :moderator)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	if assertModerator {
		query = `
			INSERT INTO users (id, name, moderator) VALUES (:id, :name, :moderator)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, moderator = excluded.moderator
		`
	}
	_, err = db.NamedExecContext(ctx, query, userDTO{ID: user.ID, Name: user.Name, Moderator: user.Moderator})
	return err
}

func (d *Driver) AddTask(ctx context.Context, id model.RoomID, task model.Task) error {
	db, err := d.open(id)
	if err != nil {
		return err
	}
	defer db.Close()

	return insertTask(ctx, db, task)
}

func (d *Driver) DeleteTask(ctx context.Context, id model.RoomID, taskID string) error {
	db, err := d.open(id)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return gateway.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE task_id = ?`, taskID); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Driver) SetComment(ctx context.Context, id model.RoomID, taskID, comment string) error {
	return d.updateTask(ctx, id, taskID, `UPDATE tasks SET comment = ? WHERE id = ?`, comment)
}

func (d *Driver) AcceptVote(ctx context.Context, id model.RoomID, taskID, cardID string) error {
	return d.updateTask(ctx, id, taskID, `UPDATE tasks SET accepted_card_id = ? WHERE id = ?`, cardID)
}

func (d *Driver) updateTask(ctx context.Context, id model.RoomID, taskID, query, value string) error {
	db, err := d.open(id)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.ExecContext(ctx, query, value, taskID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

// RecordVote upserts by (task, user): voting again replaces the card.
func (d *Driver) RecordVote(ctx context.Context, id model.RoomID, taskID, userID, cardID string) error {
	db, err := d.open(id)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.NamedExecContext(ctx, `
		INSERT INTO votes (task_id, user_id, card_id) VALUES (:task_id, :user_id, :card_id)
		ON CONFLICT(task_id, user_id) DO UPDATE SET card_id = excluded.card_id
	`, voteDTO{TaskID: taskID, UserID: userID, CardID: cardID})
	return err
}

// ClearVotes wipes every vote in the room when a new task becomes active.
func (d *Driver) ClearVotes(ctx context.Context, id model.RoomID) error {
	db, err := d.open(id)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `DELETE FROM votes`)
	return err
}

// Votes returns the recorded tally for one task as user -> card.
func (d *Driver) Votes(ctx context.Context, id model.RoomID, taskID string) (map[string]string, error) {
	db, err := d.open(id)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var votes []voteDTO
	if err := db.SelectContext(ctx, &votes, `SELECT task_id, user_id, card_id FROM votes WHERE task_id = ?`, taskID); err != nil {
		return nil, err
	}
	voted := make(map[string]string, len(votes))
	for _, v := range votes {
		voted[v.UserID] = v.CardID
	}
	return voted, nil
}

// ListRoomSummaries is the startup reconciliation pass: every unit on disk is
// opened for its metadata only. Units without a true persisted flag are
// leftover ephemeral state from an unclean shutdown, units whose metadata
// cannot be read are unrecoverable; both are deleted rather than indexed.
func (d *Driver) ListRoomSummaries(ctx context.Context) (map[model.RoomID]model.RoomSummary, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("read room folder %s: %w", d.dir, err)
	}

	summaries := make(map[model.RoomID]model.RoomSummary)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		id := model.RoomID(strings.TrimSuffix(entry.Name(), ".db"))

		summary, err := d.readUnitSummary(ctx, id)
		if err != nil {
			d.logger.Error("dropping unreadable room unit", "room_id", string(id), "error", err)
			_ = d.DeleteRoom(ctx, id)
			continue
		}
		if !summary.Persisted {
			d.logger.Debug("dropping ephemeral room unit", "room_id", string(id))
			_ = d.DeleteRoom(ctx, id)
			continue
		}
		summaries[id] = summary
	}
	return summaries, nil
}

func (d *Driver) readUnitSummary(ctx context.Context, id model.RoomID) (model.RoomSummary, error) {
	db, err := d.open(id)
	if err != nil {
		return model.RoomSummary{}, err
	}
	defer db.Close()

	return readSummary(ctx, db)
}

func readSummary(ctx context.Context, db *sqlx.DB) (model.RoomSummary, error) {
	type metaDTO struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	var rows []metaDTO
	if err := db.SelectContext(ctx, &rows, `SELECT key, value FROM meta`); err != nil {
		return model.RoomSummary{}, err
	}

	var summary model.RoomSummary
	var hasName bool
	for _, row := range rows {
		switch row.Key {
		case metaName:
			summary.Name = row.Value
			hasName = true
		case metaPersisted:
			summary.Persisted = row.Value == "true"
		case metaOwner:
			summary.Owner = row.Value
		case metaTaskPattern:
			summary.TaskPattern = row.Value
		}
	}
	if !hasName {
		return model.RoomSummary{}, errors.New("room metadata missing name")
	}
	return summary, nil
}

type execer interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

func insertTask(ctx context.Context, e execer, task model.Task) error {
	_, err := e.NamedExecContext(ctx, `
		INSERT INTO tasks (id, num, name, comment, accepted_card_id)
		VALUES (:id, :num, :name, :comment, :accepted_card_id)
	`, taskDTO{
		ID:             task.ID,
		Num:            nullable(task.Num),
		Name:           task.Name,
		Comment:        nullable(task.Comment),
		AcceptedCardID: nullable(task.AcceptedCardID),
	})
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolValue(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
