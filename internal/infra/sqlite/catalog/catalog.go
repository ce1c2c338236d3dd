package infra_sqlite_catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/scrumdeck/core/internal/gateway"
	"github.com/scrumdeck/core/internal/model"
)

// Driver owns the shared catalog unit: card-set headers plus member cards in
// one database file, separate from any room. Opened per operation like the
// room units.
type Driver struct {
	path   string
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS card_sets (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cards (
    id          TEXT PRIMARY KEY,
    value       REAL NOT NULL,
    label       TEXT NOT NULL,
    card_set_id TEXT NOT NULL REFERENCES card_sets(id)
);
`

func New(path string, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog folder: %w", err)
	}

	d := &Driver{path: path, logger: logger}

	db, err := d.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return d, nil
}

func (d *Driver) open() (*sqlx.DB, error) {
	return sqlx.Open("sqlite", d.path)
}

type setDTO struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type cardDTO struct {
	ID        string  `db:"id"`
	Value     float64 `db:"value"`
	Label     string  `db:"label"`
	CardSetID string  `db:"card_set_id"`
}

// CreateCardSet writes the header and member cards in one transaction: a
// failing header insert leaves no orphan card rows behind.
func (d *Driver) CreateCardSet(ctx context.Context, id string, set model.CardSet) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO card_sets (id, name) VALUES (:id, :name)`,
		setDTO{ID: id, Name: set.Name}); err != nil {
		return err
	}
	for _, card := range set.Cards {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO cards (id, value, label, card_set_id) VALUES (:id, :value, :label, :card_set_id)`,
			cardDTO{ID: card.ID, Value: card.Value, Label: card.Label, CardSetID: id}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ModifyCardSet updates the header and upserts each card, allowing
// incremental deck edits without replacing the whole set.
func (d *Driver) ModifyCardSet(ctx context.Context, id string, set model.CardSet) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE card_sets SET name = ? WHERE id = ?`, set.Name, id)
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

	for _, card := range set.Cards {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO cards (id, value, label, card_set_id) VALUES (:id, :value, :label, :card_set_id)
			ON CONFLICT(id) DO UPDATE SET value = excluded.value, label = excluded.label
		`, cardDTO{ID: card.ID, Value: card.Value, Label: card.Label, CardSetID: id}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *Driver) DeleteCardSet(ctx context.Context, id string) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE card_set_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM card_sets WHERE id = ?`, id)
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
	return tx.Commit()
}

func (d *Driver) ListCardSets(ctx context.Context) (map[string]model.CardSet, error) {
	db, err := d.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var sets []setDTO
	if err := db.SelectContext(ctx, &sets, `SELECT id, name FROM card_sets ORDER BY rowid`); err != nil {
		return nil, err
	}

	catalog := make(map[string]model.CardSet, len(sets))
	for _, set := range sets {
		var cards []cardDTO
		if err := db.SelectContext(ctx, &cards,
			`SELECT id, value, label, card_set_id FROM cards WHERE card_set_id = ? ORDER BY rowid`, set.ID); err != nil {
			return nil, err
		}
		cs := model.CardSet{Name: set.Name}
		for _, c := range cards {
			cs.Cards = append(cs.Cards, model.Card{ID: c.ID, Value: c.Value, Label: c.Label})
		}
		catalog[set.ID] = cs
	}
	return catalog, nil
}
