package infra_postgres_room

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/towerduels/internal/model"
	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

type Driver struct {
	db *sqlx.DB
}

func New(
	db *sqlx.DB,
) *Driver {
	return &Driver{db: db}
}

const (
	selectRoomColumns = `
		SELECT r.id, r.code, r.status, r.version, r.created_at, r.updated_at, r.started_at,
		       p.player_id, p.slot, p.connected, p.joined_at
		FROM rooms r
		LEFT JOIN room_players p ON p.room_id = r.id
	`

	insertRoomQuery = `
		INSERT INTO rooms (id, code, status, version, created_at, updated_at, started_at)
		VALUES (:id, :code, :status, :version, :created_at, :updated_at, :started_at)
	`

	insertPlayerQuery = `
		INSERT INTO room_players (room_id, player_id, slot, connected, joined_at)
		VALUES (:room_id, :player_id, :slot, :connected, :joined_at)
	`
)

// Migrate applies the embedded schema. Every statement is idempotent.
func (d *Driver) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schema)
	return classify(err)
}

func (d *Driver) Create(ctx context.Context, room model.Room) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertRoomQuery, newRoomDTO(room)); err != nil {
			return err
		}
		for _, p := range room.Players {
			if _, err := tx.NamedExecContext(ctx, insertPlayerQuery, newPlayerDTO(p)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Driver) ByCode(ctx context.Context, code string) (model.Room, error) {
	query := selectRoomColumns + `
		WHERE r.code = $1 AND r.status IN ('waiting', 'playing')
		ORDER BY p.slot
	`

	var rows []roomRowDTO
	if err := d.db.SelectContext(ctx, &rows, query, code); err != nil {
		return model.Room{}, classify(err)
	}
	if len(rows) == 0 {
		return model.Room{}, usecase_room.ErrRoomNotFound
	}
	return toDomain(rows), nil
}

func (d *Driver) ByID(ctx context.Context, id uuid.UUID) (model.Room, error) {
	query := selectRoomColumns + `
		WHERE r.id = $1
		ORDER BY p.slot
	`

	var rows []roomRowDTO
	if err := d.db.SelectContext(ctx, &rows, query, id); err != nil {
		return model.Room{}, classify(err)
	}
	if len(rows) == 0 {
		return model.Room{}, usecase_room.ErrRoomNotFound
	}
	return toDomain(rows), nil
}

// Update locks the room row for the duration of the transaction, so
// concurrent updates of one room are applied one after another.
func (d *Driver) Update(ctx context.Context, id uuid.UUID, fn func(r *model.Room) error) (model.Room, error) {
	query := selectRoomColumns + `
		WHERE r.id = $1
		ORDER BY p.slot
		FOR UPDATE OF r
	`

	var out model.Room
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		var rows []roomRowDTO
		if err := tx.SelectContext(ctx, &rows, query, id); err != nil {
			return err
		}
		if len(rows) == 0 {
			return usecase_room.ErrRoomNotFound
		}

		current := toDomain(rows)
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		out = next

		if next.Version == current.Version {
			return nil
		}
		return persist(ctx, tx, current, next)
	})
	if err != nil {
		return model.Room{}, err
	}
	return out, nil
}

func persist(ctx context.Context, tx *sqlx.Tx, current, next model.Room) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE rooms SET status = $1, version = $2, updated_at = $3, started_at = $4
		WHERE id = $5 AND version = $6
	`, string(next.Status), next.Version, next.UpdatedAt, nullTime(next.StartedAt), next.ID, current.Version)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: room %s changed concurrently", usecase_room.ErrTransientStore, next.ID)
	}

	if len(next.Players) == 0 && len(current.Players) > 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM room_players WHERE room_id = $1`, next.ID)
		return err
	}

	prev := make(map[string]model.Membership, len(current.Players))
	for _, p := range current.Players {
		prev[p.PlayerID] = p
	}

	for _, p := range next.Players {
		old, ok := prev[p.PlayerID]
		delete(prev, p.PlayerID)
		switch {
		case !ok:
			if _, err := tx.NamedExecContext(ctx, insertPlayerQuery, newPlayerDTO(p)); err != nil {
				return err
			}
		case old.Connected != p.Connected:
			if _, err := tx.ExecContext(ctx, `
				UPDATE room_players SET connected = $1 WHERE room_id = $2 AND player_id = $3
			`, p.Connected, next.ID, p.PlayerID); err != nil {
				return err
			}
		}
	}

	for playerID := range prev {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM room_players WHERE room_id = $1 AND player_id = $2
		`, next.ID, playerID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Stale(ctx context.Context, waitingBefore, playingBefore time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM rooms
		WHERE (status = 'waiting' AND created_at < $1)
		   OR (status = 'playing' AND started_at < $2)
	`

	var ids []uuid.UUID
	if err := d.db.SelectContext(ctx, &ids, query, waitingBefore, playingBefore); err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

func (d *Driver) Purge(ctx context.Context, terminalBefore time.Time) (int, error) {
	query := `
		DELETE FROM rooms
		WHERE status IN ('finished', 'abandoned') AND updated_at < $1
	`

	result, err := d.db.ExecContext(ctx, query, terminalBefore)
	if err != nil {
		return 0, classify(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

func (d *Driver) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	return classify(tx.Commit())
}
