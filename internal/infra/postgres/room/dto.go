package infra_postgres_room

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/towerduels/internal/model"
)

type roomDTO struct {
	ID        uuid.UUID    `db:"id"`
	Code      string       `db:"code"`
	Status    string       `db:"status"`
	Version   int64        `db:"version"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
	StartedAt sql.NullTime `db:"started_at"`
}

type playerDTO struct {
	RoomID    uuid.UUID `db:"room_id"`
	PlayerID  string    `db:"player_id"`
	Slot      int       `db:"slot"`
	Connected bool      `db:"connected"`
	JoinedAt  time.Time `db:"joined_at"`
}

// roomRowDTO is one row of rooms LEFT JOIN room_players.
type roomRowDTO struct {
	ID        uuid.UUID      `db:"id"`
	Code      string         `db:"code"`
	Status    string         `db:"status"`
	Version   int64          `db:"version"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
	StartedAt sql.NullTime   `db:"started_at"`
	PlayerID  sql.NullString `db:"player_id"`
	Slot      sql.NullInt16  `db:"slot"`
	Connected sql.NullBool   `db:"connected"`
	JoinedAt  sql.NullTime   `db:"joined_at"`
}

func newRoomDTO(r model.Room) roomDTO {
	return roomDTO{
		ID:        r.ID,
		Code:      r.Code,
		Status:    string(r.Status),
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		StartedAt: nullTime(r.StartedAt),
	}
}

func newPlayerDTO(m model.Membership) playerDTO {
	return playerDTO{
		RoomID:    m.RoomID,
		PlayerID:  m.PlayerID,
		Slot:      m.Slot,
		Connected: m.Connected,
		JoinedAt:  m.JoinedAt,
	}
}

// toDomain folds the joined rows of a single room. Rows are ordered by slot.
func toDomain(rows []roomRowDTO) model.Room {
	head := rows[0]
	r := model.Room{
		ID:        head.ID,
		Code:      head.Code,
		Status:    model.RoomStatus(head.Status),
		Version:   head.Version,
		CreatedAt: head.CreatedAt,
		UpdatedAt: head.UpdatedAt,
	}
	if head.StartedAt.Valid {
		startedAt := head.StartedAt.Time
		r.StartedAt = &startedAt
	}
	for _, row := range rows {
		if !row.PlayerID.Valid {
			continue
		}
		r.Players = append(r.Players, model.Membership{
			RoomID:    head.ID,
			PlayerID:  row.PlayerID.String,
			Slot:      int(row.Slot.Int16),
			Connected: row.Connected.Bool,
			JoinedAt:  row.JoinedAt.Time,
		})
	}
	return r
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
