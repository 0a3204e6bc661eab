package model

import (
	"time"

	"github.com/google/uuid"
)

type PlayerSnapshot struct {
	Slot      int    `json:"slot"`
	PlayerID  string `json:"player_id"`
	Connected bool   `json:"connected"`
}

// Snapshot is the read-only view of a room handed to clients.
// Consumers replace their local copy with every snapshot they receive.
type Snapshot struct {
	ID        uuid.UUID        `json:"id"`
	Code      string           `json:"code"`
	Status    RoomStatus       `json:"status"`
	Version   int64            `json:"version"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	Ready     bool             `json:"ready"`
	Players   []PlayerSnapshot `json:"players"`
}

func (r Room) Snapshot() Snapshot {
	s := Snapshot{
		ID:      r.ID,
		Code:    r.Code,
		Status:  r.Status,
		Version: r.Version,
		Ready:   r.Ready(),
		Players: make([]PlayerSnapshot, 0, len(r.Players)),
	}
	if r.StartedAt != nil {
		startedAt := *r.StartedAt
		s.StartedAt = &startedAt
	}
	for _, p := range r.Players {
		s.Players = append(s.Players, PlayerSnapshot{
			Slot:      p.Slot,
			PlayerID:  p.PlayerID,
			Connected: p.Connected,
		})
	}
	return s
}
