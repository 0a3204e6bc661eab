package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusPlaying   RoomStatus = "playing"
	StatusFinished  RoomStatus = "finished"
	StatusAbandoned RoomStatus = "abandoned"
)

var (
	ErrRoomClosed        = errors.New("room is closed")
	ErrRoomNotReady      = errors.New("room is not ready")
	ErrRoomFull          = errors.New("room is full")
	ErrNotMember         = errors.New("player is not a member of the room")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func (s RoomStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusPlaying, StatusFinished, StatusAbandoned:
		return true
	}
	return false
}

// Terminal rooms release their code and drop their memberships.
func (s RoomStatus) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

func (s RoomStatus) CanTransition(to RoomStatus) bool {
	switch s {
	case StatusWaiting:
		return to == StatusPlaying || to == StatusAbandoned
	case StatusPlaying:
		return to == StatusFinished || to == StatusAbandoned
	}
	return false
}

type Room struct {
	ID        uuid.UUID
	Code      string
	Status    RoomStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	StartedAt *time.Time

	// Ordered by slot.
	Players []Membership
}

// NewRoom builds a waiting room with ownerID seated at the owner slot.
func NewRoom(code string, ownerID string, now time.Time) Room {
	id := uuid.New()
	return Room{
		ID:        id,
		Code:      code,
		Status:    StatusWaiting,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Players: []Membership{{
			RoomID:    id,
			PlayerID:  ownerID,
			Slot:      SlotOwner,
			Connected: true,
			JoinedAt:  now,
		}},
	}
}

func (r Room) Clone() Room {
	out := r
	if r.StartedAt != nil {
		startedAt := *r.StartedAt
		out.StartedAt = &startedAt
	}
	out.Players = append([]Membership(nil), r.Players...)
	return out
}

func (r *Room) Member(playerID string) (*Membership, bool) {
	for i := range r.Players {
		if r.Players[i].PlayerID == playerID {
			return &r.Players[i], true
		}
	}
	return nil, false
}

func (r *Room) SlotTaken(slot int) bool {
	for _, p := range r.Players {
		if p.Slot == slot {
			return true
		}
	}
	return false
}

// Join seats playerID at the challenger slot and starts the match.
// A player who already holds a slot is reconnected instead.
func (r *Room) Join(playerID string, now time.Time) error {
	if r.Status.Terminal() {
		return ErrRoomClosed
	}
	if m, ok := r.Member(playerID); ok {
		if !m.Connected {
			m.Connected = true
			r.touch(now)
		}
		return nil
	}
	if !r.SlotTaken(SlotOwner) {
		return ErrRoomNotReady
	}
	if r.SlotTaken(SlotChallenger) || len(r.Players) >= MaxPlayers {
		return ErrRoomFull
	}

	r.Players = append(r.Players, Membership{
		RoomID:    r.ID,
		PlayerID:  playerID,
		Slot:      SlotChallenger,
		Connected: true,
		JoinedAt:  now,
	})
	sortBySlot(r.Players)

	return r.Transition(StatusPlaying, now)
}

func (r *Room) SetConnected(playerID string, connected bool, now time.Time) error {
	if r.Status.Terminal() {
		return ErrRoomClosed
	}
	m, ok := r.Member(playerID)
	if !ok {
		return ErrNotMember
	}
	if m.Connected == connected {
		return nil
	}
	m.Connected = connected
	r.touch(now)
	return nil
}

func (r *Room) Transition(to RoomStatus, now time.Time) error {
	if !r.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	r.Status = to
	if to == StatusPlaying {
		startedAt := now
		r.StartedAt = &startedAt
	}
	if to.Terminal() {
		r.Players = nil
	}
	r.touch(now)
	return nil
}

// Ready reports whether both players are seated, connected and the match has started.
func (r *Room) Ready() bool {
	if r.Status != StatusPlaying || len(r.Players) != MaxPlayers {
		return false
	}
	for _, p := range r.Players {
		if !p.Connected {
			return false
		}
	}
	return true
}

func (r *Room) touch(now time.Time) {
	r.Version++
	r.UpdatedAt = now
}
