package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	SlotOwner      = 1
	SlotChallenger = 2

	MaxPlayers = 2
)

type Membership struct {
	RoomID    uuid.UUID
	PlayerID  string
	Slot      int
	Connected bool
	JoinedAt  time.Time
}

func sortBySlot(players []Membership) {
	sort.Slice(players, func(i, j int) bool {
		return players[i].Slot < players[j].Slot
	})
}
