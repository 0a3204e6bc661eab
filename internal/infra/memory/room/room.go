package infra_memory_room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/towerduels/internal/model"
	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
)

type entry struct {
	mu   sync.Mutex
	room model.Room
}

// Driver keeps rooms in process memory. The index lock guards only the
// id and code maps; each room is mutated under its own lock, so rooms never
// contend with each other.
type Driver struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]*entry
	byCode map[string]uuid.UUID // non-terminal rooms only
}

func New() *Driver {
	return &Driver{
		rooms:  make(map[uuid.UUID]*entry),
		byCode: make(map[string]uuid.UUID),
	}
}

func (d *Driver) Create(ctx context.Context, room model.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byCode[room.Code]; taken {
		return usecase_room.ErrCodeConflict
	}
	if _, exists := d.rooms[room.ID]; exists {
		return usecase_room.ErrCodeConflict
	}

	d.rooms[room.ID] = &entry{room: room.Clone()}
	d.byCode[room.Code] = room.ID
	return nil
}

func (d *Driver) ByCode(ctx context.Context, code string) (model.Room, error) {
	if err := ctx.Err(); err != nil {
		return model.Room{}, err
	}

	d.mu.RLock()
	id, ok := d.byCode[code]
	e := d.rooms[id]
	d.mu.RUnlock()
	if !ok || e == nil {
		return model.Room{}, usecase_room.ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room.Status.Terminal() {
		return model.Room{}, usecase_room.ErrRoomNotFound
	}
	return e.room.Clone(), nil
}

func (d *Driver) ByID(ctx context.Context, id uuid.UUID) (model.Room, error) {
	if err := ctx.Err(); err != nil {
		return model.Room{}, err
	}

	e, ok := d.entry(id)
	if !ok {
		return model.Room{}, usecase_room.ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room.Clone(), nil
}

func (d *Driver) Update(ctx context.Context, id uuid.UUID, fn func(r *model.Room) error) (model.Room, error) {
	e, ok := d.entry(id)
	if !ok {
		return model.Room{}, usecase_room.ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.Room{}, err
	}

	next := e.room.Clone()
	if err := fn(&next); err != nil {
		return model.Room{}, err
	}
	if next.Version == e.room.Version {
		return next, nil
	}

	wasTerminal := e.room.Status.Terminal()
	e.room = next.Clone()

	if next.Status.Terminal() && !wasTerminal {
		d.mu.Lock()
		if d.byCode[next.Code] == next.ID {
			delete(d.byCode, next.Code)
		}
		d.mu.Unlock()
	}
	return next, nil
}

func (d *Driver) Stale(ctx context.Context, waitingBefore, playingBefore time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, e := range d.snapshotEntries() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.mu.Lock()
		r := e.room
		switch {
		case r.Status == model.StatusWaiting && r.CreatedAt.Before(waitingBefore):
			ids = append(ids, r.ID)
		case r.Status == model.StatusPlaying && r.StartedAt != nil && r.StartedAt.Before(playingBefore):
			ids = append(ids, r.ID)
		}
		e.mu.Unlock()
	}
	return ids, nil
}

func (d *Driver) Purge(ctx context.Context, terminalBefore time.Time) (int, error) {
	var ids []uuid.UUID
	for _, e := range d.snapshotEntries() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		e.mu.Lock()
		if e.room.Status.Terminal() && e.room.UpdatedAt.Before(terminalBefore) {
			ids = append(ids, e.room.ID)
		}
		e.mu.Unlock()
	}

	// Terminal rooms never change again, so the candidates stay valid.
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		delete(d.rooms, id)
	}
	return len(ids), nil
}

func (d *Driver) entry(id uuid.UUID) (*entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.rooms[id]
	return e, ok
}

func (d *Driver) snapshotEntries() []*entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*entry, 0, len(d.rooms))
	for _, e := range d.rooms {
		out = append(out, e)
	}
	return out
}
