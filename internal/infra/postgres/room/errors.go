package infra_postgres_room

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
	"github.com/lib/pq"
)

const (
	activeCodeConstraint = "rooms_active_code_uq"
	slotConstraint       = "room_players_slot_uq"

	uniqueViolation = pq.ErrorCode("23505")
)

var transientClasses = map[pq.ErrorClass]struct{}{
	"08": {}, // connection exception
	"40": {}, // serialization failure, deadlock
	"53": {}, // insufficient resources
	"57": {}, // operator intervention
}

// classify maps driver failures onto the coordinator's error taxonomy and
// passes every other error through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return usecase_room.ErrRoomNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolation {
			if pqErr.Constraint == slotConstraint {
				return usecase_room.ErrRoomFull
			}
			return usecase_room.ErrCodeConflict
		}
		if _, ok := transientClasses[pqErr.Code.Class()]; ok {
			return fmt.Errorf("%w: %w", usecase_room.ErrTransientStore, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", usecase_room.ErrTransientStore, err)
	}
	return err
}
