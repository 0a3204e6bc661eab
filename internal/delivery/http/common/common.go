package http_common

import (
	"errors"
	"net/http"

	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const (
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeRoomNotReady      = "ROOM_NOT_READY"
	CodeRoomFull          = "ROOM_FULL"
	CodeNotMember         = "NOT_MEMBER"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeSpaceExhausted    = "CODE_SPACE_EXHAUSTED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL"
)

// FromError maps a usecase error onto an HTTP status and response body.
// Unknown errors are reported as internal without leaking their text.
func FromError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, usecase_room.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorResponse{Message: "invalid argument", Code: CodeInvalidArgument}
	case errors.Is(err, usecase_room.ErrRoomNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "room not found", Code: CodeRoomNotFound}
	case errors.Is(err, usecase_room.ErrRoomNotReady):
		return http.StatusConflict, ErrorResponse{Message: "room is not ready", Code: CodeRoomNotReady}
	case errors.Is(err, usecase_room.ErrRoomFull):
		return http.StatusConflict, ErrorResponse{Message: "room is full", Code: CodeRoomFull}
	case errors.Is(err, usecase_room.ErrNotMember):
		return http.StatusForbidden, ErrorResponse{Message: "player is not a member of the room", Code: CodeNotMember}
	case errors.Is(err, usecase_room.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Message: "invalid status transition", Code: CodeInvalidTransition}
	case errors.Is(err, usecase_room.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable, ErrorResponse{Message: "no free room codes", Code: CodeSpaceExhausted}
	case errors.Is(err, usecase_room.ErrTransientStore):
		return http.StatusServiceUnavailable, ErrorResponse{Message: "unavailable", Code: CodeUnavailable}
	}
	return http.StatusInternalServerError, ErrorResponse{Message: "internal error", Code: CodeInternal}
}
