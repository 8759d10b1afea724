package core

import "errors"

var (
	ErrInvalidJoinRequest  = errors.New("invalid join request")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrRoomFull            = errors.New("room full")
	ErrRoomNotFound        = errors.New("room not found")
	ErrBackpressure        = errors.New("backpressure")
	ErrConnectionClosed    = errors.New("connection closed")
)
