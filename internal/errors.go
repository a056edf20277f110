package internal

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrKicked           = errors.New("kicked from this room")
	ErrRoomFinished     = errors.New("room is finished")
	ErrRoomDegraded     = errors.New("room is degraded")
	ErrPlayerNotFound   = errors.New("player not in room")
	ErrNotAdmin         = errors.New("only the room admin can do that")
	ErrNotDrawer        = errors.New("only the current drawer can do that")
	ErrBadState         = errors.New("not allowed in the current room state")
	ErrNotEnoughPlayers = errors.New("need at least 2 players to start")
	ErrWordNotOffered   = errors.New("word is not among the suggestions")
	ErrSkipUsed         = errors.New("skip already used this turn")
	ErrSelfVote         = errors.New("cannot vote against yourself")
	ErrInvalidSettings  = errors.New("invalid room settings")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrMessageTooLong   = errors.New("message is too long")
	ErrInvalidName      = errors.New("display name must be 1-32 characters")
	ErrLockNotAcquired  = errors.New("room is busy, try again")
)
