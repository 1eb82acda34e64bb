package core

import "errors"

var (
	ErrUnknownBlock     = errors.New("unknown-block")
	ErrAlreadyCompleted = errors.New("already-completed")
	ErrInvalidNonce     = errors.New("invalid-nonce")

	ErrPeerNotFound  = errors.New("peer not found")
	ErrPeerBusy      = errors.New("peer send queue is full")
	ErrInvalidSignal = errors.New("invalid signal")

	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidEnergy   = errors.New("invalid energy value")

	ErrRateLimited = errors.New("rate limited")
)
