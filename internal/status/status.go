package status

import "errors"

var (
	ErrTokenNotFound     = errors.New("ledger: token not found")
	ErrInvalidTransition = errors.New("ledger: invalid status transition")
	ErrNoDevice          = errors.New("pairing: no device connected")
	ErrRequestNotFound   = errors.New("pairing: request not found")
	ErrRemoteDisabled    = errors.New("sync: remote store not configured")
	ErrRemoteUnavailable = errors.New("sync: remote store unavailable")
	ErrMalformedRecord   = errors.New("sync: remote record has no valid token")
)
