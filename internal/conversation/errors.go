// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation marks a participant acting out of turn or
	// producing output the protocol cannot accept.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrAlreadyRun is yielded when a finished or running orchestrator is
	// iterated again.
	ErrAlreadyRun = errors.New("conversation already run")

	// ErrAbandoned is recorded when the consumer stops iterating early.
	ErrAbandoned = errors.New("conversation abandoned by consumer")
)

// ProtocolError describes a violation. errors.Is(err, ErrProtocolViolation)
// holds for every ProtocolError.
type ProtocolError struct {
	Role   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation by %s: %s", e.Role, e.Reason)
}

// Is reports ErrProtocolViolation as a match.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocolViolation }

func violation(role, format string, args ...any) error {
	return &ProtocolError{Role: role, Reason: fmt.Sprintf(format, args...)}
}
