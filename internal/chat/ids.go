package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a fresh ULID. ULIDs sort lexicographically by creation
// time, which keeps the recent-sessions listing and id-ordered scans cheap.
func NewSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func NewTurnJobID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
