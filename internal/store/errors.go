package store

import (
	"errors"
)

// ErrPersistence wraps any gateway create/list failure. Callers in the
// customer path log it and keep operating on local state; the realtime
// channel, not the write response, confirms delivery.
var ErrPersistence = errors.New("persistence error")

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")
