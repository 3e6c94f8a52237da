package database

import "errors"

// ErrNotReady indicates the database could not be reached within the
// configured retries.
var ErrNotReady = errors.New("database not ready")
