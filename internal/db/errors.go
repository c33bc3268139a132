package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
)

// Op constants name the backend operation for error context.
const (
	OpIndexInfo = "FT.INFO"
	OpIndexList = "FT._LIST"
	OpSearch    = "FT.SEARCH"
	OpDel       = "DEL"
	OpScan      = "SCAN"
	OpGet       = "GET"
	OpMGet      = "MGET"
	OpHGetAll   = "HGETALL"
	OpSet       = "SET"
	OpQuery     = "QUERY"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
