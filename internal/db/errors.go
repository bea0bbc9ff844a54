package db

import "errors"

// Sentinel errors of the driver.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
)

// Redis commands, used as Error.Op.
const (
	OpPing        = "PING"
	OpGet         = "GET"
	OpSet         = "SET"
	OpSetNX       = "SET NX"
	OpHSet        = "HSET"
	OpDel         = "DEL"
	OpExists      = "EXISTS"
	OpCreateIndex = "FT.CREATE"
	OpSearch      = "FT.SEARCH"
	OpIndexInfo   = "FT.INFO"
)

// Error attaches the failed command to a driver error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "redis " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
