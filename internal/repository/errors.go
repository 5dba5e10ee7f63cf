package repository

import "errors"

// ErrDuplicate reports a unique-index violation at write time.
var ErrDuplicate = errors.New("duplicate record")
