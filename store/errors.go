package store

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Error kinds surfaced by the store. Handlers map these to status codes;
// backend detail never reaches the wire.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidData   = errors.New("invalid data")
	ErrBackend       = errors.New("backend error")
)

// classify folds gorm errors into the store taxonomy. Callers handle
// ErrRecordNotFound themselves where a miss is not an error.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.WithMessage(ErrAlreadyExists, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.WithMessage(ErrNotFound, err.Error())
	default:
		return errors.WithMessage(ErrBackend, err.Error())
	}
}
