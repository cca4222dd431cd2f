package repositories

import (
	"errors"
	"fmt"
)

// ErrHeroIndexOutOfRange indicates a hero replacement beyond the append position.
var ErrHeroIndexOutOfRange = errors.New("catalog repository: hero index out of range")

// NotFoundError reports a catalog or review entry that does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

// NewNotFoundError builds a NotFoundError for the entity key.
func NewNotFoundError(entity string, key any) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) IsNotFound() bool    { return true }
func (e *NotFoundError) IsConflict() bool    { return false }
func (e *NotFoundError) IsUnavailable() bool { return false }

// IsNotFound reports whether err carries a repository not-found classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
