package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrNotTrained        = errors.New("not trained")
	ErrUnsupportedEntity = errors.New("unsupported entity")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrSerialization     = errors.New("serialization error")
)

// UnsupportedEntityError reports an entity that the ontology does not know
// for the given language.
type UnsupportedEntityError struct {
	Language string
	Entity   string
}

func (e *UnsupportedEntityError) Error() string {
	return fmt.Sprintf("builtin entity %q is not supported in language %q", e.Entity, e.Language)
}

func (e *UnsupportedEntityError) Unwrap() error { return ErrUnsupportedEntity }

// ResourceNotFoundError reports a missing resource bundle for a builtin
// gazetteer entity. The message carries the command that installs it.
type ResourceNotFoundError struct {
	Language string
	Entity   string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf(
		"no data found for the %q builtin entity in language %q: "+
			"install the corresponding resource by running "+
			"'gazette resources install %s %s' before using this builtin entity",
		e.Entity, e.Language, e.Entity, e.Language)
}

func (e *ResourceNotFoundError) Unwrap() error { return ErrResourceNotFound }
