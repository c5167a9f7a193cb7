package boost

import (
	"errors"
	"fmt"

	"github.com/samcharles93/boost/internal/processors"
)

var (
	// ErrUnsupportedBackend is permanent for the variant that produced it;
	// retrying with other arguments cannot succeed.
	ErrUnsupportedBackend = errors.New("backend does not support constrained generation")
	ErrInvalidVariant     = errors.New("unrecognised model variant")
	ErrNoProcessor        = processors.ErrNoProcessor
	ErrNilModel           = errors.New("model is nil")
)

// UnsupportedBackendError names the backend and why it cannot enforce a
// constraint.
type UnsupportedBackendError struct {
	Backend string
	Reason  string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("cannot use regex-structured generation with %s: %s", e.Backend, e.Reason)
}

func (e *UnsupportedBackendError) Unwrap() error { return ErrUnsupportedBackend }

// InvalidVariantError reports a model whose runtime type is not one of the
// known variants and which could not take the default path.
type InvalidVariantError struct {
	Type   string
	Reason string
}

func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("model of type %s: %s", e.Type, e.Reason)
}

func (e *InvalidVariantError) Unwrap() error { return ErrInvalidVariant }
