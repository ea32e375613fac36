package contract

import "errors"

var (
	ErrModelInvoke        = errors.New("model invoke failed")
	ErrSchemaViolation    = errors.New("model response violates schema")
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("record not found")
	ErrConflict           = errors.New("record already exists")
	ErrUnsupportedChannel = errors.New("unsupported channel")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrProviderStatus     = errors.New("provider returned non-success status")
)
