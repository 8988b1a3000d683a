package alert

import "errors"

var (
	// ErrUnknownParameter is returned when a threshold update names a
	// parameter outside the configured set
	ErrUnknownParameter = errors.New("unknown parameter")
)
