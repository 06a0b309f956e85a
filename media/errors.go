package media

import "errors"

// Error kinds shared by every package in the module. Concrete errors wrap
// one of these so callers can classify them with errors.Is.
var (
	ErrMalformedInput            = errors.New("malformed input")
	ErrSequenceGap               = errors.New("sequence gap")
	ErrConfigurationInsufficient = errors.New("configuration insufficient")
	ErrCapacityExceeded          = errors.New("capacity exceeded")
)
