package forecast

import "errors"

var (
	ErrMalformedDate  = errors.New("malformed transaction date")
	ErrLengthMismatch = errors.New("series length mismatch")
	ErrInvalidWeights = errors.New("invalid ensemble weights")
	ErrUnknownMethod  = errors.New("unknown forecast method")
)
