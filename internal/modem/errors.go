package modem

import "errors"

// Error taxonomy shared by every stage of the link. Stages wrap these with
// context, callers match them with errors.Is.
var (
	ErrUnsupportedScheme       = errors.New("unsupported modulation scheme")
	ErrInvalidChannelParameter = errors.New("invalid channel parameter")
	ErrMalformedBitstream      = errors.New("malformed bitstream")
	ErrLengthMismatch          = errors.New("length mismatch")
)
