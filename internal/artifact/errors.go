package artifact

import "errors"

// Sentinel errors the gates map onto gatekit neutral reasons (spec §4.7).
var (
	ErrMissingArtifact  = errors.New("artifact not found in CI run")
	ErrArtifactTooLarge = errors.New("artifact exceeds configured size limit")
	ErrParseError       = errors.New("artifact content could not be parsed")
	ErrInvalidFormat    = errors.New("artifact content does not match the declared format")
)
