package protocol

import (
	"errors"

	"itemconverter.ai/internal/convert/exec"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Conversion layer.
	ErrBadRequest        = "E_BAD_REQUEST"
	ErrNoPath            = "E_NO_PATH"
	ErrInsufficient      = "E_INSUFFICIENT"
	ErrPartialExtraction = "E_PARTIAL_EXTRACTION"
	ErrBusy              = "E_BUSY"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrBadRequest:        {},
	ErrNoPath:            {},
	ErrInsufficient:      {},
	ErrPartialExtraction: {},
	ErrBusy:              {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps a conversion error to its wire code; nil maps to "".
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, exec.ErrInvalidRequest):
		return ErrBadRequest
	case errors.Is(err, exec.ErrPathNotFound):
		return ErrNoPath
	case errors.Is(err, exec.ErrInsufficientQuantity):
		return ErrInsufficient
	case errors.Is(err, exec.ErrPartialExtraction):
		return ErrPartialExtraction
	default:
		return ErrInternal
	}
}
