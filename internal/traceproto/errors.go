package traceproto

import (
	"errors"

	"ticktrace.gg/internal/trace"
)

const (
	// Playback request validation.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownSession = "E_UNKNOWN_SESSION"

	// Header layer decode failures.
	ErrWrongMagic       = "E_WRONG_MAGIC"
	ErrMalformedJSON    = "E_MALFORMED_JSON"
	ErrMalformedHeader  = "E_MALFORMED_HEADER"
	ErrMalformedVersion = "E_MALFORMED_VERSION"
	ErrMalformedMapSize = "E_MALFORMED_MAP_SIZE"
	ErrMalformedMapCRC  = "E_MALFORMED_MAP_CRC"

	// Item stream decode failures.
	ErrUnknownVersion       = "E_UNKNOWN_VERSION"
	ErrTickOverflow         = "E_TICK_OVERFLOW"
	ErrInvalidClientID      = "E_INVALID_CLIENT_ID"
	ErrPlayerNewDuplicate   = "E_PLAYER_NEW_DUPLICATE"
	ErrPlayerDiffWithoutNew = "E_PLAYER_DIFF_WITHOUT_NEW"
	ErrPlayerOldWithoutNew  = "E_PLAYER_OLD_WITHOUT_NEW"
	ErrInputNewDuplicate    = "E_INPUT_NEW_DUPLICATE"
	ErrInputDiffWithoutNew  = "E_INPUT_DIFF_WITHOUT_NEW"
	ErrUnexpectedEnd        = "E_UNEXPECTED_END"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:           {},
	ErrUnknownSession:       {},
	ErrWrongMagic:           {},
	ErrMalformedJSON:        {},
	ErrMalformedHeader:      {},
	ErrMalformedVersion:     {},
	ErrMalformedMapSize:     {},
	ErrMalformedMapCRC:      {},
	ErrUnknownVersion:       {},
	ErrTickOverflow:         {},
	ErrInvalidClientID:      {},
	ErrPlayerNewDuplicate:   {},
	ErrPlayerDiffWithoutNew: {},
	ErrPlayerOldWithoutNew:  {},
	ErrInputNewDuplicate:    {},
	ErrInputDiffWithoutNew:  {},
	ErrUnexpectedEnd:        {},
	ErrInternal:             {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var decodeCodes = map[trace.Code]string{
	trace.CodeWrongMagic:           ErrWrongMagic,
	trace.CodeMalformedJSON:        ErrMalformedJSON,
	trace.CodeMalformedHeader:      ErrMalformedHeader,
	trace.CodeMalformedVersion:     ErrMalformedVersion,
	trace.CodeMalformedMapSize:     ErrMalformedMapSize,
	trace.CodeMalformedMapCRC:      ErrMalformedMapCRC,
	trace.CodeUnknownVersion:       ErrUnknownVersion,
	trace.CodeTickOverflow:         ErrTickOverflow,
	trace.CodeInvalidClientID:      ErrInvalidClientID,
	trace.CodePlayerNewDuplicate:   ErrPlayerNewDuplicate,
	trace.CodePlayerDiffWithoutNew: ErrPlayerDiffWithoutNew,
	trace.CodePlayerOldWithoutNew:  ErrPlayerOldWithoutNew,
	trace.CodeInputNewDuplicate:    ErrInputNewDuplicate,
	trace.CodeInputDiffWithoutNew:  ErrInputDiffWithoutNew,
	trace.CodeUnexpectedEnd:        ErrUnexpectedEnd,
}

// CodeFor maps a decode failure to its wire code.
func CodeFor(err error) string {
	var te *trace.Error
	if errors.As(err, &te) {
		if c, ok := decodeCodes[te.Code]; ok {
			return c
		}
	}
	return ErrInternal
}

// OffsetFor reports where in the trace a decode failure happened, or 0 when
// the error carries no position.
func OffsetFor(err error) int {
	var te *trace.Error
	if errors.As(err, &te) {
		return te.Offset
	}
	return 0
}
