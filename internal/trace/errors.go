package trace

import "fmt"

// Code identifies one decode failure. The set is closed so callers can
// branch exhaustively.
type Code uint8

const (
	// Header layer, raised before any item is decoded.
	CodeWrongMagic Code = iota + 1
	CodeMalformedJSON
	CodeMalformedHeader
	CodeMalformedVersion
	CodeMalformedMapSize
	CodeMalformedMapCRC

	// Item stream.
	CodeUnknownVersion
	CodeTickOverflow
	CodeInvalidClientID
	CodePlayerNewDuplicate
	CodePlayerDiffWithoutNew
	CodePlayerOldWithoutNew
	CodeInputNewDuplicate
	CodeInputDiffWithoutNew
	CodeUnexpectedEnd
)

var codeNames = map[Code]string{
	CodeWrongMagic:           "wrong magic",
	CodeMalformedJSON:        "malformed json",
	CodeMalformedHeader:      "malformed header",
	CodeMalformedVersion:     "malformed version",
	CodeMalformedMapSize:     "malformed map_size",
	CodeMalformedMapCRC:      "malformed map_crc",
	CodeUnknownVersion:       "unknown version",
	CodeTickOverflow:         "tick overflow",
	CodeInvalidClientID:      "invalid client id",
	CodePlayerNewDuplicate:   "player new for present client",
	CodePlayerDiffWithoutNew: "player diff for absent client",
	CodePlayerOldWithoutNew:  "player old for absent client",
	CodeInputNewDuplicate:    "input new for active client",
	CodeInputDiffWithoutNew:  "input diff for inactive client",
	CodeUnexpectedEnd:        "unexpected end of stream",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Error is a decode failure with enough context to diagnose the input
// without re-parsing it: the byte offset of the failing record, the client
// slot and item kind where one applies, and the header field name inside
// the header layer.
type Error struct {
	Code   Code
	Offset int
	Client int      // -1 when the failure is not tied to a client slot
	Kind   ItemKind // meaningful only when Client >= 0
	Field  string   // header field name, "" outside the header
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("trace: %s (field %q at offset %d)", e.Code, e.Field, e.Offset)
	case e.Client >= 0:
		return fmt.Sprintf("trace: %s (client %d, %s at offset %d)", e.Code, e.Client, e.Kind, e.Offset)
	default:
		return fmt.Sprintf("trace: %s (offset %d)", e.Code, e.Offset)
	}
}

// Is matches on the code alone, so errors.Is(err, ErrTickOverflow) holds
// for any failure of that code regardless of context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// One sentinel per code, for errors.Is.
var (
	ErrWrongMagic           = errAt(CodeWrongMagic, 0)
	ErrMalformedJSON        = errAt(CodeMalformedJSON, 0)
	ErrMalformedHeader      = errAt(CodeMalformedHeader, 0)
	ErrMalformedVersion     = errAt(CodeMalformedVersion, 0)
	ErrMalformedMapSize     = errAt(CodeMalformedMapSize, 0)
	ErrMalformedMapCRC      = errAt(CodeMalformedMapCRC, 0)
	ErrUnknownVersion       = errAt(CodeUnknownVersion, 0)
	ErrTickOverflow         = errAt(CodeTickOverflow, 0)
	ErrInvalidClientID      = errAt(CodeInvalidClientID, 0)
	ErrPlayerNewDuplicate   = errAt(CodePlayerNewDuplicate, 0)
	ErrPlayerDiffWithoutNew = errAt(CodePlayerDiffWithoutNew, 0)
	ErrPlayerOldWithoutNew  = errAt(CodePlayerOldWithoutNew, 0)
	ErrInputNewDuplicate    = errAt(CodeInputNewDuplicate, 0)
	ErrInputDiffWithoutNew  = errAt(CodeInputDiffWithoutNew, 0)
	ErrUnexpectedEnd        = errAt(CodeUnexpectedEnd, 0)
)

func errAt(code Code, off int) *Error {
	return &Error{Code: code, Offset: off, Client: -1}
}

func fieldErr(code Code, off int, field string) *Error {
	return &Error{Code: code, Offset: off, Client: -1, Field: field}
}

func itemErr(code Code, off, client int, kind ItemKind) *Error {
	return &Error{Code: code, Offset: off, Client: client, Kind: kind}
}
