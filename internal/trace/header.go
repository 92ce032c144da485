package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"ticktrace.gg/internal/packer"
)

// Magic identifies a session trace. The value is the v3 UUID of the
// recorder name "teehistorian@ddnet.tw" in the engine namespace, kept
// verbatim rather than recomputed.
var Magic = [16]byte{
	0x69, 0x9d, 0xb1, 0x7b, 0x8e, 0xfb, 0x34, 0xff,
	0xb1, 0xd8, 0xda, 0x6f, 0x60, 0xc1, 0x5d, 0xd1,
}

// Header is the session metadata from the trace preamble. All four fields
// are string-typed on the wire; the numeric ones are validated and
// converted on read.
type Header struct {
	Version int32
	MapName string
	MapSize uint32
	MapCRC  uint32
}

// headerDoc is the wire shape. Pointer fields distinguish a missing field
// from an empty one.
type headerDoc struct {
	Version *string `json:"version"`
	MapName *string `json:"map_name"`
	MapSize *string `json:"map_size"`
	MapCRC  *string `json:"map_crc"`
}

// MarshalJSON re-encodes the header in its wire shape: every field a
// string, map_crc as eight hex digits.
func (h Header) MarshalJSON() ([]byte, error) {
	version := strconv.FormatInt(int64(h.Version), 10)
	size := strconv.FormatUint(uint64(h.MapSize), 10)
	crc := fmt.Sprintf("%08x", h.MapCRC)
	name := h.MapName
	return json.Marshal(headerDoc{
		Version: &version,
		MapName: &name,
		MapSize: &size,
		MapCRC:  &crc,
	})
}

func readMagic(u *packer.Unpacker) error {
	off := u.Offset()
	raw, err := u.ReadRaw(len(Magic))
	if err != nil {
		return errAt(CodeUnexpectedEnd, off)
	}
	if !bytes.Equal(raw, Magic[:]) {
		return errAt(CodeWrongMagic, off)
	}
	return nil
}

func readHeader(u *packer.Unpacker) (Header, error) {
	off := u.Offset()
	payload, err := u.ReadString()
	if err != nil {
		return Header{}, errAt(CodeUnexpectedEnd, off)
	}
	return parseHeader(payload, off)
}

// parseHeader validates in declared field order and short-circuits on the
// first failure; no partial header is ever returned.
func parseHeader(payload []byte, off int) (Header, error) {
	var doc headerDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return Header{}, fieldErr(CodeMalformedJSON, off, "")
		}
		var typ *json.UnmarshalTypeError
		if errors.As(err, &typ) {
			return Header{}, fieldErr(CodeMalformedHeader, off, typ.Field)
		}
		return Header{}, fieldErr(CodeMalformedHeader, off, "")
	}
	if doc.Version == nil {
		return Header{}, fieldErr(CodeMalformedHeader, off, "version")
	}
	if doc.MapName == nil {
		return Header{}, fieldErr(CodeMalformedHeader, off, "map_name")
	}
	if doc.MapSize == nil {
		return Header{}, fieldErr(CodeMalformedHeader, off, "map_size")
	}
	if doc.MapCRC == nil {
		return Header{}, fieldErr(CodeMalformedHeader, off, "map_crc")
	}
	version, err := strconv.ParseInt(*doc.Version, 10, 32)
	if err != nil {
		return Header{}, fieldErr(CodeMalformedVersion, off, "version")
	}
	size, err := strconv.ParseUint(*doc.MapSize, 10, 32)
	if err != nil {
		return Header{}, fieldErr(CodeMalformedMapSize, off, "map_size")
	}
	crc, err := strconv.ParseUint(*doc.MapCRC, 16, 32)
	if err != nil {
		return Header{}, fieldErr(CodeMalformedMapCRC, off, "map_crc")
	}
	return Header{
		Version: int32(version),
		MapName: *doc.MapName,
		MapSize: uint32(size),
		MapCRC:  uint32(crc),
	}, nil
}
