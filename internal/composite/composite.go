// Package composite decodes the byte-encoded tuple ("composite name") used
// to represent a physical column or clustering name inside an SSTable cell.
// It knows nothing about schema or cell semantics: the composite decoder
// works purely on bytes and defers typed interpretation to the consumer
// (internal/rowconsumer).
//
// Modeled on a fixed, self-describing binary suffix format and
// length-prefixed primitives, generalized here to a variable number of
// length-prefixed components terminated by a 1-byte marker each.
package composite

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated indicates the composite's byte stream ended mid-component.
var ErrTruncated = errors.New("composite: truncated component")

// StaticMarker is the 2-byte prefix that tags a composite name as
// belonging to the partition's static row.
var StaticMarker = [2]byte{0xFF, 0xFF}

// End-of-component marker byte values.
const (
	MarkerNone           byte = 0x00
	MarkerEndOfRange     byte = 0x01
	MarkerStartOfRange   byte = 0xFF
)

// HasStaticPrefix reports whether raw begins with the 2-byte static-row
// marker, returning the remaining bytes with the marker stripped.
func HasStaticPrefix(raw []byte) (rest []byte, static bool) {
	if len(raw) >= 2 && raw[0] == StaticMarker[0] && raw[1] == StaticMarker[1] {
		return raw[2:], true
	}
	return raw, false
}

// Explode splits a composite's component stream into its parts. Each
// component is encoded as a 2-byte big-endian length, that many bytes, and
// a 1-byte end-of-component marker. A non-compound schema's composite is a
// single component with no length prefix or marker at all, so callers
// check schema.IsCompound before calling Explode and otherwise wrap the raw
// bytes as the sole component themselves.
func Explode(raw []byte) ([][]byte, error) {
	var components [][]byte
	for len(raw) > 0 {
		if len(raw) < 2 {
			return nil, ErrTruncated
		}
		n := int(binary.BigEndian.Uint16(raw))
		raw = raw[2:]
		if len(raw) < n+1 {
			return nil, ErrTruncated
		}
		components = append(components, raw[:n])
		// The marker byte (raw[n]) is consumed here; range-tombstone
		// callers inspect it before calling Explode via LastMarker.
		raw = raw[n+1:]
	}
	return components, nil
}

// LastMarker returns the end-of-component marker byte following the last
// component in raw, without fully exploding it. Used by range-tombstone
// handling to check for MarkerEndOfRange / MarkerStartOfRange.
func LastMarker(raw []byte) (byte, error) {
	for len(raw) > 0 {
		if len(raw) < 2 {
			return 0, ErrTruncated
		}
		n := int(binary.BigEndian.Uint16(raw))
		raw = raw[2:]
		if len(raw) < n+1 {
			return 0, ErrTruncated
		}
		marker := raw[n]
		rest := raw[n+1:]
		if len(rest) == 0 {
			return marker, nil
		}
		raw = rest
	}
	return MarkerNone, nil
}

// StripTrailingMarkerByte drops a single trailing marker byte appended
// directly to raw (used for the range-tombstone end composite, which
// carries the range-end marker as its very last byte, distinct from
// per-component markers).
func StripTrailingMarkerByte(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	return raw[:len(raw)-1]
}

// Encode re-assembles components into a composite's byte stream, each
// followed by MarkerNone. Used by tests to build composite names.
func Encode(components [][]byte) []byte {
	var out []byte
	var lenBuf [2]byte
	for _, c := range components {
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(c)))
		out = append(out, lenBuf[:]...)
		out = append(out, c...)
		out = append(out, MarkerNone)
	}
	return out
}
