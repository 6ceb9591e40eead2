package sstable

import (
	"encoding/binary"
	"fmt"

	"coltable/internal/encoding"
	"coltable/token"
)

// SummaryEntry is one sparse entry: the first decorated key of a bucket and
// that bucket's index_list position within the index file.
type SummaryEntry struct {
	FirstKey        token.DecoratedKey
	IndexListOffset uint64
	IndexListSize   uint64
}

// Summary is the whole sparse summary: every bucket's leading entry, in
// (token, key) order.
type Summary struct {
	Entries []SummaryEntry
}

// IndexEntry is one dense entry within a bucket: a key, its data-file
// position, and an optional promoted-index payload (opaque to this
// package; the partition reader owns its interpretation).
type IndexEntry struct {
	Key            token.DecoratedKey
	DataPosition   uint64
	PromotedIndex  []byte
}

// IndexList is one bucket's dense index, in (token, key) order.
type IndexList struct {
	Entries []IndexEntry
}

// decodeDecoratedKey reads an 8-byte big-endian token followed by a
// length-prefixed key, returning the decoded key and the remaining bytes.
func decodeDecoratedKey(buf []byte) (token.DecoratedKey, []byte, error) {
	if len(buf) < 8 {
		return token.DecoratedKey{}, nil, fmt.Errorf("%w: truncated token", ErrMalformed)
	}
	tok := token.Token(int64(binary.BigEndian.Uint64(buf)))
	buf = buf[8:]
	key, n, err := encoding.DecodeLengthPrefixedSlice(buf)
	if err != nil {
		return token.DecoratedKey{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return token.DecoratedKey{Token: tok, Key: key}, buf[n:], nil
}

// DecodeSummary parses a summary block: a 4-byte big-endian entry count
// followed by that many (token, key, index-list-offset, index-list-size)
// entries.
func DecodeSummary(buf []byte) (Summary, error) {
	if len(buf) < 4 {
		return Summary{}, fmt.Errorf("%w: truncated summary header", ErrMalformed)
	}
	count := binary.BigEndian.Uint32(buf)
	buf = buf[4:]

	s := Summary{Entries: make([]SummaryEntry, 0, count)}
	for i := uint32(0); i < count; i++ {
		key, rest, err := decodeDecoratedKey(buf)
		if err != nil {
			return Summary{}, err
		}
		buf = rest
		if len(buf) < 16 {
			return Summary{}, fmt.Errorf("%w: truncated summary entry", ErrMalformed)
		}
		offset := binary.BigEndian.Uint64(buf)
		size := binary.BigEndian.Uint64(buf[8:])
		buf = buf[16:]
		s.Entries = append(s.Entries, SummaryEntry{FirstKey: key, IndexListOffset: offset, IndexListSize: size})
	}
	return s, nil
}

// DecodeIndexList parses one bucket's dense index: a 4-byte entry count
// followed by (token, key, data-position, promoted-index-length,
// promoted-index-bytes) entries.
func DecodeIndexList(buf []byte) (IndexList, error) {
	if len(buf) < 4 {
		return IndexList{}, fmt.Errorf("%w: truncated index_list header", ErrMalformed)
	}
	count := binary.BigEndian.Uint32(buf)
	buf = buf[4:]

	l := IndexList{Entries: make([]IndexEntry, 0, count)}
	for i := uint32(0); i < count; i++ {
		key, rest, err := decodeDecoratedKey(buf)
		if err != nil {
			return IndexList{}, err
		}
		buf = rest
		if len(buf) < 8 {
			return IndexList{}, fmt.Errorf("%w: truncated index entry", ErrMalformed)
		}
		pos := binary.BigEndian.Uint64(buf)
		buf = buf[8:]
		promoted, n, err := encoding.DecodeLengthPrefixedSlice(buf)
		if err != nil {
			return IndexList{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		buf = buf[n:]
		l.Entries = append(l.Entries, IndexEntry{Key: key, DataPosition: pos, PromotedIndex: promoted})
	}
	return l, nil
}

// BinarySearchSummary runs a binary search over summary entries ordered by
// (token, key): a non-negative exact match index, -1 if key sorts before
// entries[0], or <= -2 encoding the insertion point gt as -gt-1 (gt >= 1).
func BinarySearchSummary(entries []SummaryEntry, key token.DecoratedKey) int {
	return binarySearch(len(entries), func(i int) int { return entries[i].FirstKey.Compare(key) })
}

// BinarySearchIndexList is BinarySearchSummary's counterpart over one
// bucket's dense index.
func BinarySearchIndexList(entries []IndexEntry, key token.DecoratedKey) int {
	return binarySearch(len(entries), func(i int) int { return entries[i].Key.Compare(key) })
}

// binarySearch runs the same insertion-point encoding over any indexable,
// sorted sequence of n elements via a comparator cmp(i) = compare(entries[i], key).
func binarySearch(n int, cmp func(i int) int) int {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		c := cmp(mid)
		switch {
		case c == 0:
			return mid
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	// lo is the insertion point gt.
	if lo == 0 {
		return -1
	}
	return -lo - 1
}

// ResolveBucket converts a binary_search result into "the bucket this key
// belongs to": the last bucket whose first key is <= the query key.
func ResolveBucket(raw int) int {
	if raw < 0 {
		return (-raw - 1) - 1
	}
	return raw
}
