package sstable

import (
	"encoding/binary"
	"testing"

	"coltable/internal/encoding"
	"coltable/token"
)

func dk(tok int64, key string) token.DecoratedKey {
	return token.DecoratedKey{Token: token.Token(tok), Key: []byte(key)}
}

func TestBinarySearch_ExactMatch(t *testing.T) {
	entries := []SummaryEntry{
		{FirstKey: dk(10, "a")},
		{FirstKey: dk(20, "b")},
		{FirstKey: dk(30, "c")},
	}
	got := BinarySearchSummary(entries, dk(20, "b"))
	if got != 1 {
		t.Errorf("BinarySearchSummary exact match = %d, want 1", got)
	}
}

func TestBinarySearch_BeforeFirst(t *testing.T) {
	entries := []SummaryEntry{
		{FirstKey: dk(10, "a")},
		{FirstKey: dk(20, "b")},
	}
	got := BinarySearchSummary(entries, dk(5, "x"))
	if got != -1 {
		t.Errorf("BinarySearchSummary before-first = %d, want -1", got)
	}
}

func TestBinarySearch_InsertionPoint(t *testing.T) {
	entries := []SummaryEntry{
		{FirstKey: dk(10, "a")},
		{FirstKey: dk(30, "c")},
	}
	// Key 20 sorts strictly between index 0 and 1: insertion point gt=1,
	// encoded as -gt-1 = -2.
	got := BinarySearchSummary(entries, dk(20, "b"))
	if got != -2 {
		t.Errorf("BinarySearchSummary insertion point = %d, want -2", got)
	}
}

func TestBinarySearch_AfterLast(t *testing.T) {
	entries := []SummaryEntry{
		{FirstKey: dk(10, "a")},
		{FirstKey: dk(20, "b")},
	}
	// Key sorts after every entry: insertion point gt=len(entries)=2,
	// encoded as -2-1 = -3.
	got := BinarySearchSummary(entries, dk(99, "z"))
	if got != -3 {
		t.Errorf("BinarySearchSummary after-last = %d, want -3", got)
	}
}

func TestBinarySearch_Empty(t *testing.T) {
	got := BinarySearchSummary(nil, dk(1, "a"))
	if got != -1 {
		t.Errorf("BinarySearchSummary on empty entries = %d, want -1", got)
	}
}

func TestBinarySearchIndexList_ExactMatch(t *testing.T) {
	entries := []IndexEntry{
		{Key: dk(1, "a"), DataPosition: 100},
		{Key: dk(2, "b"), DataPosition: 200},
	}
	got := BinarySearchIndexList(entries, dk(2, "b"))
	if got != 1 {
		t.Errorf("BinarySearchIndexList exact match = %d, want 1", got)
	}
}

func TestResolveBucket(t *testing.T) {
	tests := []struct {
		raw  int
		want int
	}{
		{5, 5},   // exact match at index 5
		{-1, -1}, // before first: no bucket owns this key
		{-2, 0},  // insertion point gt=1 -> bucket 0
		{-3, 1},  // insertion point gt=2 -> bucket 1
	}
	for _, tt := range tests {
		if got := ResolveBucket(tt.raw); got != tt.want {
			t.Errorf("ResolveBucket(%d) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func encodeSummaryForTest(entries []SummaryEntry) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(entries)))
	buf = append(buf, countBuf[:]...)
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.FirstKey.Token))
		buf = encoding.AppendLengthPrefixedSlice(buf, e.FirstKey.Key)
		buf = binary.BigEndian.AppendUint64(buf, e.IndexListOffset)
		buf = binary.BigEndian.AppendUint64(buf, e.IndexListSize)
	}
	return buf
}

func TestDecodeSummary_RoundTrip(t *testing.T) {
	want := []SummaryEntry{
		{FirstKey: dk(1, "a"), IndexListOffset: 10, IndexListSize: 20},
		{FirstKey: dk(2, "b"), IndexListOffset: 30, IndexListSize: 40},
	}
	buf := encodeSummaryForTest(want)

	got, err := DecodeSummary(buf)
	if err != nil {
		t.Fatalf("DecodeSummary: %v", err)
	}
	if len(got.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got.Entries), len(want))
	}
	for i, e := range want {
		g := got.Entries[i]
		if g.FirstKey.Compare(e.FirstKey) != 0 || g.IndexListOffset != e.IndexListOffset || g.IndexListSize != e.IndexListSize {
			t.Errorf("entry %d = %+v, want %+v", i, g, e)
		}
	}
}

func TestDecodeSummary_Truncated(t *testing.T) {
	if _, err := DecodeSummary([]byte{0x00, 0x00}); err == nil {
		t.Error("expected an error decoding a truncated summary header")
	}
}

func encodeIndexListForTest(entries []IndexEntry) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(entries)))
	buf = append(buf, countBuf[:]...)
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.Key.Token))
		buf = encoding.AppendLengthPrefixedSlice(buf, e.Key.Key)
		buf = binary.BigEndian.AppendUint64(buf, e.DataPosition)
		buf = encoding.AppendLengthPrefixedSlice(buf, e.PromotedIndex)
	}
	return buf
}

func TestDecodeIndexList_RoundTrip(t *testing.T) {
	want := []IndexEntry{
		{Key: dk(1, "a"), DataPosition: 111, PromotedIndex: []byte("p1")},
		{Key: dk(2, "b"), DataPosition: 222, PromotedIndex: nil},
	}
	buf := encodeIndexListForTest(want)

	got, err := DecodeIndexList(buf)
	if err != nil {
		t.Fatalf("DecodeIndexList: %v", err)
	}
	if len(got.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got.Entries), len(want))
	}
	if string(got.Entries[0].PromotedIndex) != "p1" {
		t.Errorf("entry 0 PromotedIndex = %q, want %q", got.Entries[0].PromotedIndex, "p1")
	}
	if got.Entries[1].DataPosition != 222 {
		t.Errorf("entry 1 DataPosition = %d, want 222", got.Entries[1].DataPosition)
	}
}
