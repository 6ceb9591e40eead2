package sstable

import (
	"testing"

	"coltable/internal/encoding"
	"coltable/mutation"
	"coltable/schema"
	"coltable/token"
)

type fixedPartitioner struct{ tok token.Token }

func (f fixedPartitioner) Token(key []byte) token.Token { return f.tok }

func appendTombstone(buf []byte, ts mutation.Tombstone) []byte {
	buf = encoding.AppendVarsignedint64(buf, ts.Timestamp)
	buf = encoding.AppendVarint32(buf, uint32(ts.LocalDeletionTime))
	return buf
}

func TestDecodePartition_SimpleRowRoundTrip(t *testing.T) {
	s := &schema.Schema{
		Columns: map[string]*schema.ColumnDefinition{
			"age": {Name: []byte("age"), Type: schema.ColumnType{Kind: schema.KindAtomic, ValueType: "int"}},
		},
	}

	var buf []byte
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte("row-key"))
	buf = appendTombstone(buf, mutation.Tombstone{}) // no partition deletion

	buf = append(buf, tagRowStart)
	buf = appendTombstone(buf, mutation.Tombstone{})
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte{}) // rawKey: no clustering (arity 0)

	buf = append(buf, tagCell)
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte("age"))
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte("30"))
	buf = encoding.AppendVarsignedint64(buf, 100) // timestamp
	buf = append(buf, 0)                          // hasTTL = false

	buf = append(buf, tagRowEnd)
	buf = append(buf, tagEndPartition)

	p := fixedPartitioner{tok: 42}
	m, n, err := DecodePartition(buf, p, s)
	if err != nil {
		t.Fatalf("DecodePartition: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed %d bytes, want %d", n, len(buf))
	}
	if m.Key.Token != 42 {
		t.Errorf("decoded token = %d, want 42", m.Key.Token)
	}
	if string(m.Key.Key) != "row-key" {
		t.Errorf("decoded key = %q, want %q", m.Key.Key, "row-key")
	}
	if len(m.Partition.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(m.Partition.Rows))
	}
	cell, ok := m.Partition.Rows[0].Cells["age"]
	if !ok {
		t.Fatal("expected 'age' cell to be decoded")
	}
	if string(cell.Value) != "30" {
		t.Errorf("cell value = %q, want %q", cell.Value, "30")
	}
	if cell.Timestamp != 100 {
		t.Errorf("cell timestamp = %d, want 100", cell.Timestamp)
	}
}

func TestDecodePartition_PartitionDeletion(t *testing.T) {
	s := &schema.Schema{}

	var buf []byte
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte("k"))
	buf = appendTombstone(buf, mutation.Tombstone{Timestamp: 77, LocalDeletionTime: 5})
	buf = append(buf, tagEndPartition)

	m, _, err := DecodePartition(buf, fixedPartitioner{tok: 1}, s)
	if err != nil {
		t.Fatalf("DecodePartition: %v", err)
	}
	if m.Partition.PartitionDeletion.Timestamp != 77 {
		t.Errorf("PartitionDeletion.Timestamp = %d, want 77", m.Partition.PartitionDeletion.Timestamp)
	}
}

func TestDecodePartition_UnknownTagIsMalformed(t *testing.T) {
	s := &schema.Schema{}

	var buf []byte
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte("k"))
	buf = appendTombstone(buf, mutation.Tombstone{})
	buf = append(buf, 0xEE) // not a valid tag

	_, _, err := DecodePartition(buf, fixedPartitioner{tok: 1}, s)
	if err == nil {
		t.Fatal("expected an error for an unknown row event tag")
	}
}

func TestDecodePartition_TruncatedStream(t *testing.T) {
	s := &schema.Schema{}
	var buf []byte
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte("k"))
	// missing partition-deletion tombstone and everything after

	_, _, err := DecodePartition(buf, fixedPartitioner{tok: 1}, s)
	if err == nil {
		t.Fatal("expected an error decoding a truncated stream")
	}
}
