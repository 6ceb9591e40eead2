package sstable

import (
	"encoding/binary"
	"errors"
	"testing"

	"coltable/internal/checksum"
)

// memFile is a minimal in-memory vfs.RandomAccessFile for exercising the
// footer/block readers without touching the real filesystem.
type memFile struct {
	data []byte
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, errors.New("memFile: offset out of range")
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, errors.New("memFile: short read")
	}
	return n, nil
}

func (m *memFile) Close() error { return nil }
func (m *memFile) Size() int64  { return int64(len(m.data)) }

func buildFooter(f Footer) []byte {
	buf := make([]byte, footerSize)
	binary.BigEndian.PutUint64(buf[0:8], magicNumber)
	binary.BigEndian.PutUint64(buf[8:16], f.DataEndOffset)
	binary.BigEndian.PutUint64(buf[16:24], f.BloomOffset)
	binary.BigEndian.PutUint64(buf[24:32], f.BloomSize)
	binary.BigEndian.PutUint64(buf[32:40], f.SummaryOffset)
	binary.BigEndian.PutUint64(buf[40:48], f.SummarySize)
	buf[48] = byte(f.ChecksumType)
	return buf
}

func TestReadFooter_RoundTrip(t *testing.T) {
	want := Footer{
		DataEndOffset: 1000,
		BloomOffset:   1000,
		BloomSize:     50,
		SummaryOffset: 1050,
		SummarySize:   80,
		ChecksumType:  checksum.TypeCRC32C,
	}
	file := &memFile{data: buildFooter(want)}

	got, err := readFooter(file)
	if err != nil {
		t.Fatalf("readFooter: %v", err)
	}
	if got != want {
		t.Errorf("readFooter = %+v, want %+v", got, want)
	}
}

func TestReadFooter_TooSmall(t *testing.T) {
	file := &memFile{data: make([]byte, footerSize-1)}
	if _, err := readFooter(file); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for a too-small file, got %v", err)
	}
}

func TestReadFooter_BadMagic(t *testing.T) {
	buf := buildFooter(Footer{})
	binary.BigEndian.PutUint64(buf[0:8], 0xDEADBEEFDEADBEEF)
	file := &memFile{data: buf}
	if _, err := readFooter(file); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for bad magic, got %v", err)
	}
}

func TestReadBlock_Uncompressed(t *testing.T) {
	payload := []byte("hello, sstable block")
	checksumType := checksum.TypeCRC32C
	computed := checksum.ComputeChecksum(checksumType, payload, byte(0)) // compression.NoCompression == 0

	var buf []byte
	buf = append(buf, payload...)
	buf = append(buf, 0) // compression.NoCompression
	var checksumBuf [4]byte
	binary.LittleEndian.PutUint32(checksumBuf[:], computed)
	buf = append(buf, checksumBuf[:]...)

	file := &memFile{data: buf}
	got, err := readBlock(file, 0, uint64(len(payload)), checksumType, true)
	if err != nil {
		t.Fatalf("readBlock: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("readBlock = %q, want %q", got, payload)
	}
}

func TestReadBlock_ChecksumMismatch(t *testing.T) {
	payload := []byte("some data")
	var buf []byte
	buf = append(buf, payload...)
	buf = append(buf, 0) // compression.NoCompression
	buf = append(buf, 0, 0, 0, 0) // wrong checksum

	file := &memFile{data: buf}
	_, err := readBlock(file, 0, uint64(len(payload)), checksum.TypeCRC32C, true)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestBloomFilter_NilIsPermissive(t *testing.T) {
	var b *BloomFilter
	if !b.MayContain([]byte("anything")) {
		t.Error("a nil BloomFilter should always report MayContain = true")
	}
}
