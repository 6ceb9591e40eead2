package sstable

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"coltable/internal/checksum"
	"coltable/internal/encoding"
	"coltable/internal/vfs"
)

// buildOneBucketFile assembles a single-bucket, single-partition file on
// disk at path, with no bloom filter and no checksums, matching the layout
// format.go documents: [data][index_list][summary][footer].
func buildOneBucketFile(t *testing.T, path, key string, tok int64) {
	t.Helper()

	var dataBuf []byte
	dataBuf = encoding.AppendLengthPrefixedSlice(dataBuf, []byte(key))
	dataBuf = encoding.AppendVarsignedint64(dataBuf, 0)
	dataBuf = encoding.AppendVarint32(dataBuf, 0)
	dataBuf = append(dataBuf, 5) // end-of-partition tag

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], 1)

	var indexListPayload []byte
	indexListPayload = append(indexListPayload, countBuf[:]...)
	indexListPayload = binary.BigEndian.AppendUint64(indexListPayload, uint64(tok))
	indexListPayload = encoding.AppendLengthPrefixedSlice(indexListPayload, []byte(key))
	indexListPayload = binary.BigEndian.AppendUint64(indexListPayload, 0)
	indexListPayload = encoding.AppendLengthPrefixedSlice(indexListPayload, nil)
	indexListBlock := append(append([]byte{}, indexListPayload...), 0, 0, 0, 0, 0)
	indexListOffset := uint64(len(dataBuf))

	var summaryPayload []byte
	summaryPayload = append(summaryPayload, countBuf[:]...)
	summaryPayload = binary.BigEndian.AppendUint64(summaryPayload, uint64(tok))
	summaryPayload = encoding.AppendLengthPrefixedSlice(summaryPayload, []byte(key))
	summaryPayload = binary.BigEndian.AppendUint64(summaryPayload, indexListOffset)
	summaryPayload = binary.BigEndian.AppendUint64(summaryPayload, uint64(len(indexListPayload)))
	summaryBlock := append(append([]byte{}, summaryPayload...), 0, 0, 0, 0, 0)
	summaryOffset := indexListOffset + uint64(len(indexListBlock))

	var file []byte
	file = append(file, dataBuf...)
	file = append(file, indexListBlock...)
	file = append(file, summaryBlock...)

	footer := make([]byte, footerSize)
	binary.BigEndian.PutUint64(footer[0:8], magicNumber)
	binary.BigEndian.PutUint64(footer[8:16], uint64(len(dataBuf)))
	binary.BigEndian.PutUint64(footer[32:40], summaryOffset)
	binary.BigEndian.PutUint64(footer[40:48], uint64(len(summaryPayload)))
	footer[48] = byte(checksum.TypeNoChecksum)
	file = append(file, footer...)

	if err := os.WriteFile(path, file, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// TestReader_InjectedReadError_AfterOpenSucceeds verifies that a read error
// injected after Open has already parsed the footer and summary surfaces
// through LoadBucket rather than panicking or being silently dropped: the
// footer/summary reads happen during Open, but a bucket's index_list is
// loaded lazily, so this exercises a failure well after the file was
// successfully opened.
func TestReader_InjectedReadError_AfterOpenSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.sst")
	buildOneBucketFile(t, path, "alice", 10)

	faultFS := vfs.NewFaultInjectionFS(vfs.Default())
	f, err := faultFS.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("OpenRandomAccess: %v", err)
	}
	defer f.Close()

	r, err := Open(f, Options{VerifyChecksums: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.NumBuckets() != 1 {
		t.Fatalf("NumBuckets = %d, want 1", r.NumBuckets())
	}

	faultFS.InjectReadError(path)

	_, err = r.LoadBucket(0)
	if !errors.Is(err, vfs.ErrInjectedReadError) {
		t.Fatalf("LoadBucket after injection: got %v, want a wrapped ErrInjectedReadError", err)
	}

	faultFS.ClearErrors()
	bucket, err := r.LoadBucket(0)
	if err != nil {
		t.Fatalf("LoadBucket after ClearErrors: %v", err)
	}
	if len(bucket.Entries) != 1 {
		t.Errorf("bucket entries = %d, want 1", len(bucket.Entries))
	}
}
