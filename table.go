package coltable

import (
	"context"

	"coltable/internal/logging"
	"coltable/internal/sstable"
	"coltable/mutation"
	"coltable/rangeset"
	"coltable/reader"
	"coltable/schema"
	"coltable/token"
	"coltable/internal/vfs"
)

// Options controls how a Table opens its underlying file and serves reads.
type Options struct {
	// VerifyChecksums enables checksum verification of summary, index_list
	// and bloom filter blocks.
	VerifyChecksums bool

	// Partitioner assigns tokens to partition keys. Defaults to
	// token.XXH3Partitioner{}; injected so callers can swap in a different
	// partitioner for tests or alternate deployments.
	Partitioner token.Partitioner

	// Logger receives diagnostic messages (e.g. a disabled bloom filter).
	// Defaults to a discarding logger.
	Logger logging.Logger
}

// Table is one open SSTable, ready to serve single-row reads, full scans,
// token-range scans and key-only scans.
type Table struct {
	sst    *sstable.Reader
	schema *schema.Schema
	pr     *reader.PartitionReader
	part   token.Partitioner
}

// Open opens path against the OS filesystem with the given schema and
// options.
func Open(path string, s *schema.Schema, opts Options) (*Table, error) {
	f, err := vfs.Default().OpenRandomAccess(path)
	if err != nil {
		return nil, err
	}
	return OpenFile(f, s, opts)
}

// OpenFile opens an already-open ReadableFile, taking ownership of it (it
// is closed by Table.Close).
func OpenFile(f sstable.ReadableFile, s *schema.Schema, opts Options) (*Table, error) {
	if opts.Partitioner == nil {
		opts.Partitioner = token.XXH3Partitioner{}
	}
	sst, err := sstable.Open(f, sstable.Options{VerifyChecksums: opts.VerifyChecksums, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return &Table{
		sst:    sst,
		schema: s,
		pr:     reader.New(sst, opts.Partitioner, s),
		part:   opts.Partitioner,
	}, nil
}

// Close releases the underlying file.
func (t *Table) Close() error {
	return t.sst.Close()
}

// FalsePositives returns the number of Bloom-filter false positives ReadRow
// has observed.
func (t *Table) FalsePositives() uint64 {
	return t.pr.FalsePositives()
}

// Stats reports footer/summary statistics for the open file: bucket count,
// data-region size, bloom filter presence/size, and the file's minimum and
// maximum partition keys.
type Stats struct {
	NumBuckets     int
	DataEndOffset  uint64
	HasBloomFilter bool
	BloomSizeBytes uint64
	MinKey         []byte
	MaxKey         []byte
}

// Stats computes Stats for the open file, reading the last index_list
// bucket if not already cached.
func (t *Table) Stats() (Stats, error) {
	s := Stats{
		NumBuckets:     t.sst.NumBuckets(),
		DataEndOffset:  t.sst.DataEndOffset(),
		HasBloomFilter: t.sst.HasBloomFilter(),
		BloomSizeBytes: t.sst.BloomSizeBytes(),
	}
	if fk, ok := t.sst.FirstKey(); ok {
		s.MinKey = fk.Key
	}
	lk, ok, err := t.sst.LastKey()
	if err != nil {
		return Stats{}, err
	}
	if ok {
		s.MaxKey = lk.Key
	}
	return s, nil
}

// ReadRow implements read_row.
func (t *Table) ReadRow(ctx context.Context, key []byte) (*mutation.Mutation, error) {
	return t.pr.ReadRow(ctx, key)
}

// ReadRows implements read_rows.
func (t *Table) ReadRows() reader.MutationSource {
	return t.pr.ReadRows()
}

// ReadRangeRows implements read_range_rows.
func (t *Table) ReadRangeRows(r rangeset.Range[token.RingPosition]) (reader.MutationSource, error) {
	return t.pr.ReadRangeRows(r)
}

// ReadKeys yields decorated keys over r (nil means the whole file).
func (t *Table) ReadKeys(r *rangeset.Range[token.RingPosition]) (*reader.KeyReader, error) {
	return reader.NewKeyReader(t.sst, t.part, r)
}
