// Package reader is the top-level lazy-sequence layer driving
// internal/sstable across a requested partition range: PartitionReader for
// full mutations, KeyReader for decorated keys only, and the
// combining/filtering/joining composition in combine.go.
//
// Modeled on a heap-driven merging iterator over sorted children and a
// Seek/Next bucket-walking reader, adapted to this module's
// summary/index_list bucket model and to mutation.Mutation instead of raw
// key/value pairs. Suspension points (every disk-touching primitive
// yields a deferred completion) are modeled with context.Context: every
// method that touches the file checks ctx.Err() before issuing the read,
// so a canceled context stops a long scan at its next bucket or partition
// boundary without tearing down the decoder mid-mutation.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"coltable/internal/rowconsumer"
	"coltable/internal/sstable"
	"coltable/mutation"
	"coltable/rangeset"
	"coltable/schema"
	"coltable/token"
)

// wrapDecodeErr translates a range-delete-over-multi-row-span failure from
// internal/rowconsumer into this package's NotImplementedError, so callers
// only ever check one sentinel for the "not implemented" surface.
func wrapDecodeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rowconsumer.ErrUnsupportedRangeDelete) {
		return &NotImplementedError{Cause: CauseRangeDeletes}
	}
	return err
}

// ErrNotImplemented is returned for behaviors this package explicitly
// doesn't support.
var ErrNotImplemented = errors.New("reader: not implemented")

// Cause narrows an ErrNotImplemented failure.
type Cause int

const (
	CauseWrapAround Cause = iota
	CauseRangeDeletes
)

func (c Cause) String() string {
	switch c {
	case CauseWrapAround:
		return "wrap_around"
	case CauseRangeDeletes:
		return "range_deletes"
	default:
		return "unknown"
	}
}

// NotImplementedError pairs ErrNotImplemented with its cause so callers can
// use errors.Is(err, ErrNotImplemented) while also inspecting Cause.
type NotImplementedError struct {
	Cause Cause
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("reader: not implemented: %s", e.Cause)
}

func (e *NotImplementedError) Unwrap() error { return ErrNotImplemented }

// MutationSource is a lazy, pull-style sequence of mutations. Next returns
// (nil, nil) at end of sequence; any non-nil error ends the sequence after
// that call regardless of the returned mutation.
type MutationSource interface {
	Next(ctx context.Context) (*mutation.Mutation, error)
}

// PartitionReader serves single-key and range reads over one SSTable.
type PartitionReader struct {
	sst         *sstable.Reader
	partitioner token.Partitioner
	schema      *schema.Schema

	falsePositives atomic.Uint64
}

// New builds a PartitionReader over an already-open low-level reader.
func New(sst *sstable.Reader, partitioner token.Partitioner, s *schema.Schema) *PartitionReader {
	return &PartitionReader{sst: sst, partitioner: partitioner, schema: s}
}

// FalsePositives returns the number of Bloom-filter false positives
// observed by ReadRow so far. Not an error; just a counter.
func (p *PartitionReader) FalsePositives() uint64 {
	return p.falsePositives.Load()
}

// ReadRow implements read_row: Bloom check, summary+index search, then a
// single-partition decode seeded with the requested key.
// Returns (nil, nil) on a definitive miss or a false positive.
func (p *PartitionReader) ReadRow(ctx context.Context, key []byte) (*mutation.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.sst.MayContain(key) {
		return nil, nil
	}

	dk := token.NewDecoratedKey(key, p.partitioner)
	start, end, ok, err := p.sst.Lookup(dk)
	if err != nil {
		return nil, err
	}
	if !ok {
		p.falsePositives.Add(1)
		return nil, nil
	}

	buf, err := p.sst.ReadDataSpan(start, end)
	if err != nil {
		return nil, err
	}
	m, _, err := sstable.DecodePartition(buf, p.partitioner, p.schema)
	if err != nil {
		return nil, wrapDecodeErr(err)
	}
	if m.Key.Compare(dk) != 0 {
		return nil, fmt.Errorf("%w: data stream key %v does not match requested key %v", sstable.ErrMalformed, m.Key, dk)
	}
	return &m, nil
}

// ReadRows implements read_rows: a lazy sequence over every partition, in
// file order.
func (p *PartitionReader) ReadRows() MutationSource {
	return newBucketWalker(p, nil)
}

// ReadRangeRows implements read_range_rows: a lazy sequence restricted to
// partitions whose ring position lies in r. r must not wrap; a wrapping
// range is rejected with a CauseWrapAround NotImplementedError — the
// caller is expected to unwrap first.
func (p *PartitionReader) ReadRangeRows(r rangeset.Range[token.RingPosition]) (MutationSource, error) {
	if r.IsWrapAround(token.CompareRingPositions) {
		return nil, &NotImplementedError{Cause: CauseWrapAround}
	}
	return newBucketWalker(p, &r), nil
}

// bucketWalker drives ReadRows/ReadRangeRows: it resolves the range's start
// and end data positions once, then walks the data region partition by
// partition, decoding each with sstable.DecodePartition.
type bucketWalker struct {
	p       *PartitionReader
	pos     uint64
	end     uint64
	started bool
	rng     *rangeset.Range[token.RingPosition]
}

func newBucketWalker(p *PartitionReader, r *rangeset.Range[token.RingPosition]) *bucketWalker {
	return &bucketWalker{p: p, rng: r}
}

func (w *bucketWalker) resolveStart() (uint64, error) {
	if w.rng == nil || w.rng.Start == nil {
		return 0, nil
	}
	if w.rng.Start.Inclusive {
		return w.p.sst.LowerBound(w.rng.Start.Value)
	}
	return w.p.sst.UpperBound(w.rng.Start.Value)
}

func (w *bucketWalker) resolveEnd() (uint64, error) {
	if w.rng == nil || w.rng.End == nil {
		return w.p.sst.DataEndOffset(), nil
	}
	if w.rng.End.Inclusive {
		return w.p.sst.UpperBound(w.rng.End.Value)
	}
	return w.p.sst.LowerBound(w.rng.End.Value)
}

// Next decodes and returns the next partition in the walk, or (nil, nil)
// once the end position is reached.
func (w *bucketWalker) Next(ctx context.Context) (*mutation.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !w.started {
		start, err := w.resolveStart()
		if err != nil {
			return nil, err
		}
		end, err := w.resolveEnd()
		if err != nil {
			return nil, err
		}
		w.pos, w.end, w.started = start, end, true
	}
	if w.pos >= w.end {
		return nil, nil
	}

	buf, err := w.p.sst.ReadDataSpan(w.pos, w.end)
	if err != nil {
		return nil, err
	}
	m, consumed, err := sstable.DecodePartition(buf, w.p.partitioner, w.p.schema)
	if err != nil {
		return nil, wrapDecodeErr(err)
	}
	w.pos += uint64(consumed)
	return &m, nil
}

// KeyReader yields only decorated keys over a range, advancing
// bucket-by-bucket and narrowing the first/last bucket to the caller's
// bound.
type KeyReader struct {
	sst         *sstable.Reader
	partitioner token.Partitioner

	bucket    int
	endBucket int
	list      *sstable.IndexList
	idx       int
	endIdx    int // exclusive index within endBucket; only meaningful when bucket == endBucket
	rng       *rangeset.Range[token.RingPosition]
	started   bool
}

// NewKeyReader builds a KeyReader over r (nil means the whole file).
func NewKeyReader(sst *sstable.Reader, partitioner token.Partitioner, r *rangeset.Range[token.RingPosition]) (*KeyReader, error) {
	if r != nil && r.IsWrapAround(token.CompareRingPositions) {
		return nil, &NotImplementedError{Cause: CauseWrapAround}
	}
	return &KeyReader{sst: sst, partitioner: partitioner, rng: r}, nil
}

func (k *KeyReader) start() error {
	k.started = true
	k.bucket = 0
	k.endBucket = k.sst.NumBuckets() - 1
	if k.endBucket < 0 {
		return nil
	}
	list, err := k.sst.LoadBucket(k.bucket)
	if err != nil {
		return err
	}
	k.list = list
	k.idx = 0
	k.endIdx = -1 // -1 means "no restriction", resolved lazily per bucket below

	if k.rng != nil && k.rng.Start != nil {
		lo := k.resolveWithinBucket(k.list, k.rng.Start.Value, k.rng.Start.Inclusive)
		k.idx = lo
	}
	return nil
}

func (k *KeyReader) resolveWithinBucket(list *sstable.IndexList, pos token.RingPosition, inclusive bool) int {
	lo, hi := 0, len(list.Entries)
	for lo < hi {
		mid := (lo + hi) / 2
		entryPos := token.FromDecoratedKey(list.Entries[mid].Key)
		var before bool
		if inclusive {
			before = entryPos.Compare(pos) < 0
		} else {
			before = entryPos.Compare(pos) <= 0
		}
		if before {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Next returns the next decorated key in the range, or ok=false at end of
// stream (end-of-stream once past the end bucket).
func (k *KeyReader) Next(ctx context.Context) (token.DecoratedKey, bool, error) {
	if err := ctx.Err(); err != nil {
		return token.DecoratedKey{}, false, err
	}
	if !k.started {
		if err := k.start(); err != nil {
			return token.DecoratedKey{}, false, err
		}
	}
	for {
		if k.list == nil || k.bucket > k.endBucket {
			return token.DecoratedKey{}, false, nil
		}
		limit := len(k.list.Entries)
		if k.bucket == k.endBucket && k.rng != nil && k.rng.End != nil {
			limit = k.resolveWithinBucket(k.list, k.rng.End.Value, !k.rng.End.Inclusive)
		}
		if k.idx < limit {
			entry := k.list.Entries[k.idx]
			k.idx++
			return entry.Key, true, nil
		}
		k.bucket++
		if k.bucket > k.endBucket {
			return token.DecoratedKey{}, false, nil
		}
		next, err := k.sst.LoadBucket(k.bucket)
		if err != nil {
			return token.DecoratedKey{}, false, err
		}
		k.list = next
		k.idx = 0
	}
}
