package sstable

import (
	"fmt"

	"coltable/internal/logging"
	"coltable/schema"
	"coltable/token"
)

// Options controls how a Reader opens and serves a file.
type Options struct {
	VerifyChecksums bool
	Logger          logging.Logger
}

// Reader is the file-format layer for one SSTable: footer, summary, an
// optional bloom filter over partition keys, and lazily loaded index_list
// buckets.
type Reader struct {
	file    ReadableFile
	opts    Options
	footer  Footer
	summary Summary
	bloom   *BloomFilter

	buckets []*IndexList // lazily populated, same length as summary.Entries
}

// Open parses footer, summary and (if present) the bloom filter block.
// Index_list buckets are loaded on demand by LoadBucket.
func Open(file ReadableFile, opts Options) (*Reader, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard
	}

	footer, err := readFooter(file)
	if err != nil {
		return nil, err
	}

	summaryBuf, err := readBlock(file, footer.SummaryOffset, footer.SummarySize, footer.ChecksumType, opts.VerifyChecksums)
	if err != nil {
		return nil, fmt.Errorf("sstable: reading summary: %w", err)
	}
	summary, err := DecodeSummary(summaryBuf)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:    file,
		opts:    opts,
		footer:  footer,
		summary: summary,
		buckets: make([]*IndexList, len(summary.Entries)),
	}

	if footer.BloomSize > 0 {
		bloomBuf, err := readBlock(file, footer.BloomOffset, footer.BloomSize, footer.ChecksumType, opts.VerifyChecksums)
		if err != nil {
			opts.Logger.Warnf("sstable: bloom filter unreadable, disabling: %v", err)
		} else {
			r.bloom = NewBloomFilter(bloomBuf)
		}
	}

	return r, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// MayContain reports whether key might be present in this file; a false
// result is a definitive miss.
func (r *Reader) MayContain(key []byte) bool {
	return r.bloom.MayContain(key)
}

// NumBuckets returns the number of summary entries (index_list buckets).
func (r *Reader) NumBuckets() int {
	return len(r.summary.Entries)
}

// DataEndOffset returns the first byte past the data region, i.e. the
// data-file size a position resolution falls back to when a bound is
// absent or past the last bucket.
func (r *Reader) DataEndOffset() uint64 {
	return r.footer.DataEndOffset
}

// HasBloomFilter reports whether the file carries a bloom filter block.
func (r *Reader) HasBloomFilter() bool {
	return r.bloom != nil
}

// BloomSizeBytes returns the on-disk size of the bloom filter block, or 0 if
// the file has none.
func (r *Reader) BloomSizeBytes() uint64 {
	return r.footer.BloomSize
}

// FirstKey returns the file's minimum decorated key, taken from the first
// summary entry. ok is false for an empty file.
func (r *Reader) FirstKey() (token.DecoratedKey, bool) {
	if len(r.summary.Entries) == 0 {
		return token.DecoratedKey{}, false
	}
	return r.summary.Entries[0].FirstKey, true
}

// LastKey returns the file's maximum decorated key, taken from the last
// entry of the last bucket. ok is false for an empty file.
func (r *Reader) LastKey() (token.DecoratedKey, bool, error) {
	if len(r.summary.Entries) == 0 {
		return token.DecoratedKey{}, false, nil
	}
	i := len(r.summary.Entries) - 1
	bucket, err := r.LoadBucket(i)
	if err != nil {
		return token.DecoratedKey{}, false, err
	}
	if len(bucket.Entries) == 0 {
		return r.summary.Entries[i].FirstKey, true, nil
	}
	return bucket.Entries[len(bucket.Entries)-1].Key, true, nil
}

// LoadBucket returns (loading and caching, if necessary) the index_list for
// summary bucket i.
func (r *Reader) LoadBucket(i int) (*IndexList, error) {
	if i < 0 || i >= len(r.summary.Entries) {
		return nil, fmt.Errorf("%w: bucket %d out of range", ErrMalformed, i)
	}
	if r.buckets[i] != nil {
		return r.buckets[i], nil
	}
	entry := r.summary.Entries[i]
	buf, err := readBlock(r.file, entry.IndexListOffset, entry.IndexListSize, r.footer.ChecksumType, r.opts.VerifyChecksums)
	if err != nil {
		return nil, fmt.Errorf("sstable: reading index_list for bucket %d: %w", i, err)
	}
	list, err := DecodeIndexList(buf)
	if err != nil {
		return nil, err
	}
	r.buckets[i] = &list
	return r.buckets[i], nil
}

// dataEndOfBucket returns the data-end position for bucket i: the next
// summary entry's first index entry's position, or the data-file size if i
// is the last bucket. This is the only lookup that needs a cross-bucket
// read.
func (r *Reader) dataEndOfBucket(i int) (uint64, error) {
	if i == len(r.summary.Entries)-1 {
		return r.footer.DataEndOffset, nil
	}
	next, err := r.LoadBucket(i + 1)
	if err != nil {
		return 0, err
	}
	if len(next.Entries) == 0 {
		return r.footer.DataEndOffset, nil
	}
	return next.Entries[0].DataPosition, nil
}

// Lookup implements the single-key path of read_row: summary search then
// index search. ok is false on a definitive miss (including a
// bloom-filter false positive, which the caller is expected to count). end
// is the data position immediately following this partition's span, for
// callers that need to know how many bytes to read.
func (r *Reader) Lookup(key token.DecoratedKey) (start, end uint64, ok bool, err error) {
	bucket := ResolveBucket(BinarySearchSummary(r.summary.Entries, key))
	if bucket < 0 {
		return 0, 0, false, nil
	}
	list, err := r.LoadBucket(bucket)
	if err != nil {
		return 0, 0, false, err
	}
	raw := BinarySearchIndexList(list.Entries, key)
	if raw < 0 {
		return 0, 0, false, nil
	}
	start = list.Entries[raw].DataPosition
	if raw+1 < len(list.Entries) {
		end = list.Entries[raw+1].DataPosition
	} else {
		end, err = r.dataEndOfBucket(bucket)
		if err != nil {
			return 0, 0, false, err
		}
	}
	return start, end, true, nil
}

// LowerBound resolves a range endpoint to the first data position at or
// after pos: summary-search with a less comparator, decrement by one
// bucket, lower_bound within that bucket, else the bucket's data-end
// position.
func (r *Reader) LowerBound(pos token.RingPosition) (uint64, error) {
	return r.resolveBound(pos, false)
}

// UpperBound resolves a range endpoint to the first data position strictly
// after pos.
func (r *Reader) UpperBound(pos token.RingPosition) (uint64, error) {
	return r.resolveBound(pos, true)
}

func (r *Reader) resolveBound(pos token.RingPosition, upper bool) (uint64, error) {
	if len(r.summary.Entries) == 0 {
		return r.footer.DataEndOffset, nil
	}

	// summary-search with a "less" comparator: find the bucket whose first
	// key is the greatest one not exceeding pos. This mirrors
	// BinarySearchSummary/ResolveBucket applied to RingPosition instead of
	// an exact decorated key.
	bucket := resolveBucketForPosition(r.summary.Entries, pos)
	if bucket < 0 {
		bucket = 0
	}

	list, err := r.LoadBucket(bucket)
	if err != nil {
		return 0, err
	}

	idx := boundWithinBucket(list.Entries, pos, upper)
	if idx >= len(list.Entries) {
		return r.dataEndOfBucket(bucket)
	}
	return list.Entries[idx].DataPosition, nil
}

// resolveBucketForPosition finds the last summary bucket whose first key
// does not sort after pos, using token.CompareRingPositions against each
// entry's decorated key wrapped as an owning RingPosition.
func resolveBucketForPosition(entries []SummaryEntry, pos token.RingPosition) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		entryPos := token.FromDecoratedKey(entries[mid].FirstKey)
		if entryPos.Compare(pos) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// boundWithinBucket returns the index of the first entry at/after pos
// (upper=false, lower_bound) or strictly after pos (upper=true,
// upper_bound).
func boundWithinBucket(entries []IndexEntry, pos token.RingPosition, upper bool) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		entryPos := token.FromDecoratedKey(entries[mid].Key)
		var before bool
		if upper {
			before = entryPos.Compare(pos) <= 0
		} else {
			before = entryPos.Compare(pos) < 0
		}
		if before {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ReadDataSpan reads the raw bytes of the data region between [start, end).
// Unlike summary/index/bloom blocks, partition spans are not individually
// checksummed or compressed — framing one per partition would make the
// per-partition overhead dominate for narrow rows, so compression (if any)
// applies at a coarser granularity the higher-level store manages when it
// writes the file. The partition codec detects its own end from the event
// stream, so over-reading to end is harmless.
func (r *Reader) ReadDataSpan(start, end uint64) ([]byte, error) {
	if end < start {
		return nil, fmt.Errorf("%w: data span end before start", ErrMalformed)
	}
	buf := make([]byte, end-start)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := r.file.ReadAt(buf, int64(start)); err != nil {
		return nil, err
	}
	return buf, nil
}

// SchemaCheck is a hook point kept separate from decode logic, for callers
// that want to reject a schema before spending any I/O. It only rejects a
// nil schema; it does not check the schema's shape against the file.
func SchemaCheck(s *schema.Schema) error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", ErrMalformed)
	}
	return nil
}
