// Package mutation is the in-memory data model a partition read decodes
// into: a Mutation's key, tombstones, static row and per-clustering-key
// rows, each row holding typed cells.
//
// Generalized from a flat name/value pair with varint encoding to a richer
// shape: a row marker independent of any cell, atomic cells with optional
// expiry, and multi-cell collections keyed by element. The closed-variant
// Cell mirrors a closed enum-over-struct pattern rather than an interface,
// so the compiler enforces exhaustive handling in internal/rowconsumer.
package mutation

import (
	"bytes"

	"coltable/token"
)

// Tombstone marks a deletion: the write timestamp of the delete and the
// local server time (in seconds) after which the tombstone itself may be
// discarded by compaction. A reader only ever consumes these fields, never
// ages them out.
type Tombstone struct {
	Timestamp         int64
	LocalDeletionTime int32
}

// Live reports whether t represents an actual deletion rather than the
// zero-value "no tombstone here" sentinel.
func (t Tombstone) Live() bool {
	return t.Timestamp != 0 || t.LocalDeletionTime != 0
}

// Supersedes reports whether t should win over other when both apply to the
// same target: higher timestamp wins; ties break on the higher
// local-deletion-time.
func (t Tombstone) Supersedes(other Tombstone) bool {
	if t.Timestamp != other.Timestamp {
		return t.Timestamp > other.Timestamp
	}
	return t.LocalDeletionTime > other.LocalDeletionTime
}

// CellKind closes the variant a Cell may hold.
type CellKind uint8

const (
	CellLive CellKind = iota
	CellDead
	CellCollection
)

// Cell is one column value for one row: an atomic live value, an atomic
// deletion, or a multi-cell collection. Exactly the fields meaningful to
// Kind are populated; internal/rowconsumer is the sole writer of Cell
// values, so callers only ever read them.
type Cell struct {
	Kind CellKind

	// CellLive fields.
	Value       []byte
	Timestamp   int64
	HasTTL      bool
	TTL         int32 // seconds
	ExpiryTime  int64 // absolute expiry, seconds since epoch

	// CellDead fields.
	Deletion Tombstone

	// CellCollection fields: element key (bytes, e.g. a list's UUID
	// timeuuid or a map's key) to the element's own atomic cell.
	Elements            map[string]Cell
	CollectionTombstone *Tombstone
}

// IsLive reports whether the cell currently holds a value, i.e. is not a
// plain tombstone. A collection with a live tombstone but live elements is
// still considered live; the element-level view is up to the caller.
func (c Cell) IsLive() bool {
	return c.Kind == CellLive || c.Kind == CellCollection
}

// RowMarker records a row's existence independent of any cell value — an
// INSERT with no non-key columns still creates a row.
type RowMarker struct {
	Timestamp         int64
	HasTTL            bool
	TTL               int32
	ExpiryTime        int64
	IsLive            bool
	Deletion          Tombstone // row-level deletion via DELETE of the whole row
	HasRowDeletion    bool
}

// ClusteringKey is a clustering column tuple, one element per clustering
// component in schema order. Two keys of different arity may still compare
// (a prefix key is used as a range bound), matching CQL clustering order:
// component-wise byte comparison, with a shorter key that is a strict
// prefix of a longer one sorting first.
type ClusteringKey [][]byte

// Compare orders clustering keys component-wise; a key that is a prefix of
// the other sorts first.
func (k ClusteringKey) Compare(other ClusteringKey) int {
	n := len(k)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(k[i], other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(other):
		return -1
	case len(k) > len(other):
		return 1
	default:
		return 0
	}
}

// CompareClusteringKeys is a free-function form of ClusteringKey.Compare for
// use as a rangeset.Comparator[ClusteringKey].
func CompareClusteringKeys(a, b ClusteringKey) int {
	return a.Compare(b)
}

// ClusteredRow is one row of the partition at a specific clustering key: its
// row marker plus regular-column cells keyed by column name.
type ClusteredRow struct {
	Key   ClusteringKey
	Marker RowMarker
	Cells map[string]Cell
}

// RangeTombstone deletes every row whose clustering key falls in
// [Start, End] (per-bound inclusivity), independent of any single row's own
// marker or cells.
type RangeTombstone struct {
	Start          ClusteringKey
	StartInclusive bool
	End            ClusteringKey
	EndInclusive   bool
	Deletion       Tombstone
}

// comparePrefix compares key against bound component-wise over only the
// first min(len(key), len(bound)) components, so a key that merely extends
// bound as a longer clustering prefix compares equal to it instead of
// sorting after it. Bounds of a RangeTombstone are clustering prefixes, not
// full keys, so a prefix match must cover every key extending that prefix.
func comparePrefix(key, bound ClusteringKey) int {
	n := len(key)
	if len(bound) < n {
		n = len(bound)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(key[i], bound[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Covers reports whether key falls within t's clustering range. Start/End are
// clustering prefixes: a key that extends Start or End as a longer prefix is
// still considered equal to that bound, so a tombstone on a prefix applies to
// every clustering key sharing it.
func (t RangeTombstone) Covers(key ClusteringKey) bool {
	if t.Start != nil {
		c := comparePrefix(key, t.Start)
		if c < 0 || (c == 0 && !t.StartInclusive && len(key) <= len(t.Start)) {
			return false
		}
	}
	if t.End != nil {
		c := comparePrefix(key, t.End)
		if c > 0 || (c == 0 && !t.EndInclusive && len(key) <= len(t.End)) {
			return false
		}
	}
	return true
}

// MutationPartition holds everything decoded for one partition: the
// partition-level tombstone, the static row's cells (not tied to any
// clustering key), the clustered rows in clustering order, and the range
// tombstones collected while scanning.
type MutationPartition struct {
	PartitionDeletion Tombstone
	StaticRow         map[string]Cell
	Rows              []*ClusteredRow // kept sorted by Key
	RangeTombstones   []RangeTombstone
}

// NewMutationPartition returns an empty partition ready for incremental
// population by internal/rowconsumer.
func NewMutationPartition() *MutationPartition {
	return &MutationPartition{StaticRow: make(map[string]Cell)}
}

// FindRow returns the row at key if present.
func (p *MutationPartition) FindRow(key ClusteringKey) (*ClusteredRow, bool) {
	i, found := p.search(key)
	if !found {
		return nil, false
	}
	return p.Rows[i], true
}

// RowOrCreate returns the row at key, appending a fresh one in sorted
// position if absent.
func (p *MutationPartition) RowOrCreate(key ClusteringKey) *ClusteredRow {
	i, found := p.search(key)
	if found {
		return p.Rows[i]
	}
	row := &ClusteredRow{Key: key, Cells: make(map[string]Cell)}
	p.Rows = append(p.Rows, nil)
	copy(p.Rows[i+1:], p.Rows[i:])
	p.Rows[i] = row
	return row
}

// search returns the index of key (found=true) or the insertion point that
// keeps Rows sorted (found=false).
func (p *MutationPartition) search(key ClusteringKey) (idx int, found bool) {
	lo, hi := 0, len(p.Rows)
	for lo < hi {
		mid := (lo + hi) / 2
		c := p.Rows[mid].Key.Compare(key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// ApplicableRangeTombstone returns the range tombstone covering key with the
// latest-winning deletion, if any covers it.
func (p *MutationPartition) ApplicableRangeTombstone(key ClusteringKey) (Tombstone, bool) {
	var best Tombstone
	found := false
	for _, rt := range p.RangeTombstones {
		if !rt.Covers(key) {
			continue
		}
		if !found || rt.Deletion.Supersedes(best) {
			best = rt.Deletion
			found = true
		}
	}
	return best, found
}

// Mutation is a full partition read: its decorated key and the decoded
// partition contents.
type Mutation struct {
	Key       token.DecoratedKey
	Partition *MutationPartition
}
