// Package rowconsumer implements the push-style row visitor that turns the
// raw event stream an sstable partition reader emits (row_start, cell,
// deleted_cell, range_tombstone, row_end) into a populated
// mutation.MutationPartition.
//
// Modeled on an index-block iterator that decodes shared-prefix-compressed
// keys incrementally rather than materializing a whole block up front;
// Consumer applies the same incremental-decode discipline to composite
// column names, one event at a time, never buffering more than the
// current pending collection.
package rowconsumer

import (
	"errors"
	"fmt"

	"coltable/internal/composite"
	"coltable/mutation"
	"coltable/schema"
)

// ErrMalformed reports a structurally invalid row stream: a static row with
// non-empty clustering components, or a composite exploding to more parts
// than the schema allows.
var ErrMalformed = errors.New("rowconsumer: malformed row stream")

// ErrUnsupportedRangeDelete reports a range tombstone whose start and end
// composites disagree on clustering prefix — deletes spanning more than one
// row are out of scope.
var ErrUnsupportedRangeDelete = errors.New("rowconsumer: range deletes over multi-row spans are not implemented")

// decodedName is the result of column-name decoding.
type decodedName struct {
	static          bool
	clustering      mutation.ClusteringKey
	collectionExtra []byte // nil unless a collection element key was present
	cellName        []byte // nil in dense schemas naming the sole regular column implicitly
	hasCellName     bool
}

// decodeName splits a raw composite column name into its static-row flag,
// clustering prefix, optional collection element key and cell name, against
// schema s.
func decodeName(raw []byte, s *schema.Schema) (decodedName, error) {
	var d decodedName
	rest, static := composite.HasStaticPrefix(raw)
	d.static = static
	raw = rest

	var components [][]byte
	if s.IsCompound {
		exploded, err := composite.Explode(raw)
		if err != nil {
			return decodedName{}, err
		}
		components = exploded
	} else if len(raw) > 0 || !s.IsDense {
		components = [][]byte{raw}
	}

	k := s.Arity()
	if len(components) > k+2 {
		return decodedName{}, fmt.Errorf("%w: composite has %d components, clustering arity %d", ErrMalformed, len(components), k)
	}

	if len(components) >= k {
		d.clustering = mutation.ClusteringKey(components[:k])
	} else {
		d.clustering = mutation.ClusteringKey(components)
	}

	tail := components[min(len(components), k):]
	switch {
	case len(tail) == 2:
		d.collectionExtra = tail[0]
		d.cellName = tail[1]
		d.hasCellName = true
	case len(tail) == 1:
		d.cellName = tail[0]
		d.hasCellName = true
	case len(tail) == 0:
		// dense schema or row-marker-only name; cellName left unset.
	}

	if static {
		for _, c := range d.clustering {
			if len(c) != 0 {
				return decodedName{}, fmt.Errorf("%w: static row with non-empty clustering component", ErrMalformed)
			}
		}
	}

	return d, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// collectionTag identifies a pending collection by clustering prefix and
// target column, so a new cell with a different tag forces a flush.
type collectionTag struct {
	clustering string // mutation.ClusteringKey flattened for map/equality use
	column     string
}

func tagOf(d decodedName) collectionTag {
	return collectionTag{clustering: flattenKey(d.clustering), column: string(d.cellName)}
}

func flattenKey(k mutation.ClusteringKey) string {
	var buf []byte
	for _, c := range k {
		var lenBuf [4]byte
		n := len(c)
		lenBuf[0] = byte(n >> 24)
		lenBuf[1] = byte(n >> 16)
		lenBuf[2] = byte(n >> 8)
		lenBuf[3] = byte(n)
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, c...)
	}
	return string(buf)
}

type pendingCollection struct {
	tag       collectionTag
	static    bool
	clustering mutation.ClusteringKey
	column    *schema.ColumnDefinition
	elements  map[string]mutation.Cell
	tombstone *mutation.Tombstone
}

// Consumer accumulates a single partition from a stream of row events,
// driven by a caller-supplied schema. It is not safe for concurrent use.
type Consumer struct {
	schema    *schema.Schema
	partition *mutation.MutationPartition
	pending   *pendingCollection
}

// New returns a Consumer that decodes events against s into partition.
func New(s *schema.Schema, partition *mutation.MutationPartition) *Consumer {
	return &Consumer{schema: s, partition: partition}
}

// RowStart begins a row at the given raw composite key (already stripped of
// any partition-key prefix by the caller) with its row-level deletion time,
// if any.
func (c *Consumer) RowStart(rawKey []byte, deletion mutation.Tombstone) error {
	d, err := decodeName(rawKey, c.schema)
	if err != nil {
		return err
	}

	if deletion.Live() {
		if d.static {
			c.partition.PartitionDeletion = deletion
		} else {
			row := c.partition.RowOrCreate(d.clustering)
			row.Marker.HasRowDeletion = true
			row.Marker.Deletion = deletion
		}
	}
	return nil
}

// Cell applies a live cell event.
func (c *Consumer) Cell(rawName []byte, value []byte, timestamp int64, hasTTL bool, ttl int32, expiryTime int64) error {
	d, err := decodeName(rawName, c.schema)
	if err != nil {
		return err
	}
	if !d.hasCellName {
		c.applyRowMarker(d, mutation.RowMarker{Timestamp: timestamp, HasTTL: hasTTL, TTL: ttl, ExpiryTime: expiryTime, IsLive: true})
		return nil
	}

	cdef, ok := c.schema.ColumnByName(d.cellName)
	if !ok {
		return nil // schema drift: unknown column, drop silently
	}
	if timestamp <= cdef.DroppedAt {
		return nil // dropped-column timestamp: drop silently
	}

	isMultiCell := d.collectionExtra != nil
	if cdef.Type.Kind.IsMultiCell() != isMultiCell {
		return nil // schema drift: multi-cell mismatch, drop silently
	}

	cell := mutation.Cell{Kind: mutation.CellLive, Value: value, Timestamp: timestamp, HasTTL: hasTTL, TTL: ttl, ExpiryTime: expiryTime}

	if isMultiCell {
		c.forwardToCollection(d, cdef, string(d.collectionExtra), cell)
		return nil
	}
	c.setCell(d, cdef, cell)
	return nil
}

// DeletedCell applies a tombstone cell event.
func (c *Consumer) DeletedCell(rawName []byte, deletion mutation.Tombstone) error {
	d, err := decodeName(rawName, c.schema)
	if err != nil {
		return err
	}
	if !d.hasCellName {
		c.applyRowMarker(d, mutation.RowMarker{Timestamp: deletion.Timestamp, HasRowDeletion: true, Deletion: deletion})
		return nil
	}

	cdef, ok := c.schema.ColumnByName(d.cellName)
	if !ok {
		return nil
	}
	if deletion.Timestamp <= cdef.DroppedAt {
		return nil
	}

	isMultiCell := d.collectionExtra != nil
	if cdef.Type.Kind.IsMultiCell() != isMultiCell {
		return nil
	}

	cell := mutation.Cell{Kind: mutation.CellDead, Deletion: deletion}

	if isMultiCell {
		c.forwardToCollection(d, cdef, string(d.collectionExtra), cell)
		return nil
	}
	c.setCell(d, cdef, cell)
	return nil
}

func (c *Consumer) applyRowMarker(d decodedName, marker mutation.RowMarker) {
	if d.static {
		// Static rows carry no row marker of their own; this only applies
		// to an actual clustering key.
		return
	}
	row := c.partition.RowOrCreate(d.clustering)
	row.Marker = marker
}

func (c *Consumer) setCell(d decodedName, cdef *schema.ColumnDefinition, cell mutation.Cell) {
	if d.static {
		c.partition.StaticRow[string(cdef.Name)] = cell
		return
	}
	row := c.partition.RowOrCreate(d.clustering)
	row.Cells[string(cdef.Name)] = cell
}

func (c *Consumer) forwardToCollection(d decodedName, cdef *schema.ColumnDefinition, elementKey string, cell mutation.Cell) {
	tag := tagOf(d)
	if c.pending != nil && c.pending.tag != tag {
		c.flushPending()
	}
	if c.pending == nil {
		c.pending = &pendingCollection{
			tag:        tag,
			static:     d.static,
			clustering: d.clustering,
			column:     cdef,
			elements:   make(map[string]mutation.Cell),
		}
	}
	c.pending.elements[elementKey] = cell
}

func (c *Consumer) flushPending() {
	if c.pending == nil {
		return
	}
	p := c.pending
	c.pending = nil

	collectionCell := mutation.Cell{
		Kind:                mutation.CellCollection,
		Elements:            p.elements,
		CollectionTombstone: p.tombstone,
	}
	if p.static {
		c.partition.StaticRow[string(p.column.Name)] = collectionCell
		return
	}
	row := c.partition.RowOrCreate(p.clustering)
	row.Cells[string(p.column.Name)] = collectionCell
}

// RangeTombstone applies a range-tombstone event over the clustering
// columns, or over one multi-cell column's elements.
func (c *Consumer) RangeTombstone(rawStart, rawEnd []byte, deletion mutation.Tombstone) error {
	startRest, startStatic := composite.HasStaticPrefix(rawStart)

	startMarker, err := composite.LastMarker(startRest)
	if err != nil {
		return err
	}
	if startMarker != composite.MarkerStartOfRange && startMarker != composite.MarkerNone {
		return fmt.Errorf("%w: range tombstone start missing start-of-range marker", ErrMalformed)
	}

	endMarker, err := trailingMarker(rawEnd)
	if err != nil {
		return err
	}
	if endMarker != composite.MarkerEndOfRange {
		return fmt.Errorf("%w: range tombstone end missing end-of-range marker", ErrMalformed)
	}
	endRest := composite.StripTrailingMarkerByte(rawEnd)
	endRest, _ = composite.HasStaticPrefix(endRest)

	k := c.schema.Arity()

	startComponents, err := explodeMaybeCompound(startRest, c.schema)
	if err != nil {
		return err
	}
	endComponents, err := explodeMaybeCompound(endRest, c.schema)
	if err != nil {
		return err
	}

	prefixLen := k
	if len(startComponents) < prefixLen {
		prefixLen = len(startComponents)
	}
	if len(endComponents) < prefixLen {
		prefixLen = len(endComponents)
	}
	if !sameClusteringPrefix(startComponents, endComponents, prefixLen) {
		return ErrUnsupportedRangeDelete
	}

	if len(startComponents) <= k {
		rt := mutation.RangeTombstone{
			Start:          mutation.ClusteringKey(startComponents),
			StartInclusive: true,
			End:            mutation.ClusteringKey(endComponents),
			EndInclusive:   true,
			Deletion:       deletion,
		}
		c.partition.RangeTombstones = append(c.partition.RangeTombstones, rt)
		return nil
	}

	// Last exploded component names a regular column: a collection-wide
	// tombstone.
	colName := startComponents[len(startComponents)-1]
	cdef, ok := c.schema.ColumnByName(colName)
	if !ok {
		return nil
	}
	if !cdef.Type.Kind.IsMultiCell() || deletion.Timestamp <= cdef.DroppedAt {
		return nil
	}

	tag := collectionTag{clustering: flattenKey(mutation.ClusteringKey(startComponents[:k])), column: string(colName)}
	if c.pending != nil && c.pending.tag != tag {
		c.flushPending()
	}
	if c.pending == nil {
		c.pending = &pendingCollection{
			tag:        tag,
			static:     startStatic,
			clustering: mutation.ClusteringKey(startComponents[:k]),
			column:     cdef,
			elements:   make(map[string]mutation.Cell),
		}
	}
	t := deletion
	c.pending.tombstone = &t
	return nil
}

func trailingMarker(raw []byte) (byte, error) {
	if len(raw) == 0 {
		return composite.MarkerNone, nil
	}
	return raw[len(raw)-1], nil
}

func explodeMaybeCompound(raw []byte, s *schema.Schema) ([][]byte, error) {
	if !s.IsCompound {
		if len(raw) == 0 {
			return nil, nil
		}
		return [][]byte{raw}, nil
	}
	return composite.Explode(raw)
}

func sameClusteringPrefix(a, b [][]byte, n int) bool {
	for i := 0; i < n; i++ {
		if string(a[i]) != string(b[i]) {
			return false
		}
	}
	return true
}

// RowEnd flushes the pending collection unconditionally. It returns no
// stop signal: the driver keeps reading events and releases the mutation
// only when it reaches the end-of-partition tag.
func (c *Consumer) RowEnd() {
	c.flushPending()
}
