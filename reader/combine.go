package reader

import (
	"container/heap"
	"context"

	"coltable/mutation"
)

// combineHeapItem tracks one child source's current head mutation: index
// into children plus cached key.
type combineHeapItem struct {
	sourceIdx int
	mut       *mutation.Mutation
}

type combineHeap []*combineHeapItem

func (h combineHeap) Len() int { return len(h) }
func (h combineHeap) Less(i, j int) bool {
	return h[i].mut.Key.Compare(h[j].mut.Key) < 0
}
func (h combineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *combineHeap) Push(x any)   { *h = append(*h, x.(*combineHeapItem)) }
func (h *combineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// combiningReader merges N lazy mutation sources sorted by decorated key,
// folding every source that shares the current minimum key into one
// mutation. Plays the same role a merging iterator plays over raw
// iterators with container/heap; here the heap pops every child tied for
// the minimum (not just one) before advancing, since ties must fold
// rather than interleave.
type combiningReader struct {
	sources []MutationSource
	h       combineHeap
	primed  bool
}

// Combine returns a MutationSource merging sources by decorated key.
func Combine(sources []MutationSource) MutationSource {
	return &combiningReader{sources: sources}
}

func (c *combiningReader) prime(ctx context.Context) error {
	c.primed = true
	for i, src := range c.sources {
		m, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if m != nil {
			heap.Push(&c.h, &combineHeapItem{sourceIdx: i, mut: m})
		}
	}
	return nil
}

func (c *combiningReader) Next(ctx context.Context) (*mutation.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.primed {
		if err := c.prime(ctx); err != nil {
			return nil, err
		}
	}
	if c.h.Len() == 0 {
		return nil, nil
	}

	var tied []*mutation.Mutation
	minKey := c.h[0].mut.Key
	for c.h.Len() > 0 && c.h[0].mut.Key.Compare(minKey) == 0 {
		item := heap.Pop(&c.h).(*combineHeapItem)
		tied = append(tied, item.mut)

		next, err := c.sources[item.sourceIdx].Next(ctx)
		if err != nil {
			return nil, err
		}
		if next != nil {
			heap.Push(&c.h, &combineHeapItem{sourceIdx: item.sourceIdx, mut: next})
		}
	}

	merged := mergeMutations(tied)
	return merged, nil
}

// mergeMutations folds mutations that share a decorated key into one:
// last-writer-wins by cell timestamp, with tombstones acting as dead cells.
func mergeMutations(muts []*mutation.Mutation) *mutation.Mutation {
	if len(muts) == 1 {
		return muts[0]
	}

	out := &mutation.Mutation{Key: muts[0].Key, Partition: mutation.NewMutationPartition()}
	p := out.Partition

	for _, m := range muts {
		if m.Partition.PartitionDeletion.Supersedes(p.PartitionDeletion) {
			p.PartitionDeletion = m.Partition.PartitionDeletion
		}
	}

	for _, m := range muts {
		mergeCells(p.StaticRow, m.Partition.StaticRow)
	}

	rowIndex := make(map[string]*mutation.ClusteredRow)
	var order []string
	for _, m := range muts {
		for _, row := range m.Partition.Rows {
			key := string(flattenClusteringKey(row.Key))
			dst, ok := rowIndex[key]
			if !ok {
				dst = &mutation.ClusteredRow{Key: row.Key, Cells: make(map[string]mutation.Cell)}
				rowIndex[key] = dst
				order = append(order, key)
			}
			mergeRowMarker(&dst.Marker, row.Marker)
			mergeCells(dst.Cells, row.Cells)
		}
		p.RangeTombstones = append(p.RangeTombstones, m.Partition.RangeTombstones...)
	}
	for _, key := range order {
		p.Rows = append(p.Rows, rowIndex[key])
	}

	return out
}

func flattenClusteringKey(k mutation.ClusteringKey) []byte {
	var buf []byte
	for _, c := range k {
		buf = append(buf, byte(len(c)>>24), byte(len(c)>>16), byte(len(c)>>8), byte(len(c)))
		buf = append(buf, c...)
	}
	return buf
}

func mergeRowMarker(dst *mutation.RowMarker, src mutation.RowMarker) {
	if src.Timestamp > dst.Timestamp || (dst.Timestamp == 0 && !dst.IsLive) {
		*dst = src
	}
}

func mergeCells(dst, src map[string]mutation.Cell) {
	for name, cell := range src {
		existing, ok := dst[name]
		if !ok || cellTimestamp(cell) >= cellTimestamp(existing) {
			dst[name] = cell
		}
	}
}

// cellTimestamp returns the timestamp used to order two cells for the
// same column: a live cell's write time, or a tombstone's deletion time
// (tombstones act as dead cells ranked the same way).
func cellTimestamp(c mutation.Cell) int64 {
	switch c.Kind {
	case mutation.CellLive:
		return c.Timestamp
	case mutation.CellDead:
		return c.Deletion.Timestamp
	case mutation.CellCollection:
		var max int64
		for _, elem := range c.Elements {
			if t := cellTimestamp(elem); t > max {
				max = t
			}
		}
		return max
	default:
		return 0
	}
}

// filteringReader wraps a source, skipping mutations that fail pred.
type filteringReader struct {
	src  MutationSource
	pred func(*mutation.Mutation) bool
}

// Filter returns a MutationSource over src's mutations matching pred.
func Filter(src MutationSource, pred func(*mutation.Mutation) bool) MutationSource {
	return &filteringReader{src: src, pred: pred}
}

func (f *filteringReader) Next(ctx context.Context) (*mutation.Mutation, error) {
	for {
		m, err := f.src.Next(ctx)
		if err != nil || m == nil {
			return m, err
		}
		if f.pred(m) {
			return m, nil
		}
	}
}

// joiningReader concatenates N sources in order with no ordering assumed
// across them.
type joiningReader struct {
	sources []MutationSource
	idx     int
}

// Join returns a MutationSource concatenating sources in order.
func Join(sources []MutationSource) MutationSource {
	return &joiningReader{sources: sources}
}

func (j *joiningReader) Next(ctx context.Context) (*mutation.Mutation, error) {
	for j.idx < len(j.sources) {
		m, err := j.sources[j.idx].Next(ctx)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
		j.idx++
	}
	return nil, nil
}
