package sstable

import (
	"fmt"

	"coltable/internal/encoding"
	"coltable/internal/rowconsumer"
	"coltable/mutation"
	"coltable/schema"
	"coltable/token"
)

// Row-event tags for the per-partition byte stream a data block holds:
// row_start/cell/deleted_cell/range_tombstone/row_end, plus an
// end-of-partition tag this package adds so read_rows knows where one
// partition's stream stops and the next begins.
const (
	tagRowStart       byte = 0
	tagCell           byte = 1
	tagDeletedCell    byte = 2
	tagRangeTombstone byte = 3
	tagRowEnd         byte = 4
	tagEndPartition   byte = 5
)

type byteCursor struct {
	buf []byte
	pos int
}

func (c *byteCursor) remaining() []byte { return c.buf[c.pos:] }

func (c *byteCursor) readLengthPrefixed() ([]byte, error) {
	v, n, err := encoding.DecodeLengthPrefixedSlice(c.remaining())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.pos += n
	return v, nil
}

func (c *byteCursor) readVarint64Signed() (int64, error) {
	v, n, err := encoding.DecodeVarsignedint64(c.remaining())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.pos += n
	return v, nil
}

func (c *byteCursor) readVarint32() (uint32, error) {
	v, n, err := encoding.DecodeVarint32(c.remaining())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.pos += n
	return v, nil
}

func (c *byteCursor) readByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, fmt.Errorf("%w: truncated stream", ErrMalformed)
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *byteCursor) readTombstone() (mutation.Tombstone, error) {
	ts, err := c.readVarint64Signed()
	if err != nil {
		return mutation.Tombstone{}, err
	}
	ldt, err := c.readVarint32()
	if err != nil {
		return mutation.Tombstone{}, err
	}
	return mutation.Tombstone{Timestamp: ts, LocalDeletionTime: int32(ldt)}, nil
}

// DecodePartition decodes one partition-key-prefixed event stream starting
// at buf[0]: the partition key, the partition-level tombstone, then row
// events up to and including the end-of-partition tag. It returns the
// decoded mutation and the number of bytes consumed from buf, so
// read_rows/read_range_rows can advance to the next partition.
func DecodePartition(buf []byte, p token.Partitioner, s *schema.Schema) (mutation.Mutation, int, error) {
	c := &byteCursor{buf: buf}

	key, err := c.readLengthPrefixed()
	if err != nil {
		return mutation.Mutation{}, 0, err
	}
	dk := token.NewDecoratedKey(key, p)

	partitionDeletion, err := c.readTombstone()
	if err != nil {
		return mutation.Mutation{}, 0, err
	}

	partition := mutation.NewMutationPartition()
	partition.PartitionDeletion = partitionDeletion
	consumer := rowconsumer.New(s, partition)

	for {
		tag, err := c.readByte()
		if err != nil {
			return mutation.Mutation{}, 0, err
		}
		switch tag {
		case tagRowStart:
			deletion, err := c.readTombstone()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			rawKey, err := c.readLengthPrefixed()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			if err := consumer.RowStart(rawKey, deletion); err != nil {
				return mutation.Mutation{}, 0, err
			}

		case tagCell:
			rawName, err := c.readLengthPrefixed()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			value, err := c.readLengthPrefixed()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			ts, err := c.readVarint64Signed()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			hasTTLByte, err := c.readByte()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			var ttl uint32
			var expiry int64
			if hasTTLByte != 0 {
				ttl, err = c.readVarint32()
				if err != nil {
					return mutation.Mutation{}, 0, err
				}
				expiry, err = c.readVarint64Signed()
				if err != nil {
					return mutation.Mutation{}, 0, err
				}
			}
			if err := consumer.Cell(rawName, value, ts, hasTTLByte != 0, int32(ttl), expiry); err != nil {
				return mutation.Mutation{}, 0, err
			}

		case tagDeletedCell:
			rawName, err := c.readLengthPrefixed()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			deletion, err := c.readTombstone()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			if err := consumer.DeletedCell(rawName, deletion); err != nil {
				return mutation.Mutation{}, 0, err
			}

		case tagRangeTombstone:
			start, err := c.readLengthPrefixed()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			end, err := c.readLengthPrefixed()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			deletion, err := c.readTombstone()
			if err != nil {
				return mutation.Mutation{}, 0, err
			}
			if err := consumer.RangeTombstone(start, end, deletion); err != nil {
				return mutation.Mutation{}, 0, err
			}

		case tagRowEnd:
			consumer.RowEnd()

		case tagEndPartition:
			return mutation.Mutation{Key: dk, Partition: partition}, c.pos, nil

		default:
			return mutation.Mutation{}, 0, fmt.Errorf("%w: unknown row event tag %d", ErrMalformed, tag)
		}
	}
}
