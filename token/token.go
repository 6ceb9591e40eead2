// Package token implements the key and token model that places partitions
// on the node's ring: a totally ordered Token produced by a Partitioner from
// a partition key's serialized bytes, the DecoratedKey pair that combines a
// token with its key, and RingPosition, the token-or-decorated-key value
// used as a range endpoint so a token range can be expressed without
// materializing a key.
//
// Token plays the role a sequence number plays for internal keys (a
// totally ordered scalar with a defined comparison), and DecoratedKey's
// two-part lexicographic comparison mirrors an internal-key comparator's
// "compare the cheap part first, fall back to the rest" structure.
package token

import (
	"bytes"

	"github.com/zeebo/xxh3"
)

// Token is a totally ordered value produced by a Partitioner from a
// partition key's serialized bytes. The ring is cyclic: the token following
// the maximum representable value is the minimum.
type Token int64

// MinToken and MaxToken bound the ring. Next(MaxToken) == MinToken.
const (
	MinToken Token = -1 << 63
	MaxToken Token = (1 << 63) - 1
)

// Compare orders tokens. It does not account for ring wrap-around; callers
// reasoning about wrap-around use Range.IsWrapAround/Unwrap instead.
func (t Token) Compare(other Token) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

// Next returns the token immediately following t on the ring, wrapping from
// MaxToken back to MinToken.
func (t Token) Next() Token {
	if t == MaxToken {
		return MinToken
	}
	return t + 1
}

// Partitioner maps a partition key's serialized bytes to a Token. The
// reader treats the partitioner as an injected, opaque collaborator so
// tests stay hermetic.
type Partitioner interface {
	Token(partitionKey []byte) Token
}

// XXH3Partitioner is the default Partitioner, built on the module's existing
// xxh3 dependency rather than introducing a new hash library for a single
// concern.
type XXH3Partitioner struct{}

// Token implements Partitioner.
func (XXH3Partitioner) Token(partitionKey []byte) Token {
	h := xxh3.Hash(partitionKey)
	return Token(int64(h))
}

// DecoratedKey is the canonical partition identifier: a (Token,
// PartitionKey) pair. Ordering is lexicographic on (Token, key bytes).
type DecoratedKey struct {
	Token Token
	Key   []byte
}

// NewDecoratedKey decorates a partition key with the token the given
// partitioner assigns it.
func NewDecoratedKey(key []byte, p Partitioner) DecoratedKey {
	return DecoratedKey{Token: p.Token(key), Key: key}
}

// Compare orders decorated keys lexicographically on (token, key-bytes).
func (d DecoratedKey) Compare(other DecoratedKey) int {
	if c := d.Token.Compare(other.Token); c != 0 {
		return c
	}
	return bytes.Compare(d.Key, other.Key)
}

// KeyRelation distinguishes the two flavors of token-only ring position from
// an actual decorated key.
type KeyRelation int

const (
	// BeforeAllKeys positions a ring location strictly before every
	// decorated key that shares its token.
	BeforeAllKeys KeyRelation = iota
	// AfterAllKeys positions a ring location strictly after every
	// decorated key that shares its token.
	AfterAllKeys
	// OwnsKey means this RingPosition wraps an actual DecoratedKey.
	OwnsKey
)

// RingPosition is either a DecoratedKey or a "token with relation" value
// (before/after all keys of a token), so a range over the ring can be
// expressed without materializing a key.
type RingPosition struct {
	Tok      Token
	Key      []byte // only meaningful when Relation == OwnsKey
	Relation KeyRelation
}

// FromDecoratedKey builds the RingPosition that exactly identifies dk.
func FromDecoratedKey(dk DecoratedKey) RingPosition {
	return RingPosition{Tok: dk.Token, Key: dk.Key, Relation: OwnsKey}
}

// BeforeToken builds the RingPosition just before every key of tok.
func BeforeToken(tok Token) RingPosition {
	return RingPosition{Tok: tok, Relation: BeforeAllKeys}
}

// AfterToken builds the RingPosition just after every key of tok.
func AfterToken(tok Token) RingPosition {
	return RingPosition{Tok: tok, Relation: AfterAllKeys}
}

// Compare orders ring positions. For equal tokens, BeforeAllKeys sorts
// before any OwnsKey position, which sorts before AfterAllKeys; two OwnsKey
// positions on the same token compare by key bytes.
func (r RingPosition) Compare(other RingPosition) int {
	if c := r.Tok.Compare(other.Tok); c != 0 {
		return c
	}
	if r.Relation == OwnsKey && other.Relation == OwnsKey {
		return bytes.Compare(r.Key, other.Key)
	}
	return relationRank(r.Relation) - relationRank(other.Relation)
}

func relationRank(rel KeyRelation) int {
	switch rel {
	case BeforeAllKeys:
		return -1
	case OwnsKey:
		return 0
	case AfterAllKeys:
		return 1
	default:
		return 0
	}
}

// CompareRingPositions is a free-function form of RingPosition.Compare, so
// it can be passed directly as a rangeset.Comparator[RingPosition].
func CompareRingPositions(a, b RingPosition) int {
	return a.Compare(b)
}
