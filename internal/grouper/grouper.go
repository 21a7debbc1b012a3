// Copyright (C) 2024 The GroupAgg Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package grouper provides a reference implementation of the Grouper
// collaborator that groupagg.Distinct and groupagg.CountDistinct
// consume. The real grouping engine lives outside this library's
// scope (see spec §6); this is a usable stand-in built the way the
// teacher hashes row values for its own hash-aggregation bucket table
// (vm/interphash.go uses siphash over the raw value bytes), generalized
// to a plain Go map since the radix-tree bucket table itself is the
// kind of memory-pool-backed primitive this library treats as an
// external collaborator.
package grouper

import (
	"encoding/binary"

	"github.com/dchest/siphash"
	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm selects the keying hash used to bucket composite keys.
type HashAlgorithm uint8

const (
	// HashSip is the default: fast, 128-bit, keyed with a fixed seed.
	// Matches the teacher's choice of siphash for hashing row values.
	HashSip HashAlgorithm = iota
	// HashBLAKE2b trades speed for stronger collision resistance; useful
	// when uniques must be merged across many partitions and a hash
	// collision would silently conflate two distinct keys.
	HashBLAKE2b
)

// Key is a single (value, group) pair as the nested Grouper used by
// Distinct/CountDistinct sees it: Value is the canonical byte encoding
// of the aggregated value (including a leading null/validity tag) and
// Group is the enclosing aggregation's group id.
type Key struct {
	Value []byte
	Group uint32
}

func (k Key) equal(o Key) bool {
	return k.Group == o.Group && string(k.Value) == string(o.Value)
}

type bucketEntry struct {
	key Key
	id  uint32
}

// Grouper assigns a dense, stable id to each distinct Key it has seen,
// in first-seen order, exactly the contract groupagg's Grouper
// interface describes for the nested (value, group_id) deduplication
// that Distinct/CountDistinct perform.
type Grouper struct {
	algo    HashAlgorithm
	buckets map[uint64][]bucketEntry
	uniques []Key
}

// New returns an empty Grouper using the given hash algorithm.
func New(algo HashAlgorithm) *Grouper {
	return &Grouper{algo: algo, buckets: make(map[uint64][]bucketEntry)}
}

func (g *Grouper) hash(k Key) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], k.Group)
	switch g.algo {
	case HashBLAKE2b:
		h, _ := blake2b.New256(nil)
		h.Write(buf[:])
		h.Write(k.Value)
		sum := h.Sum(nil)
		return binary.LittleEndian.Uint64(sum)
	default:
		lo, _ := siphash.Hash128(0, 0, append(buf[:], k.Value...))
		return lo
	}
}

// Consume assigns (or reuses) an id for every key in keys, returning
// one id per input key in the same order. This is the Grouper
// contract's consume(batch) -> group_ids_array operation, specialized
// to the composite (value, group_id) keys used for deduplication.
func (g *Grouper) Consume(keys []Key) []uint32 {
	out := make([]uint32, len(keys))
	for i, k := range keys {
		out[i] = g.assign(k)
	}
	return out
}

func (g *Grouper) assign(k Key) uint32 {
	h := g.hash(k)
	for _, e := range g.buckets[h] {
		if e.key.equal(k) {
			return e.id
		}
	}
	id := uint32(len(g.uniques))
	g.uniques = append(g.uniques, k)
	g.buckets[h] = append(g.buckets[h], bucketEntry{key: k, id: id})
	return id
}

// Uniques returns the distinct keys seen so far, in first-seen order;
// Uniques()[i] is the key assigned id i. This is get_uniques from the
// Grouper contract.
func (g *Grouper) Uniques() []Key {
	return g.uniques
}

// Len returns the number of distinct keys assigned so far.
func (g *Grouper) Len() int {
	return len(g.uniques)
}

// Remap re-keys every unique entry's Group field through mapping and
// re-consumes the result into dst, returning the ids (in dst's id
// space) that each of g's own unique entries now occupies. This is
// how groupagg.Distinct/CountDistinct implement merge: obtain the
// peer's uniques, rewrite their group ids via the enclosing
// aggregator's id_remap, and re-consume them into the receiver.
func Remap(dst *Grouper, src *Grouper, mapping []uint32) []uint32 {
	keys := make([]Key, len(src.uniques))
	for i, k := range src.uniques {
		keys[i] = Key{Value: k.Value, Group: mapping[k.Group]}
	}
	return dst.Consume(keys)
}
