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

// Package bitset provides the dense per-group bit vectors that the
// aggregators in groupagg use to track validity (has_values, no_nulls,
// has_nulls, first_is_null, ...). It intentionally knows nothing about
// columnar encodings; it is just a growable bit vector.
package bitset

import "math/bits"

// Set is a growable bit vector. The zero value is an empty set.
type Set struct {
	words []uint64
	n     int
}

// New returns a Set with n bits, all clear.
func New(n int) *Set {
	s := &Set{}
	s.Grow(n)
	return s
}

// NewFilled returns a Set with n bits, all set.
func NewFilled(n int) *Set {
	s := New(n)
	s.SetRange(0, n)
	return s
}

// Len returns the number of addressable bits.
func (s *Set) Len() int { return s.n }

// Grow extends the set to n bits. Bits in [old_len, n) start clear.
// Grow never shrinks the set.
func (s *Set) Grow(n int) {
	if n <= s.n {
		return
	}
	words := (n + 63) / 64
	if words > len(s.words) {
		grown := make([]uint64, words)
		copy(grown, s.words)
		s.words = grown
	}
	s.n = n
}

// SetRange sets bits [lo, hi) to 1. Used to fill newly grown slots
// with an identity value of "true" (e.g. All's identity, or an
// initial "no_nulls" assumption).
func (s *Set) SetRange(lo, hi int) {
	for i := lo; i < hi; i++ {
		s.Set(i)
	}
}

// ClearRange clears bits [lo, hi) to 0.
func (s *Set) ClearRange(lo, hi int) {
	for i := lo; i < hi; i++ {
		s.Clear(i)
	}
}

// Set sets bit i to 1.
func (s *Set) Set(i int) {
	s.words[i/64] |= 1 << uint(i%64)
}

// Clear sets bit i to 0.
func (s *Set) Clear(i int) {
	s.words[i/64] &^= 1 << uint(i%64)
}

// Get returns the value of bit i.
func (s *Set) Get(i int) bool {
	return s.words[i/64]&(1<<uint(i%64)) != 0
}

// Put sets bit i to v.
func (s *Set) Put(i int, v bool) {
	if v {
		s.Set(i)
	} else {
		s.Clear(i)
	}
}

// Count returns the number of set bits below Len.
func (s *Set) Count() int {
	n := 0
	full := s.n / 64
	for i := 0; i < full; i++ {
		n += bits.OnesCount64(s.words[i])
	}
	if rem := s.n % 64; rem != 0 {
		mask := uint64(1)<<uint(rem) - 1
		n += bits.OnesCount64(s.words[full] & mask)
	}
	return n
}

// And intersects self with other in place: self[i] &= other[i].
// other must have Len() >= self.Len().
func (s *Set) And(other *Set) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] &= other.words[i]
		} else {
			s.words[i] = 0
		}
	}
}

// Or unions self with other in place: self[i] |= other[i].
func (s *Set) Or(other *Set) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] |= other.words[i]
		}
	}
}

// OrNot ORs self with the complement of other: self[i] |= !other[i].
// Bits beyond other's length are treated as 0 (so !other is 1 there).
func (s *Set) OrNot(other *Set) {
	for i := range s.words {
		var ow uint64
		if i < len(other.words) {
			ow = other.words[i]
		}
		s.words[i] |= ^ow
	}
	s.maskTail()
}

// maskTail clears any bits beyond n in the final word so Count and
// iteration never see garbage from a half-filled trailing word.
func (s *Set) maskTail() {
	if s.n == 0 {
		return
	}
	rem := s.n % 64
	if rem == 0 {
		return
	}
	last := s.n / 64
	mask := uint64(1)<<uint(rem) - 1
	s.words[last] &= mask
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	c := &Set{n: s.n, words: make([]uint64, len(s.words))}
	copy(c.words, s.words)
	return c
}
