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

package groupagg

import (
	"encoding/binary"
	"math"

	"github.com/arrowkit/groupagg/internal/grouper"
)

// encodeValue produces the canonical byte encoding a nested Grouper
// dedupes on: a leading validity tag followed by the value's raw
// bytes when valid (spec §4.9's "(value, group_id)" composite key).
// Two rows compare equal under this encoding iff they are equal under
// the column's own equality (all nulls of a given type collapse to
// the same one-byte encoding, which is what lets Distinct keep "at
// most one null per group").
func encodeValue(col *Column, phys int) []byte {
	if !col.ValidAt(phys) {
		return []byte{0}
	}
	buf := make([]byte, 1, 9)
	buf[0] = 1
	switch {
	case col.Type == Bool:
		if col.Bools[phys] {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case col.Type.IsInteger():
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(col.Int64At(phys)))
		buf = append(buf, tmp[:]...)
	case col.Type.IsFloat():
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(col.Float64At(phys)))
		buf = append(buf, tmp[:]...)
	case col.Type.IsDecimal():
		d := col.Decimals[phys]
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(d.Scale))
		buf = append(buf, tmp[:]...)
		// big.Int.Bytes() returns the magnitude only, so the sign is
		// carried in its own byte ahead of the magnitude.
		if d.Coefficient.Sign() < 0 {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, d.Coefficient.Bytes()...)
	case col.Type == Temporal:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(col.Times[phys].UnixNano()))
		buf = append(buf, tmp[:]...)
	case col.Type.IsBinaryLike():
		buf = append(buf, col.Strings[phys]...)
	}
	return buf
}

// groupagg.Grouper adapter over the reference internal/grouper.Grouper,
// used as the default nested collaborator for Distinct/CountDistinct
// when the caller does not supply its own (spec §6).
type refGrouper struct {
	g *grouper.Grouper
}

// NewReferenceGrouper returns the library's default Grouper
// implementation, siphash-backed.
func NewReferenceGrouper() Grouper {
	return &refGrouper{g: grouper.New(grouper.HashSip)}
}

func (r *refGrouper) Consume(keys []GrouperKey) []uint32 {
	gk := make([]grouper.Key, len(keys))
	for i, k := range keys {
		gk[i] = grouper.Key{Value: k.Value, Group: k.Group}
	}
	return r.g.Consume(gk)
}

func (r *refGrouper) Uniques() []GrouperKey {
	u := r.g.Uniques()
	out := make([]GrouperKey, len(u))
	for i, k := range u {
		out[i] = GrouperKey{Value: k.Value, Group: k.Group}
	}
	return out
}

func (r *refGrouper) Len() int { return r.g.Len() }
