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

// MaxPivotWiderGroups is the resize cap of spec §4.11: the scatter
// implementation addresses groups with a signed index, so num_groups
// must fit in 2^31-1.
const MaxPivotWiderGroups = 1<<31 - 1

// DefaultPivotWiderKeyMapper resolves a string key to its index in a
// fixed KeyNames list, the straightforward default implementation of
// the external PivotWiderKeyMapper collaborator (spec §4.11).
type DefaultPivotWiderKeyMapper struct {
	index    map[string]int
	behavior UnexpectedKeyBehavior
}

// NewDefaultPivotWiderKeyMapper builds a mapper over keyNames.
func NewDefaultPivotWiderKeyMapper(keyNames []string, behavior UnexpectedKeyBehavior) *DefaultPivotWiderKeyMapper {
	idx := make(map[string]int, len(keyNames))
	for i, n := range keyNames {
		idx[n] = i
	}
	return &DefaultPivotWiderKeyMapper{index: idx, behavior: behavior}
}

func (m *DefaultPivotWiderKeyMapper) MapKey(key []byte, valid bool) (int, error) {
	if !valid {
		return NullKey, nil
	}
	if i, ok := m.index[string(key)]; ok {
		return i, nil
	}
	if m.behavior == UnexpectedKeyRaise {
		return NullKey, &Error{Kind: Invalid, Op: "hash_pivot_wider.map_key", Err: errUnexpectedKey(string(key))}
	}
	return NullKey, nil
}

func (m *DefaultPivotWiderKeyMapper) MapKeys(keys [][]byte, valid []bool) ([]int, error) {
	out := make([]int, len(keys))
	for i, k := range keys {
		v := true
		if valid != nil {
			v = valid[i]
		}
		idx, err := m.MapKey(k, v)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

type unexpectedKeyError string

func (e unexpectedKeyError) Error() string { return "unexpected pivot key: " + string(e) }
func errUnexpectedKey(key string) error    { return unexpectedKeyError(key) }

// PivotWiderAggregator scatters (key, value) pairs into K output
// columns indexed by key_names, one value slot per group (spec
// §4.11). Each output column is represented as a sparse
// group -> encoded-value map until Finalize, since most groups will
// have a value for only a handful of the K keys.
type PivotWiderAggregator struct {
	ctx       *ExecContext
	opts      PivotWiderOptions
	valueType ElementType
	decWidth  int
	mapper    PivotWiderKeyMapper
	numGroups int
	columns   []map[uint32][]byte
}

// NewPivotWider constructs the PivotWider aggregator. mapper may be
// nil to use DefaultPivotWiderKeyMapper.
func NewPivotWider(ctx *ExecContext, opts PivotWiderOptions, valueType ElementType, mapper PivotWiderKeyMapper) *PivotWiderAggregator {
	if mapper == nil {
		mapper = NewDefaultPivotWiderKeyMapper(opts.KeyNames, opts.UnexpectedKeyBehavior)
	}
	width := 64
	switch valueType {
	case Decimal32:
		width = 32
	case Decimal128:
		width = 128
	case Decimal256:
		width = 256
	}
	columns := make([]map[uint32][]byte, len(opts.KeyNames))
	for i := range columns {
		columns[i] = map[uint32][]byte{}
	}
	return &PivotWiderAggregator{ctx: ctx, opts: opts, valueType: valueType, decWidth: width, mapper: mapper, columns: columns}
}

func (a *PivotWiderAggregator) NumGroups() int       { return a.numGroups }
func (a *PivotWiderAggregator) OutType() ElementType { return Struct }
func (a *PivotWiderAggregator) Ordered() bool        { return true }

func (a *PivotWiderAggregator) Resize(n int) error {
	if n > MaxPivotWiderGroups {
		return invalid(a.ctx, "hash_pivot_wider.resize", "num_groups %d exceeds cap %d", n, MaxPivotWiderGroups)
	}
	if n > a.numGroups {
		a.numGroups = n
	}
	return nil
}

// Consume places each row's value at (g=groups[i], k=key_index(keys[i])),
// failing if the same (g,k) pair is assigned twice either within this
// batch or against a slot a previous batch already filled (spec
// §4.11's duplicate detection, applied uniformly rather than splitting
// into a separate "per-batch" and "merge-time" check, since the
// semantics — no slot is ever overwritten silently — are the same
// either way).
func (a *PivotWiderAggregator) Consume(batch *PivotBatch) error {
	keys := batch.Keys
	vals := batch.Values
	type slot struct {
		g uint32
		k int
	}
	seenThisBatch := map[slot]bool{}

	var err error
	keys.Walk(func(row, phys int) {
		if err != nil {
			return
		}
		g := batch.GroupIDs[row]
		k, mapErr := a.mapper.MapKey(rawKeyBytes(keys, phys), keys.ValidAt(phys))
		if mapErr != nil {
			err = mapErr
			return
		}
		if k == NullKey {
			return
		}
		sl := slot{g: g, k: k}
		if seenThisBatch[sl] {
			err = invalid(a.ctx, "hash_pivot_wider.consume", "duplicate key for group %d, column %d in the same batch", g, k)
			return
		}
		if _, exists := a.columns[k][g]; exists {
			err = invalid(a.ctx, "hash_pivot_wider.consume", "duplicate key for group %d, column %d", g, k)
			return
		}
		seenThisBatch[sl] = true
		vrow := row
		if vals.Scalar {
			vrow = 0
		}
		a.columns[k][g] = encodeValue(vals, vrow)
	})
	return err
}

func rawKeyBytes(keys *Column, phys int) []byte {
	if !keys.ValidAt(phys) {
		return nil
	}
	return keys.Strings[phys]
}

// Merge scatters the peer's columns through mapping, failing if doing
// so would overwrite an already-filled slot (the non-null-count
// conservation check of spec §4.11).
func (a *PivotWiderAggregator) Merge(other Aggregator, mapping []uint32) error {
	o, ok := other.(*PivotWiderAggregator)
	if !ok {
		return invalid(a.ctx, "hash_pivot_wider.merge", "peer aggregator type mismatch")
	}
	if len(mapping) != o.numGroups {
		return invalid(a.ctx, "hash_pivot_wider.merge", "mapping length %d != peer num_groups %d", len(mapping), o.numGroups)
	}
	for k, col := range o.columns {
		for i, raw := range col {
			g := mapping[i]
			if _, exists := a.columns[k][g]; exists {
				return invalid(a.ctx, "hash_pivot_wider.merge", "merge would overwrite group %d, column %d: non-null count not conserved", g, k)
			}
			a.columns[k][g] = raw
		}
	}
	for _, g := range mapping {
		if int(g)+1 > a.numGroups {
			a.numGroups = int(g) + 1
		}
	}
	o.columns = nil
	return nil
}

func (a *PivotWiderAggregator) Finalize() (*Column, error) {
	n := a.numGroups
	fields := make([]*Column, len(a.columns))
	for k, col := range a.columns {
		items := make([][]byte, n)
		for g := 0; g < n; g++ {
			if raw, ok := col[uint32(g)]; ok {
				items[g] = raw
			} else {
				items[g] = []byte{0}
			}
		}
		fields[k] = buildDecodedColumn(a.valueType, a.decWidth, items)
	}
	a.columns = nil
	return &Column{
		Type: Struct, Length: n,
		FieldNames: append([]string(nil), a.opts.KeyNames...),
		Fields:     fields,
	}, nil
}
