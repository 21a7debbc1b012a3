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
	"math/big"

	"github.com/arrowkit/groupagg/date"
	"github.com/arrowkit/groupagg/internal/bitset"
)

// ElementType identifies the logical type of the values in a Column.
type ElementType uint8

const (
	Null ElementType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	HalfFloat
	Decimal32
	Decimal64
	Decimal128
	Decimal256
	Temporal
	String
	Binary
	FixedSizeBinary
	List
	Struct
)

func (e ElementType) String() string {
	names := [...]string{
		"null", "bool", "int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64", "float32", "float64",
		"half_float", "decimal32", "decimal64", "decimal128", "decimal256",
		"temporal", "string", "binary", "fixed_size_binary", "list", "struct",
	}
	if int(e) < len(names) {
		return names[e]
	}
	return "unknown"
}

// IsInteger reports whether e is a fixed-width integer type (signed or
// unsigned), including Bool (which widens to an integer accumulator).
func (e ElementType) IsInteger() bool {
	switch e {
	case Bool, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsFloat reports whether e is a binary floating point type.
func (e ElementType) IsFloat() bool {
	return e == Float32 || e == Float64
}

// IsDecimal reports whether e is one of the fixed-scale decimal types.
func (e ElementType) IsDecimal() bool {
	switch e {
	case Decimal32, Decimal64, Decimal128, Decimal256:
		return true
	}
	return false
}

// IsNumeric reports whether e can feed a numeric reducer (Sum,
// Product, Mean, moments, MinMax, TDigest).
func (e ElementType) IsNumeric() bool {
	return e.IsInteger() || e.IsFloat() || e.IsDecimal() || e == Temporal
}

// IsBinaryLike reports whether e is a variable-length or fixed-length
// byte string type.
func (e ElementType) IsBinaryLike() bool {
	return e == String || e == Binary || e == FixedSizeBinary
}

// IntWidth returns the bit width of an integer element type, used to
// size the one-pass integer moment chunking in §4.4.
func (e ElementType) IntWidth() int {
	switch e {
	case Int8, Uint8, Bool:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32:
		return 32
	case Int64, Uint64:
		return 64
	}
	return 64
}

// Decimal is a scale-aware fixed-point value: the represented number
// is Coefficient * 10^(-Scale). Width records the nominal bit width
// (32/64/128/256) for informational purposes only; arithmetic is
// always performed on the arbitrary-precision Coefficient so the same
// code path serves every decimal width. No third-party decimal
// library appears anywhere in the example pack, so this uses the
// standard library's math/big — the one deliberately
// standard-library-only component in this package (see DESIGN.md).
type Decimal struct {
	Coefficient *big.Int
	Scale       int32
	Width       int
}

// Float64 converts d to a float64 for statistics that only need an
// approximation (t-digest ingestion).
func (d Decimal) Float64() float64 {
	if d.Coefficient == nil {
		return 0
	}
	f := new(big.Float).SetInt(d.Coefficient)
	scale := new(big.Float).SetFloat64(pow10(d.Scale))
	f.Quo(f, scale)
	r, _ := f.Float64()
	return r
}

func pow10(scale int32) float64 {
	if scale == 0 {
		return 1
	}
	v := 1.0
	neg := scale < 0
	if neg {
		scale = -scale
	}
	for i := int32(0); i < scale; i++ {
		v *= 10
	}
	if neg {
		return 1 / v
	}
	return v
}

// Rescale returns a Decimal equal to d but expressed at the requested
// scale, which must be >= d.Scale.
func (d Decimal) Rescale(scale int32) Decimal {
	if scale == d.Scale || d.Coefficient == nil {
		return d
	}
	diff := scale - d.Scale
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(diff)), nil)
	return Decimal{
		Coefficient: new(big.Int).Mul(d.Coefficient, factor),
		Scale:       scale,
		Width:       d.Width,
	}
}

// Cmp compares two decimals after rescaling to a common scale.
func (d Decimal) Cmp(o Decimal) int {
	scale := d.Scale
	if o.Scale > scale {
		scale = o.Scale
	}
	a := d.Rescale(scale)
	b := o.Rescale(scale)
	return a.Coefficient.Cmp(b.Coefficient)
}

// Column is a read-only, possibly-nullable, possibly-scalar-broadcast,
// possibly run-length-encoded view of one vector of values (spec §3).
//
// Exactly one of the typed slices below is populated, selected by
// Type. Storage addressing follows three cases:
//   - plain array: len(slice) == Length, logical row i reads slice[i].
//   - scalar broadcast: len(slice) == 1, every logical row reads
//     slice[0].
//   - run-length encoded: Runs is non-nil, len(slice) == len(Runs),
//     physical index r holds the value for Runs[r] consecutive logical
//     rows.
//
// Validity follows the same physical indexing as the typed slice; a
// nil Valid means every physical slot is valid.
type Column struct {
	Type   ElementType
	Length int
	Scalar bool
	Runs   []int32 // nil unless run-length encoded
	Valid  *bitset.Set

	Int64s   []int64
	Float64s []float64
	Decimals []Decimal
	Strings  [][]byte
	Times    []date.Time
	Bools    []bool

	// ListOffsets and Child represent a List-typed column: logical row
	// i's elements are Child's logical rows [ListOffsets[i],
	// ListOffsets[i+1]). len(ListOffsets) == Length+1.
	ListOffsets []int32
	Child       *Column

	// FieldNames and Fields represent a Struct-typed column (e.g.
	// PivotWider's output): field k's values are Fields[k], one
	// struct per logical row.
	FieldNames []string
	Fields     []*Column
}

// PhysicalLen returns the number of physical (stored) slots.
func (c *Column) PhysicalLen() int {
	switch {
	case c.Scalar:
		return 1
	case c.Runs != nil:
		return len(c.Runs)
	default:
		return c.Length
	}
}

// ValidAt reports whether physical slot p is valid.
func (c *Column) ValidAt(p int) bool {
	if c.Valid == nil {
		return true
	}
	return c.Valid.Get(p)
}

// Walk invokes fn once per logical row, with the physical index that
// row's value/validity is stored at. This is how every aggregator in
// this package iterates a Column: the outer loop runs once per
// physical slot (so repeated decode/validity work is paid once per
// run, not once per logical row), and the inner loop distributes that
// one physical value over every logical row the slot covers.
func (c *Column) Walk(fn func(row, phys int)) {
	switch {
	case c.Scalar:
		for row := 0; row < c.Length; row++ {
			fn(row, 0)
		}
	case c.Runs != nil:
		row := 0
		for phys, n := range c.Runs {
			for k := int32(0); k < n; k++ {
				fn(row, phys)
				row++
			}
		}
	default:
		for row := 0; row < c.Length; row++ {
			fn(row, row)
		}
	}
}

// Int64At returns the integer value at physical slot p, reinterpreting
// Bool as 0/1.
func (c *Column) Int64At(p int) int64 {
	if c.Type == Bool {
		if c.Bools[p] {
			return 1
		}
		return 0
	}
	return c.Int64s[p]
}

// Float64At returns the floating point value at physical slot p,
// widening decimals and integers as needed.
func (c *Column) Float64At(p int) float64 {
	switch {
	case c.Type.IsDecimal():
		return c.Decimals[p].Float64()
	case c.Type.IsFloat():
		return c.Float64s[p]
	case c.Type == Temporal:
		return float64(c.Times[p].UnixNano())
	default:
		return float64(c.Int64At(p))
	}
}

// Batch is a read-only view of (values, group_ids) fed to Consume
// (spec §3). GroupIDs is always a plain, non-nullable array aligned
// row-for-row with Values's logical rows.
type Batch struct {
	Values   *Column
	GroupIDs []uint32
}

// PivotBatch is a read-only view of (key, value, group_ids) fed to
// PivotWider.Consume.
type PivotBatch struct {
	Keys     *Column
	Values   *Column
	GroupIDs []uint32
}

// ScalarColumn builds a length-n scalar-broadcast Column for tests and
// for callers that only have a single constant value for a batch.
func ScalarColumn(n int, typ ElementType) *Column {
	return &Column{Type: typ, Length: n, Scalar: true}
}
