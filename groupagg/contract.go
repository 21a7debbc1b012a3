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

// Package groupagg is the grouped (hash) aggregation kernel library of
// a columnar analytics engine: given a column of values and a
// parallel column of pre-assigned group ids, it computes one
// aggregate value per group for a named aggregation function (count,
// sum, mean, variance, min/max, first/last, t-digest quantiles,
// any/all, distinct, list, pivot-wider, ...).
//
// The grouping engine that assigns group ids is not part of this
// package; every Aggregator here consumes group ids it is handed, and
// never computes them.
package groupagg

import (
	"github.com/google/uuid"
)

// ExecContext carries the resources an Aggregator needs that are
// shared across an entire aggregation run: a request id for error
// correlation (mirrors the request-id idiom the teacher's query
// handlers attach to every error) and room for a caller-supplied
// allocator hook in the future. The zero value is valid.
type ExecContext struct {
	RequestID uuid.UUID
}

// NewExecContext returns an ExecContext stamped with a fresh request id.
func NewExecContext() *ExecContext {
	return &ExecContext{RequestID: uuid.New()}
}

// Aggregator is the common contract every grouped aggregation kernel
// implements (spec §4.1).
type Aggregator interface {
	// Resize guarantees capacity for group ids 0..n, preserving the
	// state of existing groups and initializing new slots to the
	// aggregator's identity value. Resize is additive only.
	Resize(n int) error

	// Consume folds a batch of (value, group_id) pairs into state.
	// Commutative aggregators are indifferent to the order in which
	// rows are presented; First/Last and Pivot are not.
	Consume(batch *Batch) error

	// Merge absorbs other's state into self, mapping other's local
	// group id other_g to self's id groupIDMapping[other_g]. Ownership
	// of other's internal buffers transfers to self; other must not be
	// used afterward except to be discarded.
	Merge(other Aggregator, groupIDMapping []uint32) error

	// Finalize produces the output column, of length NumGroups() and
	// element type OutType(). The aggregator must not be used again
	// afterward.
	Finalize() (*Column, error)

	// NumGroups returns the aggregator's current group capacity.
	NumGroups() int

	// OutType returns the output element type, stable from
	// construction onward.
	OutType() ElementType

	// Ordered reports whether this aggregator's semantics depend on
	// the order batches are consumed in (First/Last, PivotWider). The
	// driver must preserve ingestion order for such aggregators.
	Ordered() bool
}

// Grouper is the external collaborator that assigns dense group ids
// to distinct keys. groupagg never implements the primary grouping
// engine; Distinct and CountDistinct consume a nested
// Grouper purely to deduplicate (value, group_id) pairs within
// themselves, per spec §6 and §4.9. internal/grouper provides a
// reference implementation.
type Grouper interface {
	// Consume assigns (or reuses) a dense id per input key, returning
	// one id per key in input order.
	Consume(keys []GrouperKey) []uint32
	// Uniques returns the distinct keys seen so far, in first-seen
	// order; Uniques()[i] is the key assigned id i.
	Uniques() []GrouperKey
	// Len returns the number of distinct keys assigned so far.
	Len() int
}

// GrouperKey is a single (value, group) pair as the nested Grouper
// used by Distinct/CountDistinct sees it.
type GrouperKey struct {
	Value []byte
	Group uint32
}

// PivotWiderKeyMapper resolves a pivot key value to one of the fixed
// output column indices declared by PivotWiderOptions.KeyNames, or to
// NullKey under Ignore semantics (spec §6, §4.11).
type PivotWiderKeyMapper interface {
	// MapKey resolves a single scalar key. An error is only returned
	// under UnexpectedKeyRaise.
	MapKey(key []byte, valid bool) (int, error)
	// MapKeys resolves every key in an array key column at once.
	MapKeys(keys [][]byte, valid []bool) ([]int, error)
}

// NullKey is the sentinel MapKey/MapKeys return for a key value that
// is not among PivotWiderOptions.KeyNames under UnexpectedKeyIgnore.
const NullKey = -1

// FunctionName identifies a registered aggregation kernel (spec §6).
type FunctionName string

const (
	FuncCount                 FunctionName = "hash_count"
	FuncCountAll              FunctionName = "hash_count_all"
	FuncSum                   FunctionName = "hash_sum"
	FuncProduct               FunctionName = "hash_product"
	FuncMean                  FunctionName = "hash_mean"
	FuncStddev                FunctionName = "hash_stddev"
	FuncVariance              FunctionName = "hash_variance"
	FuncSkew                  FunctionName = "hash_skew"
	FuncKurtosis              FunctionName = "hash_kurtosis"
	FuncTDigest               FunctionName = "hash_tdigest"
	FuncApproximateMedian     FunctionName = "hash_approximate_median"
	FuncFirstLast             FunctionName = "hash_first_last"
	FuncFirst                 FunctionName = "hash_first"
	FuncLast                  FunctionName = "hash_last"
	FuncMinMax                FunctionName = "hash_min_max"
	FuncMin                   FunctionName = "hash_min"
	FuncMax                   FunctionName = "hash_max"
	FuncAny                   FunctionName = "hash_any"
	FuncAll                   FunctionName = "hash_all"
	FuncCountDistinct         FunctionName = "hash_count_distinct"
	FuncDistinct              FunctionName = "hash_distinct"
	FuncOne                   FunctionName = "hash_one"
	FuncList                  FunctionName = "hash_list"
	FuncPivotWider            FunctionName = "hash_pivot_wider"
)

// Arity is the number of logical input columns a function consumes.
type Arity uint8

const (
	Unary   Arity = 1 // count-all: no value column at all, just group ids
	Binary  Arity = 2 // value + group ids
	Ternary Arity = 3 // key + value + group ids, for pivot-wider
)
