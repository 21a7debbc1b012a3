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
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies why an aggregator operation failed.
type Kind uint8

const (
	// NotImplemented means the (function, element type) combination is
	// not supported, e.g. half_float input to hash_sum.
	NotImplemented Kind = iota
	// Invalid means a semantic violation was detected deterministically
	// from the input, e.g. a pivot duplicate key within a group.
	Invalid
	// AllocatorError means a buffer allocation failed.
	AllocatorError
)

func (k Kind) String() string {
	switch k {
	case NotImplemented:
		return "not implemented"
	case Invalid:
		return "invalid"
	case AllocatorError:
		return "allocator error"
	default:
		return "unknown"
	}
}

// Error is the error type returned from every fallible Aggregator
// method. Once returned, the aggregator that produced it must be
// considered invalid and dropped; there is no retry path (see spec §7).
type Error struct {
	Kind    Kind
	Op      string // e.g. "hash_sum.consume", "hash_pivot_wider.merge"
	Request uuid.UUID
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("groupagg: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("groupagg: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(ctx *ExecContext, kind Kind, op string, cause error) *Error {
	e := &Error{Kind: kind, Op: op, Err: cause}
	if ctx != nil {
		e.Request = ctx.RequestID
	}
	return e
}

func notImplemented(ctx *ExecContext, op string, elem ElementType) *Error {
	return newError(ctx, NotImplemented, op, fmt.Errorf("unsupported element type %s", elem))
}

func invalid(ctx *ExecContext, op string, format string, args ...any) *Error {
	return newError(ctx, Invalid, op, fmt.Errorf(format, args...))
}
