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
	"golang.org/x/exp/maps"
)

// constructor builds one Aggregator for a given input element type.
// rawOpts is the function's *Options value (e.g. ScalarAggregateOptions),
// passed as any so one map can hold every function's constructor.
type constructor func(ctx *ExecContext, inType ElementType, rawOpts any) (Aggregator, error)

// Registry binds (FunctionName, input ElementType) pairs to the
// constructor that builds the matching Aggregator, the lookup a query
// planner uses to go from a parsed aggregate call to a running kernel
// (spec §6). PivotWider is deliberately absent: its Ternary arity
// means it never satisfies the Aggregator interface's binary Consume,
// so it is built directly via NewPivotWider rather than through this
// registry.
type Registry struct {
	ctors map[FunctionName]constructor
}

// NewRegistry returns a Registry pre-populated with every builtin
// aggregation kernel this package implements.
func NewRegistry() *Registry {
	r := &Registry{ctors: map[FunctionName]constructor{}}
	r.registerBuiltins()
	return r
}

// Register adds or replaces the constructor for fn, letting a caller
// extend the registry with a custom kernel under an existing or new
// FunctionName.
func (r *Registry) Register(fn FunctionName, c constructor) {
	r.ctors[fn] = c
}

// Functions returns every registered function name, in no particular
// order.
func (r *Registry) Functions() []FunctionName {
	return maps.Keys(r.ctors)
}

// Build constructs the Aggregator for fn over inType, decoding opts
// (which must be the concrete *Options type fn expects, or nil for
// FuncCountAll) and returning an error if fn is unregistered or opts
// is the wrong type.
func (r *Registry) Build(ctx *ExecContext, fn FunctionName, inType ElementType, opts any) (Aggregator, error) {
	c, ok := r.ctors[fn]
	if !ok {
		return nil, invalid(ctx, "registry.build", "unregistered function %q", fn)
	}
	return c(ctx, inType, opts)
}

func optsAs[T any](ctx *ExecContext, op string, raw any) (T, error) {
	v, ok := raw.(T)
	if !ok {
		var zero T
		return zero, invalid(ctx, op, "opts: expected %T, got %T", zero, raw)
	}
	return v, nil
}

func (r *Registry) registerBuiltins() {
	r.ctors[FuncCountAll] = func(ctx *ExecContext, _ ElementType, _ any) (Aggregator, error) {
		return NewCountAll(ctx), nil
	}
	r.ctors[FuncCount] = func(ctx *ExecContext, _ ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[CountOptions](ctx, "hash_count.build", raw)
		if err != nil {
			return nil, err
		}
		return NewCount(ctx, opts), nil
	}
	r.ctors[FuncSum] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_sum.build", raw)
		if err != nil {
			return nil, err
		}
		return NewSum(ctx, opts, t)
	}
	r.ctors[FuncProduct] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_product.build", raw)
		if err != nil {
			return nil, err
		}
		return NewProduct(ctx, opts, t)
	}
	r.ctors[FuncMean] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_mean.build", raw)
		if err != nil {
			return nil, err
		}
		return NewMean(ctx, opts, t)
	}
	r.ctors[FuncVariance] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[VarianceOptions](ctx, "hash_variance.build", raw)
		if err != nil {
			return nil, err
		}
		return NewVariance(ctx, opts, t)
	}
	r.ctors[FuncStddev] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[VarianceOptions](ctx, "hash_stddev.build", raw)
		if err != nil {
			return nil, err
		}
		return NewStddev(ctx, opts, t)
	}
	r.ctors[FuncSkew] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[SkewOptions](ctx, "hash_skew.build", raw)
		if err != nil {
			return nil, err
		}
		return NewSkew(ctx, opts, t)
	}
	r.ctors[FuncKurtosis] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[SkewOptions](ctx, "hash_kurtosis.build", raw)
		if err != nil {
			return nil, err
		}
		return NewKurtosis(ctx, opts, t)
	}
	r.ctors[FuncTDigest] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[TDigestOptions](ctx, "hash_tdigest.build", raw)
		if err != nil {
			return nil, err
		}
		return NewTDigest(ctx, opts, t)
	}
	r.ctors[FuncApproximateMedian] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[TDigestOptions](ctx, "hash_approximate_median.build", raw)
		if err != nil {
			return nil, err
		}
		return NewApproximateMedian(ctx, opts, t)
	}
	r.ctors[FuncMinMax] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_min_max.build", raw)
		if err != nil {
			return nil, err
		}
		return NewMinMax(ctx, opts, t)
	}
	r.ctors[FuncMin] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_min.build", raw)
		if err != nil {
			return nil, err
		}
		return NewMin(ctx, opts, t)
	}
	r.ctors[FuncMax] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_max.build", raw)
		if err != nil {
			return nil, err
		}
		return NewMax(ctx, opts, t)
	}
	r.ctors[FuncFirstLast] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_first_last.build", raw)
		if err != nil {
			return nil, err
		}
		return NewFirstLast(ctx, opts, t)
	}
	r.ctors[FuncFirst] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_first.build", raw)
		if err != nil {
			return nil, err
		}
		return NewFirst(ctx, opts, t)
	}
	r.ctors[FuncLast] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_last.build", raw)
		if err != nil {
			return nil, err
		}
		return NewLast(ctx, opts, t)
	}
	r.ctors[FuncAny] = func(ctx *ExecContext, _ ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_any.build", raw)
		if err != nil {
			return nil, err
		}
		return NewAny(ctx, opts), nil
	}
	r.ctors[FuncAll] = func(ctx *ExecContext, _ ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[ScalarAggregateOptions](ctx, "hash_all.build", raw)
		if err != nil {
			return nil, err
		}
		return NewAll(ctx, opts), nil
	}
	r.ctors[FuncCountDistinct] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[CountOptions](ctx, "hash_count_distinct.build", raw)
		if err != nil {
			return nil, err
		}
		return NewCountDistinct(ctx, opts, t, nil), nil
	}
	r.ctors[FuncDistinct] = func(ctx *ExecContext, t ElementType, raw any) (Aggregator, error) {
		opts, err := optsAs[CountOptions](ctx, "hash_distinct.build", raw)
		if err != nil {
			return nil, err
		}
		return NewDistinct(ctx, opts, t, nil), nil
	}
	r.ctors[FuncOne] = func(ctx *ExecContext, t ElementType, _ any) (Aggregator, error) {
		return NewOne(ctx, t), nil
	}
	r.ctors[FuncList] = func(ctx *ExecContext, t ElementType, _ any) (Aggregator, error) {
		return NewList(ctx, t), nil
	}
}
