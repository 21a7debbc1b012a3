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

import "sigs.k8s.io/yaml"

// CountMode selects what Count treats as "counted" (spec §4.2, §3).
type CountMode uint8

const (
	CountOnlyValid CountMode = iota
	CountOnlyNull
	CountAllMode
)

// CountOptions configures the Count aggregator.
type CountOptions struct {
	Mode CountMode `json:"mode" yaml:"mode"`
}

// ScalarAggregateOptions configures the null-gating behavior of Sum,
// Product, Mean, MinMax/Min/Max, FirstLast/First/Last, Any and All.
type ScalarAggregateOptions struct {
	SkipNulls bool   `json:"skip_nulls" yaml:"skip_nulls"`
	MinCount  uint32 `json:"min_count" yaml:"min_count"`
}

// DefaultScalarAggregateOptions matches the original implementation's
// default of skipping nulls with no minimum count requirement.
func DefaultScalarAggregateOptions() ScalarAggregateOptions {
	return ScalarAggregateOptions{SkipNulls: true, MinCount: 0}
}

// VarianceOptions configures Variance/Stddev.
type VarianceOptions struct {
	DDOF      int32  `json:"ddof" yaml:"ddof"`
	SkipNulls bool   `json:"skip_nulls" yaml:"skip_nulls"`
	MinCount  uint32 `json:"min_count" yaml:"min_count"`
}

// SkewOptions configures Skew/Kurtosis. DDOF is always 0 for these
// (spec §3).
type SkewOptions struct {
	SkipNulls bool   `json:"skip_nulls" yaml:"skip_nulls"`
	MinCount  uint32 `json:"min_count" yaml:"min_count"`
}

// TDigestOptions configures TDigest/ApproximateMedian.
type TDigestOptions struct {
	Q          []float64 `json:"q" yaml:"q"`
	Delta      uint32    `json:"delta" yaml:"delta"`
	BufferSize uint32    `json:"buffer_size" yaml:"buffer_size"`
	SkipNulls  bool      `json:"skip_nulls" yaml:"skip_nulls"`
	MinCount   uint32    `json:"min_count" yaml:"min_count"`
}

// DefaultTDigestOptions mirrors the original implementation's defaults.
func DefaultTDigestOptions() TDigestOptions {
	return TDigestOptions{Q: []float64{0.5}, Delta: 100, BufferSize: 500, SkipNulls: true}
}

// UnexpectedKeyBehavior selects what PivotWider does with a key value
// that is not one of PivotWiderOptions.KeyNames.
type UnexpectedKeyBehavior uint8

const (
	UnexpectedKeyIgnore UnexpectedKeyBehavior = iota
	UnexpectedKeyRaise
)

// PivotWiderOptions configures PivotWider.
type PivotWiderOptions struct {
	KeyNames              []string              `json:"key_names" yaml:"key_names"`
	UnexpectedKeyBehavior UnexpectedKeyBehavior `json:"unexpected_key_behavior" yaml:"unexpected_key_behavior"`
}

// LoadOptions decodes a YAML-encoded option document into dst, the
// way the teacher's cmd/sdb loads its own YAML configuration via
// sigs.k8s.io/yaml. dst must be a pointer to one of the *Options
// structs above.
func LoadOptions(doc []byte, dst any) error {
	return yaml.Unmarshal(doc, dst)
}
