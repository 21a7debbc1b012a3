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

// Package tdigest implements a mergeable quantile sketch, the t-digest
// structure described by Ted Dunning. It is the one concrete
// implementation of the "quantile sketch" that groupagg's TDigest
// aggregator treats as a black box; the compaction algorithm (the
// asin-weighted centroid limit) is carried over from the teacher's
// percentile package, generalized from fixed 16/48-wide float32 lanes
// to a plain, dynamically sized float64 slice.
package tdigest

import (
	"math"
	"sort"

	"golang.org/x/exp/slices"
)

// Centroid is the mean position of a cluster of samples, with a
// weight equal to the number of raw samples it represents.
type Centroid struct {
	Mean   float64
	Weight float64
}

// Digest is a mergeable quantile sketch.
type Digest struct {
	Delta      int // compression target: compacted digest holds O(Delta) centroids
	BufferSize int // number of raw points buffered before a compaction pass

	centroids CentroidSlice
	staging   []Centroid
	total     float64
	min, max  float64
	empty     bool
}

// CentroidSlice is kept sorted by Mean ascending.
type CentroidSlice []Centroid

func (c CentroidSlice) Len() int { return len(c) }

// New returns an empty digest. delta <= 0 defaults to 100;
// bufferSize <= 0 defaults to 8*delta.
func New(delta, bufferSize int) *Digest {
	if delta <= 0 {
		delta = 100
	}
	if bufferSize <= 0 {
		bufferSize = 8 * delta
	}
	return &Digest{Delta: delta, BufferSize: bufferSize, empty: true}
}

// Empty reports whether the digest has never ingested a value.
func (d *Digest) Empty() bool {
	return d.empty && len(d.staging) == 0
}

// Add ingests a single weighted sample. NaN values are ignored by the
// caller (groupagg filters them before calling Add); Add itself just
// rejects NaN defensively.
func (d *Digest) Add(value float64, weight float64) {
	if math.IsNaN(value) || weight <= 0 {
		return
	}
	d.staging = append(d.staging, Centroid{Mean: value, Weight: weight})
	if d.empty {
		d.min, d.max = value, value
	} else {
		d.min = math.Min(d.min, value)
		d.max = math.Max(d.max, value)
	}
	d.empty = false
	if len(d.staging) >= d.BufferSize {
		d.compress()
	}
}

// Merge absorbs other's state into d. other is left unusable for
// further merges that expect disjoint contributions (callers should
// treat it as consumed, matching the ownership-transfer convention
// used across groupagg's merge operations).
func (d *Digest) Merge(other *Digest) {
	if other == nil || other.Empty() {
		return
	}
	other.compress()
	if d.Empty() {
		d.min, d.max = other.min, other.max
	} else {
		d.min = math.Min(d.min, other.min)
		d.max = math.Max(d.max, other.max)
	}
	d.empty = false
	d.staging = append(d.staging, other.centroids...)
	d.compress()
}

// compress folds staging into centroids using the asin-weighted
// centroid-limit formula: centroids are visited in sorted order and
// merged into the running output centroid as long as doing so keeps
// the cumulative weight under a limit that varies smoothly (via
// asin/sin) between the low-density tails and the high-density
// center of the distribution, concentrating more centroids near the
// tails where quantile error matters most.
func (d *Digest) compress() {
	if len(d.staging) == 0 {
		return
	}
	merged := make(CentroidSlice, 0, len(d.centroids)+len(d.staging))
	merged = append(merged, d.centroids...)
	merged = append(merged, d.staging...)
	d.staging = d.staging[:0]
	if len(merged) == 0 {
		return
	}
	slices.SortFunc(merged, func(a, b Centroid) bool { return a.Mean < b.Mean })

	total := 0.0
	for _, c := range merged {
		total += c.Weight
	}
	d.total = total

	compression := float64(d.Delta)
	weightLimit := func(cumulative float64) float64 {
		// q in [-1, 1], mapped through asin/sin to bias compaction
		// toward the tails of the distribution.
		q := 2*(cumulative/total) - 1
		q = clamp(q, -1, 1)
		k := compression * (math.Asin(q) + math.Pi/2) / math.Pi
		k = math.Min(k+1, compression)
		return total * (math.Sin(k*math.Pi/compression-math.Pi/2) + 1) / 2
	}

	out := make(CentroidSlice, 0, len(merged))
	cum := 0.0
	cur := merged[0]
	curCum := 0.0
	limit := weightLimit(0)
	for i := 1; i < len(merged); i++ {
		next := merged[i]
		newWeight := cur.Weight + next.Weight
		if curCum+newWeight <= limit {
			cur.Mean = cur.Mean + (next.Mean-cur.Mean)*(next.Weight/newWeight)
			cur.Weight = newWeight
		} else {
			out = append(out, cur)
			cum += cur.Weight
			curCum = cum
			limit = weightLimit(cum)
			cur = next
		}
	}
	out = append(out, cur)
	d.centroids = out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Quantile returns the approximate value at quantile q (0..1). It
// returns NaN for an empty digest or an out-of-range q.
func (d *Digest) Quantile(q float64) float64 {
	d.compress()
	n := len(d.centroids)
	if d.Empty() || n == 0 || q < 0 || q > 1 {
		return math.NaN()
	}
	if n == 1 {
		return d.centroids[0].Mean
	}
	if q == 0 {
		return d.min
	}
	if q == 1 {
		return d.max
	}

	cumulative := make([]float64, n+1)
	sum := 0.0
	for i, c := range d.centroids {
		cumulative[i] = sum + c.Weight/2
		sum += c.Weight
	}
	cumulative[n] = sum

	index := q * d.total
	if index <= d.centroids[0].Weight/2 {
		return d.min + (2*index/d.centroids[0].Weight)*(d.centroids[0].Mean-d.min)
	}
	lower := sort.Search(len(cumulative), func(i int) bool { return cumulative[i] >= index })
	if lower+1 < len(cumulative) {
		z1 := index - cumulative[lower-1]
		z2 := cumulative[lower] - index
		return weightedAverage(d.centroids[lower-1].Mean, z2, d.centroids[lower].Mean, z1)
	}
	lastWeight := d.centroids[n-1].Weight / 2
	w1 := index - (d.total - lastWeight)
	w2 := lastWeight - w1
	return weightedAverage(d.centroids[n-1].Mean, w1, d.max, w2)
}

// Centroids forces a compaction pass and returns the digest's
// compacted centroids in sorted-by-mean order. The caller must treat
// the returned slice as read-only.
func (d *Digest) Centroids() []Centroid {
	d.compress()
	return d.centroids
}

// Total returns the sum of all centroid weights.
func (d *Digest) Total() float64 { return d.total }

// Bounds returns the minimum and maximum values ever added.
func (d *Digest) Bounds() (min, max float64) { return d.min, d.max }

// FromCentroids rebuilds a digest directly from previously compacted
// centroids, the inverse of Centroids/Total/Bounds/Empty, used to
// restore a digest that crossed a partition or process boundary in
// serialized form.
func FromCentroids(delta, bufferSize int, centroids []Centroid, total, min, max float64, empty bool) *Digest {
	d := New(delta, bufferSize)
	d.centroids = append(CentroidSlice(nil), centroids...)
	d.total = total
	d.min, d.max = min, max
	d.empty = empty
	return d
}

func weightedAverage(m1, w1, m2, w2 float64) float64 {
	if m1 > m2 {
		m1, w1, m2, w2 = m2, w2, m1, w1
	}
	x := (m1*w1 + m2*w2) / (w1 + w2)
	return math.Max(m1, math.Min(x, m2))
}
