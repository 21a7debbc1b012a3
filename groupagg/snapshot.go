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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/arrowkit/groupagg/compr"
	"github.com/arrowkit/groupagg/internal/tdigest"
)

// digestSnapshotCodec is the compression algorithm t-digest snapshots
// use when crossing a partition or process boundary during a
// distributed merge (spec §4.5, §6): a sketch that would otherwise
// require len(centroids)*16 bytes shrinks considerably once its
// sorted, slowly-varying means are zstd-compressed.
const digestSnapshotCodec = "zstd"

// SerializeDigest encodes d's compacted state into a self-describing,
// zstd-compressed byte slice.
func SerializeDigest(d *tdigest.Digest) []byte {
	centroids := d.Centroids()
	min, max := d.Bounds()

	var raw bytes.Buffer
	binary.Write(&raw, binary.LittleEndian, int32(d.Delta))
	binary.Write(&raw, binary.LittleEndian, int32(d.BufferSize))
	binary.Write(&raw, binary.LittleEndian, d.Total())
	binary.Write(&raw, binary.LittleEndian, min)
	binary.Write(&raw, binary.LittleEndian, max)
	binary.Write(&raw, binary.LittleEndian, d.Empty())
	binary.Write(&raw, binary.LittleEndian, int32(len(centroids)))
	for _, c := range centroids {
		binary.Write(&raw, binary.LittleEndian, c.Mean)
		binary.Write(&raw, binary.LittleEndian, c.Weight)
	}

	compressed := compr.Compression(digestSnapshotCodec).Compress(raw.Bytes(), nil)
	out := make([]byte, 4, 4+len(compressed))
	binary.LittleEndian.PutUint32(out, uint32(raw.Len()))
	return append(out, compressed...)
}

// DeserializeDigest reverses SerializeDigest.
func DeserializeDigest(snapshot []byte) (*tdigest.Digest, error) {
	if len(snapshot) < 4 {
		return nil, fmt.Errorf("groupagg: truncated digest snapshot (%d bytes)", len(snapshot))
	}
	rawLen := binary.LittleEndian.Uint32(snapshot[:4])
	rawBuf := make([]byte, rawLen)
	if rawLen > 0 {
		if err := compr.Decompression(digestSnapshotCodec).Decompress(snapshot[4:], rawBuf); err != nil {
			return nil, fmt.Errorf("groupagg: decompress digest snapshot: %w", err)
		}
	}

	r := bytes.NewReader(rawBuf)
	var delta, bufferSize, n int32
	var total, min, max float64
	var empty bool
	for _, f := range []any{&delta, &bufferSize, &total, &min, &max, &empty, &n} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("groupagg: decode digest snapshot: %w", err)
		}
	}
	centroids := make([]tdigest.Centroid, n)
	for i := range centroids {
		if err := binary.Read(r, binary.LittleEndian, &centroids[i].Mean); err != nil {
			return nil, fmt.Errorf("groupagg: decode digest snapshot centroid: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &centroids[i].Weight); err != nil {
			return nil, fmt.Errorf("groupagg: decode digest snapshot centroid: %w", err)
		}
	}
	return tdigest.FromCentroids(int(delta), int(bufferSize), centroids, total, min, max, empty), nil
}

// Snapshot serializes group g's sketch for transfer to another
// process or partition, e.g. ahead of a cross-shard Merge.
func (a *TDigestAggregator) Snapshot(g int) []byte {
	return SerializeDigest(a.digests[g])
}

// RestoreSnapshot merges a previously captured Snapshot into group g,
// the receiving side of a distributed t-digest merge.
func (a *TDigestAggregator) RestoreSnapshot(g int, snapshot []byte) error {
	d, err := DeserializeDigest(snapshot)
	if err != nil {
		return invalid(a.ctx, "hash_tdigest.restore_snapshot", "%s", err.Error())
	}
	a.digests[g].Merge(d)
	a.noNulls.Clear(g) // a restored snapshot's null-count can't be recovered; be conservative
	return nil
}
