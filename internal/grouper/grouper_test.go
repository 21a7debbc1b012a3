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

package grouper

import "testing"

func TestConsumeAssignsStableIDs(t *testing.T) {
	g := New(HashSip)
	ids := g.Consume([]Key{
		{Value: []byte("a"), Group: 0},
		{Value: []byte("b"), Group: 0},
		{Value: []byte("a"), Group: 0},
		{Value: []byte("a"), Group: 1},
	})
	if ids[0] != ids[2] {
		t.Fatalf("expected repeated key to reuse id, got %v and %v", ids[0], ids[2])
	}
	if ids[0] == ids[1] || ids[0] == ids[3] {
		t.Fatal("expected distinct keys to get distinct ids")
	}
	if g.Len() != 3 {
		t.Fatalf("expected 3 uniques, got %d", g.Len())
	}
}

func TestBLAKE2bAlgorithmAlsoDedups(t *testing.T) {
	g := New(HashBLAKE2b)
	ids := g.Consume([]Key{
		{Value: []byte("x"), Group: 5},
		{Value: []byte("x"), Group: 5},
	})
	if ids[0] != ids[1] {
		t.Fatal("expected identical keys to dedup under blake2b")
	}
}

func TestRemapRewritesGroupsAndMerges(t *testing.T) {
	src := New(HashSip)
	src.Consume([]Key{
		{Value: []byte("p"), Group: 0},
		{Value: []byte("q"), Group: 1},
	})

	dst := New(HashSip)
	dst.Consume([]Key{{Value: []byte("p"), Group: 7}})

	mapping := []uint32{7, 9} // src group 0 -> dst group 7, src group 1 -> dst group 9
	Remap(dst, src, mapping)

	if dst.Len() != 2 {
		t.Fatalf("expected 2 uniques after remap (one duplicate), got %d", dst.Len())
	}
	found9 := false
	for _, k := range dst.Uniques() {
		if k.Group == 9 && string(k.Value) == "q" {
			found9 = true
		}
	}
	if !found9 {
		t.Fatal("expected remapped key (q, 9) present in destination uniques")
	}
}
