// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

// CellColumnBatch is the wire form of a set of cell mutations: three
// parallel arrays of equal length. No flat index may repeat within a
// single batch.
type CellColumnBatch struct {
	FlatIndex    []uint64
	MoleculeData []uint32
	OwnerID      []uint64
}

// Len returns the number of cell mutations carried by this batch.
func (b CellColumnBatch) Len() int { return len(b.FlatIndex) }

// MergeCellColumns applies src onto dst, last-write-wins per flat index, and
// returns the merged batch. Entries of dst whose flat index appears in src
// are overwritten in place and new indices are appended, so the result can
// share its arrays with dst.
func MergeCellColumns(dst CellColumnBatch, src CellColumnBatch) CellColumnBatch {
	index := make(map[uint64]int, dst.Len())
	for i, flat := range dst.FlatIndex {
		index[flat] = i
	}
	for i, flat := range src.FlatIndex {
		if pos, ok := index[flat]; ok {
			dst.MoleculeData[pos] = src.MoleculeData[i]
			dst.OwnerID[pos] = src.OwnerID[i]
			continue
		}
		index[flat] = len(dst.FlatIndex)
		dst.FlatIndex = append(dst.FlatIndex, flat)
		dst.MoleculeData = append(dst.MoleculeData, src.MoleculeData[i])
		dst.OwnerID = append(dst.OwnerID, src.OwnerID[i])
	}
	return dst
}
