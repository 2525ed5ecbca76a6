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

// Package model defines the wire-level data types shared by the delta codec,
// the batch indexer framework, and the resume loader. These types are
// intentionally opaque about biological meaning: the pipeline only needs to
// know a cell's type tag and whether it is empty.
package model

// Kind is the type tag carried by the high bits of a Molecule.
type Kind uint8

const (
	KindCode Kind = iota
	KindData
	KindEnergy
	KindStructure
	KindLabel
	KindLabelRef
	KindRegister
	KindEmpty
)

// kindMask selects the 3 high bits of a 32-bit molecule as its type tag.
// The remaining 29 bits are opaque payload the pipeline never interprets.
const (
	kindShift = 29
	kindMask  = 0x7 << kindShift
)

// Molecule is an opaque 32-bit cell value partitioned by a type mask.
type Molecule uint32

// NewMolecule packs a kind and payload into a single molecule value. Payload
// is truncated to 29 bits if it overflows.
func NewMolecule(k Kind, payload uint32) Molecule {
	return Molecule(uint32(k)<<kindShift) | Molecule(payload&^uint32(kindMask))
}

// Kind returns the molecule's type tag.
func (m Molecule) Kind() Kind {
	return Kind((uint32(m) & kindMask) >> kindShift)
}

// Payload returns the opaque low bits of the molecule.
func (m Molecule) Payload() uint32 {
	return uint32(m) &^ uint32(kindMask)
}

// IsEmpty reports whether the cell holding this molecule is unoccupied.
func (m Molecule) IsEmpty() bool {
	return m.Kind() == KindEmpty
}
