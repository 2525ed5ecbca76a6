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

// Package codec implements the delta codec: turning a stream of simulation
// states into self-contained chunks (encoder.go / decoder.go), and the wire
// format those chunks are framed in on disk (wire.go).
//
// The wire format realizes spec.md's "length-delimited protobuf-style
// records": each record is a uvarint byte-length followed by that many
// bytes of MessagePack-encoded payload. The MessagePack encoding itself is
// hand-written against github.com/tinylib/msgp/msgp's append/read helpers
// in tuple (array, not map) form -- the same shape `msgp -io -tuple` would
// generate -- rather than run code generation.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tinylib/msgp/msgp"

	"github.com/evochora/telemetry/pkg/model"
)

// WriteChunk frames a single chunk as uvarint(len) || msgpack-bytes and
// writes it to w.
func WriteChunk(w io.Writer, chunk model.TickDataChunk) error {
	payload, err := marshalChunk(nil, chunk)
	if err != nil {
		return fmt.Errorf("codec: marshal chunk: %w", err)
	}
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return fmt.Errorf("codec: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("codec: write frame payload: %w", err)
	}
	return nil
}

// ChunkReader streams chunks out of a batch file one frame at a time,
// applying a field filter for callers that only need the snapshot (the
// resume loader) or organisms (some indexers): the fields the filter
// excludes are read past in the frame but not returned.
type ChunkReader struct {
	r      *bufio.Reader
	filter model.FieldFilter
}

// NewChunkReader wraps r for streaming chunk reads.
func NewChunkReader(r io.Reader, filter model.FieldFilter) *ChunkReader {
	return &ChunkReader{r: bufio.NewReaderSize(r, 1<<20), filter: filter}
}

// Next reads the next chunk frame, or io.EOF when the stream is exhausted.
func (cr *ChunkReader) Next() (model.TickDataChunk, error) {
	n, err := binary.ReadUvarint(cr.r)
	if err != nil {
		if err == io.EOF {
			return model.TickDataChunk{}, io.EOF
		}
		return model.TickDataChunk{}, fmt.Errorf("codec: read frame length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return model.TickDataChunk{}, fmt.Errorf("codec: read frame payload: %w", err)
	}
	chunk, _, err := unmarshalChunk(buf, cr.filter)
	if err != nil {
		return model.TickDataChunk{}, fmt.Errorf("%w: %v", model.ErrChunkCorrupt, err)
	}
	return chunk, nil
}

// ForEachChunk streams every chunk in r to consume, stopping at the first
// error consume returns or at end of stream. It is the core of the object
// store's for_each_chunk contract.
func ForEachChunk(r io.Reader, filter model.FieldFilter, consume func(model.TickDataChunk) error) error {
	cr := NewChunkReader(r, filter)
	for {
		chunk, err := cr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := consume(chunk); err != nil {
			return err
		}
	}
}

// ForEachRawChunk streams raw, unparsed frame bytes -- for pass-through
// indexers that never deserialize a chunk. Peak memory is bounded by one
// frame's bytes, never by the number of chunks in the file.
func ForEachRawChunk(r io.Reader, consume func(raw []byte) error) error {
	br := bufio.NewReaderSize(r, 1<<20)
	for {
		n, err := binary.ReadUvarint(br)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("codec: read frame length: %w", err)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("codec: read frame payload: %w", err)
		}
		if err := consume(buf); err != nil {
			return err
		}
	}
}

// --- MessagePack tuple encoding, field order fixed per type ---

func marshalChunk(b []byte, c model.TickDataChunk) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, 6)
	o = msgp.AppendString(o, c.RunID)
	o = msgp.AppendUint64(o, c.FirstTick)
	o = msgp.AppendUint64(o, c.LastTick)
	o = msgp.AppendUint64(o, c.TickCount)
	o = marshalTickData(o, c.Snapshot)
	o = msgp.AppendArrayHeader(o, uint32(len(c.Deltas)))
	for _, d := range c.Deltas {
		o = marshalTickDelta(o, d)
	}
	return o, nil
}

func unmarshalChunk(b []byte, filter model.FieldFilter) (model.TickDataChunk, []byte, error) {
	var c model.TickDataChunk
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return c, b, err
	}
	if sz != 6 {
		return c, b, fmt.Errorf("chunk: expected 6 fields, got %d", sz)
	}
	if c.RunID, b, err = msgp.ReadStringBytes(b); err != nil {
		return c, b, err
	}
	if c.FirstTick, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return c, b, err
	}
	if c.LastTick, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return c, b, err
	}
	if c.TickCount, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return c, b, err
	}
	if c.Snapshot, b, err = unmarshalTickData(b, filter); err != nil {
		return c, b, err
	}
	dsz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return c, b, err
	}
	if filter == model.FilterSnapshotOnly {
		// Delta bodies are parsed and discarded; c.Deltas stays nil. The
		// resume loader reads every chunk of the last batch file through
		// this branch.
		for i := uint32(0); i < dsz; i++ {
			var skipped model.TickDelta
			if skipped, b, err = unmarshalTickDelta(b, filter); err != nil {
				return c, b, err
			}
			_ = skipped
		}
		return c, b, nil
	}
	c.Deltas = make([]model.TickDelta, dsz)
	for i := uint32(0); i < dsz; i++ {
		if c.Deltas[i], b, err = unmarshalTickDelta(b, filter); err != nil {
			return c, b, err
		}
	}
	return c, b, nil
}

func marshalTickData(b []byte, t model.TickData) []byte {
	o := msgp.AppendArrayHeader(b, 9)
	o = msgp.AppendString(o, t.RunID)
	o = msgp.AppendUint64(o, t.TickNumber)
	o = msgp.AppendInt64(o, t.CaptureTimeMs)
	o = marshalCellColumns(o, t.CellColumns)
	o = marshalOrganisms(o, t.Organisms)
	o = msgp.AppendUint64(o, t.TotalOrganismsCreated)
	o = msgp.AppendUint64(o, t.TotalUniqueGenomes)
	o = marshalStringSlice(o, t.GenomeHashesEverSeen)
	o = marshalRNGAndPlugins(o, t.RNGState, t.PluginStates)
	return o
}

func unmarshalTickData(b []byte, filter model.FieldFilter) (model.TickData, []byte, error) {
	var t model.TickData
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return t, b, err
	}
	if sz != 9 {
		return t, b, fmt.Errorf("tick data: expected 9 fields, got %d", sz)
	}
	if t.RunID, b, err = msgp.ReadStringBytes(b); err != nil {
		return t, b, err
	}
	if t.TickNumber, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return t, b, err
	}
	if t.CaptureTimeMs, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return t, b, err
	}
	if filter == model.FilterOrganismsOnly {
		if b, err = skipCellColumns(b); err != nil {
			return t, b, err
		}
	} else if t.CellColumns, b, err = unmarshalCellColumns(b); err != nil {
		return t, b, err
	}
	if t.Organisms, b, err = unmarshalOrganisms(b); err != nil {
		return t, b, err
	}
	if t.TotalOrganismsCreated, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return t, b, err
	}
	if t.TotalUniqueGenomes, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return t, b, err
	}
	if t.GenomeHashesEverSeen, b, err = unmarshalStringSlice(b); err != nil {
		return t, b, err
	}
	if t.RNGState, t.PluginStates, b, err = unmarshalRNGAndPlugins(b); err != nil {
		return t, b, err
	}
	return t, b, nil
}

func marshalTickDelta(b []byte, d model.TickDelta) []byte {
	o := msgp.AppendArrayHeader(b, 10)
	o = msgp.AppendString(o, d.RunID)
	o = msgp.AppendUint64(o, d.TickNumber)
	o = msgp.AppendInt64(o, d.CaptureTimeMs)
	o = msgp.AppendUint8(o, uint8(d.DeltaType))
	o = marshalCellColumns(o, d.ChangedCells)
	o = marshalOrganisms(o, d.Organisms)
	o = msgp.AppendUint64(o, d.TotalOrganismsCreated)
	o = msgp.AppendUint64(o, d.TotalUniqueGenomes)
	o = marshalStringSlice(o, d.GenomeHashesEverSeen)
	o = marshalRNGAndPlugins(o, d.RNGState, d.PluginStates)
	return o
}

func unmarshalTickDelta(b []byte, filter model.FieldFilter) (model.TickDelta, []byte, error) {
	var d model.TickDelta
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return d, b, err
	}
	if sz != 10 {
		return d, b, fmt.Errorf("tick delta: expected 10 fields, got %d", sz)
	}
	if d.RunID, b, err = msgp.ReadStringBytes(b); err != nil {
		return d, b, err
	}
	if d.TickNumber, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return d, b, err
	}
	if d.CaptureTimeMs, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return d, b, err
	}
	dt, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return d, b, err
	}
	d.DeltaType = model.DeltaType(dt)
	if filter == model.FilterOrganismsOnly {
		if b, err = skipCellColumns(b); err != nil {
			return d, b, err
		}
	} else if d.ChangedCells, b, err = unmarshalCellColumns(b); err != nil {
		return d, b, err
	}
	if filter == model.FilterSnapshotOnly {
		if b, err = skipOrganisms(b); err != nil {
			return d, b, err
		}
	} else if d.Organisms, b, err = unmarshalOrganisms(b); err != nil {
		return d, b, err
	}
	if d.TotalOrganismsCreated, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return d, b, err
	}
	if d.TotalUniqueGenomes, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return d, b, err
	}
	if d.GenomeHashesEverSeen, b, err = unmarshalStringSlice(b); err != nil {
		return d, b, err
	}
	if d.RNGState, d.PluginStates, b, err = unmarshalRNGAndPlugins(b); err != nil {
		return d, b, err
	}
	return d, b, nil
}

func marshalCellColumns(b []byte, cc model.CellColumnBatch) []byte {
	o := msgp.AppendArrayHeader(b, 3)
	o = msgp.AppendArrayHeader(o, uint32(len(cc.FlatIndex)))
	for _, v := range cc.FlatIndex {
		o = msgp.AppendUint64(o, v)
	}
	o = msgp.AppendArrayHeader(o, uint32(len(cc.MoleculeData)))
	for _, v := range cc.MoleculeData {
		o = msgp.AppendUint32(o, v)
	}
	o = msgp.AppendArrayHeader(o, uint32(len(cc.OwnerID)))
	for _, v := range cc.OwnerID {
		o = msgp.AppendUint64(o, v)
	}
	return o
}

func unmarshalCellColumns(b []byte) (model.CellColumnBatch, []byte, error) {
	var cc model.CellColumnBatch
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return cc, b, err
	}
	if sz != 3 {
		return cc, b, fmt.Errorf("cell columns: expected 3 fields, got %d", sz)
	}
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return cc, b, err
	}
	cc.FlatIndex = make([]uint64, n)
	for i := range cc.FlatIndex {
		if cc.FlatIndex[i], b, err = msgp.ReadUint64Bytes(b); err != nil {
			return cc, b, err
		}
	}
	n, b, err = msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return cc, b, err
	}
	cc.MoleculeData = make([]uint32, n)
	for i := range cc.MoleculeData {
		if cc.MoleculeData[i], b, err = msgp.ReadUint32Bytes(b); err != nil {
			return cc, b, err
		}
	}
	n, b, err = msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return cc, b, err
	}
	cc.OwnerID = make([]uint64, n)
	for i := range cc.OwnerID {
		if cc.OwnerID[i], b, err = msgp.ReadUint64Bytes(b); err != nil {
			return cc, b, err
		}
	}
	return cc, b, nil
}

func marshalOrganisms(b []byte, orgs []model.OrganismState) []byte {
	o := msgp.AppendArrayHeader(b, uint32(len(orgs)))
	for _, org := range orgs {
		o = marshalOrganism(o, org)
	}
	return o
}

func unmarshalOrganisms(b []byte) ([]model.OrganismState, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	if n == 0 {
		return nil, b, nil
	}
	out := make([]model.OrganismState, n)
	for i := range out {
		if out[i], b, err = unmarshalOrganism(b); err != nil {
			return out, b, err
		}
	}
	return out, b, nil
}

// skipOrganisms advances past an organism array without allocating the
// decoded structs, for the snapshot-only fast path.
func skipOrganisms(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for i := uint32(0); i < n; i++ {
		var err error
		if _, b, err = unmarshalOrganism(b); err != nil {
			return b, err
		}
	}
	return b, nil
}

// skipCellColumns advances past a cell-column tuple without allocating the
// three decoded slices, for the organisms-only fast path.
func skipCellColumns(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if sz != 3 {
		return b, fmt.Errorf("cell columns: expected 3 fields, got %d", sz)
	}
	for field := 0; field < 3; field++ {
		n, rest, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return b, err
		}
		b = rest
		for i := uint32(0); i < n; i++ {
			if field == 1 {
				if _, b, err = msgp.ReadUint32Bytes(b); err != nil {
					return b, err
				}
			} else if _, b, err = msgp.ReadUint64Bytes(b); err != nil {
				return b, err
			}
		}
	}
	return b, nil
}

func marshalOrganism(b []byte, org model.OrganismState) []byte {
	o := msgp.AppendArrayHeader(b, 15)
	o = msgp.AppendUint64(o, org.ID)
	if org.ParentID != nil {
		o = msgp.AppendBool(o, true)
		o = msgp.AppendUint64(o, *org.ParentID)
	} else {
		o = msgp.AppendBool(o, false)
		o = msgp.AppendUint64(o, 0)
	}
	o = msgp.AppendUint64(o, org.BirthTick)
	o = msgp.AppendUint64(o, org.ProgramID)
	o = msgp.AppendInt64(o, org.Energy)
	o = msgp.AppendInt64(o, org.Entropy)
	o = marshalIntSlice(o, org.InstructionPointer)
	o = marshalIntSlice(o, org.Direction)
	o = msgp.AppendArrayHeader(o, uint32(len(org.DataPointers)))
	for _, p := range org.DataPointers {
		o = marshalIntSlice(o, p)
	}
	o = msgp.AppendInt64(o, int64(org.ActivePointerIndex))
	o = marshalRegisters(o, org.DataRegisters)
	o = marshalRegisters(o, org.ProcedureRegisters)
	// ParentID takes two elements (a presence flag, then the value or 0), so
	// the tuple holds 15 elements in all, the last two IsDead and GenomeHash.
	o = msgp.AppendBool(o, org.IsDead)
	o = msgp.AppendString(o, org.GenomeHash)
	return o
}

func unmarshalOrganism(b []byte) (model.OrganismState, []byte, error) {
	var org model.OrganismState
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return org, b, err
	}
	if sz != 15 {
		return org, b, fmt.Errorf("organism: expected 15 fields, got %d", sz)
	}
	if org.ID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return org, b, err
	}
	hasParent, b, err := msgp.ReadBoolBytes(b)
	if err != nil {
		return org, b, err
	}
	parentVal, b, err := msgp.ReadUint64Bytes(b)
	if err != nil {
		return org, b, err
	}
	if hasParent {
		org.ParentID = &parentVal
	}
	if org.BirthTick, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return org, b, err
	}
	if org.ProgramID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return org, b, err
	}
	if org.Energy, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return org, b, err
	}
	if org.Entropy, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return org, b, err
	}
	if org.InstructionPointer, b, err = unmarshalIntSlice(b); err != nil {
		return org, b, err
	}
	if org.Direction, b, err = unmarshalIntSlice(b); err != nil {
		return org, b, err
	}
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return org, b, err
	}
	org.DataPointers = make([][]int, n)
	for i := range org.DataPointers {
		if org.DataPointers[i], b, err = unmarshalIntSlice(b); err != nil {
			return org, b, err
		}
	}
	activeIdx, b, err := msgp.ReadInt64Bytes(b)
	if err != nil {
		return org, b, err
	}
	org.ActivePointerIndex = int(activeIdx)
	if org.DataRegisters, b, err = unmarshalRegisters(b); err != nil {
		return org, b, err
	}
	if org.ProcedureRegisters, b, err = unmarshalRegisters(b); err != nil {
		return org, b, err
	}
	if org.IsDead, b, err = msgp.ReadBoolBytes(b); err != nil {
		return org, b, err
	}
	if org.GenomeHash, b, err = msgp.ReadStringBytes(b); err != nil {
		return org, b, err
	}
	return org, b, nil
}

func marshalRegisters(b []byte, regs []model.RegisterValue) []byte {
	o := msgp.AppendArrayHeader(b, uint32(len(regs)))
	for _, r := range regs {
		o = msgp.AppendArrayHeader(o, 3)
		o = msgp.AppendInt64(o, r.Scalar)
		o = marshalIntSlice(o, r.Vector)
		o = msgp.AppendBool(o, r.IsVec)
	}
	return o
}

func unmarshalRegisters(b []byte) ([]model.RegisterValue, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	out := make([]model.RegisterValue, n)
	for i := range out {
		sz, rest, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return out, rest, err
		}
		if sz != 3 {
			return out, rest, fmt.Errorf("register: expected 3 fields, got %d", sz)
		}
		b = rest
		if out[i].Scalar, b, err = msgp.ReadInt64Bytes(b); err != nil {
			return out, b, err
		}
		if out[i].Vector, b, err = unmarshalIntSlice(b); err != nil {
			return out, b, err
		}
		if out[i].IsVec, b, err = msgp.ReadBoolBytes(b); err != nil {
			return out, b, err
		}
	}
	return out, b, nil
}

func marshalIntSlice(b []byte, s []int) []byte {
	o := msgp.AppendArrayHeader(b, uint32(len(s)))
	for _, v := range s {
		o = msgp.AppendInt64(o, int64(v))
	}
	return o
}

func unmarshalIntSlice(b []byte) ([]int, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	out := make([]int, n)
	for i := range out {
		var v int64
		if v, b, err = msgp.ReadInt64Bytes(b); err != nil {
			return out, b, err
		}
		out[i] = int(v)
	}
	return out, b, nil
}

func marshalStringSlice(b []byte, s []string) []byte {
	o := msgp.AppendArrayHeader(b, uint32(len(s)))
	for _, v := range s {
		o = msgp.AppendString(o, v)
	}
	return o
}

func unmarshalStringSlice(b []byte) ([]string, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	if n == 0 {
		return nil, b, nil
	}
	out := make([]string, n)
	for i := range out {
		if out[i], b, err = msgp.ReadStringBytes(b); err != nil {
			return out, b, err
		}
	}
	return out, b, nil
}

func marshalRNGAndPlugins(b []byte, rng []byte, plugins map[string][]byte) []byte {
	o := msgp.AppendArrayHeader(b, 2)
	o = msgp.AppendBytes(o, rng)
	o = msgp.AppendMapHeader(o, uint32(len(plugins)))
	for k, v := range plugins {
		o = msgp.AppendString(o, k)
		o = msgp.AppendBytes(o, v)
	}
	return o
}

func unmarshalRNGAndPlugins(b []byte) ([]byte, map[string][]byte, []byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, nil, b, err
	}
	if sz != 2 {
		return nil, nil, b, fmt.Errorf("rng/plugins: expected 2 fields, got %d", sz)
	}
	rng, b, err := msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return nil, nil, b, err
	}
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, nil, b, err
	}
	var plugins map[string][]byte
	if n > 0 {
		plugins = make(map[string][]byte, n)
	}
	for i := uint32(0); i < n; i++ {
		var key string
		var val []byte
		if key, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, nil, b, err
		}
		if val, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
			return nil, nil, b, err
		}
		plugins[key] = val
	}
	return rng, plugins, b, nil
}
