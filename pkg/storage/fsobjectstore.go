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

package storage

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evochora/telemetry/pkg/codec"
	"github.com/evochora/telemetry/pkg/model"
)

// FSObjectStore is an ObjectStore backed by a local (or NFS-mounted)
// directory tree. It is the reference implementation the rest of the
// module is exercised against; a production deployment is expected to swap
// in an S3/GCS-backed ObjectStore behind the same interface.
type FSObjectStore struct {
	root string
	pb   PathBuilder
}

// NewFSObjectStore roots an object store at dir, using pb to compute batch
// paths.
func NewFSObjectStore(dir string, pb PathBuilder) *FSObjectStore {
	return &FSObjectStore{root: dir, pb: pb}
}

func (s *FSObjectStore) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// FindMetadataPath returns the path a run's metadata blob would live at.
func (s *FSObjectStore) FindMetadataPath(runID string) string {
	return s.pb.MetadataPath(runID)
}

// ReadMessage reads and returns the full contents of the blob at path.
func (s *FSObjectStore) ReadMessage(path string) ([]byte, error) {
	b, err := os.ReadFile(s.abs(path))
	if err != nil {
		return nil, fmt.Errorf("fsobjectstore: read %s: %w", path, err)
	}
	return b, nil
}

// WriteMessage writes b to path, creating parent directories as needed.
func (s *FSObjectStore) WriteMessage(path string, b []byte) error {
	full := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("fsobjectstore: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, b, 0o644); err != nil {
		return fmt.Errorf("fsobjectstore: write %s: %w", path, err)
	}
	return nil
}

// FindLastBatchFile walks the run's raw-data prefix and returns the
// lexically greatest batch file path.
func (s *FSObjectStore) FindLastBatchFile(runID string) (string, bool, error) {
	prefix := s.pb.RawPrefix(runID)
	root := s.abs(prefix)
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".pb") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("fsobjectstore: walk %s: %w", prefix, err)
	}
	if len(paths) == 0 {
		return "", false, nil
	}
	sort.Strings(paths)
	return paths[len(paths)-1], true, nil
}

// ForEachChunk streams the batch file at path chunk-by-chunk.
func (s *FSObjectStore) ForEachChunk(path string, filter model.FieldFilter, consume func(model.TickDataChunk) error) error {
	f, err := os.Open(s.abs(path))
	if err != nil {
		return fmt.Errorf("fsobjectstore: open %s: %w", path, err)
	}
	defer f.Close()
	return codec.ForEachChunk(bufio.NewReaderSize(f, 1<<20), filter, consume)
}

// ForEachRawChunk streams raw frame bytes from the batch file at path
// without ever deserializing a chunk.
func (s *FSObjectStore) ForEachRawChunk(path string, consume func(raw []byte) error) error {
	f, err := os.Open(s.abs(path))
	if err != nil {
		return fmt.Errorf("fsobjectstore: open %s: %w", path, err)
	}
	defer f.Close()
	return codec.ForEachRawChunk(bufio.NewReaderSize(f, 1<<20), consume)
}

// WriteChunkBatch serializes chunks back-to-back and writes them as one
// blob at the path the PathBuilder computes for [firstTick, lastTick].
func (s *FSObjectStore) WriteChunkBatch(runID string, firstTick, lastTick uint64, chunks []model.TickDataChunk) (string, error) {
	path := s.pb.BatchPath(runID, firstTick, lastTick)
	full := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("fsobjectstore: mkdir for %s: %w", path, err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("fsobjectstore: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 1<<20)
	for _, chunk := range chunks {
		if err := codec.WriteChunk(w, chunk); err != nil {
			return "", fmt.Errorf("fsobjectstore: write chunk into %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("fsobjectstore: flush %s: %w", path, err)
	}
	return path, nil
}
