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

// BatchInfo is a pointer into the object store: a file containing one or
// more chunks serialized back-to-back in length-delimited framing.
type BatchInfo struct {
	StoragePath string
	TickStart   uint64
	TickEnd     uint64
}

// ID is the idempotency key for a batch. Per DESIGN.md's resolution of the
// spec's open question, the storage path is canonical.
func (b BatchInfo) ID() string { return b.StoragePath }
