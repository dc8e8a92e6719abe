// Copyright 2025 Poiesic Systems
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


// Package storage provides the asset storage abstraction for imagerank.
//
// An asset store owns two things jointly: a directory of normalized candidate
// images and a flat JSON metadata document describing them. The document is
// the system of record; there is no database.
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.AssetStore interface:
//
//	store, err := disk.NewStore(imageDir, metadataPath)  // returns storage.AssetStore
//
// so that crawl and ranking code never couples to the on-disk layout.
//
// # Reserved Names
//
// Only files matching the reserved naming pattern (see core.IsReservedName)
// are ever deleted. Other assets may share the image directory.
//
// # Thread Safety
//
// Implementations serialize writers inside a single process. Nothing guards
// against a second process writing the same directory.
package storage
