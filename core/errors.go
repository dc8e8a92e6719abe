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


package core

import "errors"

// Pipeline errors
var (
	// ErrFetchFailure indicates an image could not be retrieved and normalized
	// after exhausting all attempts. Callers skip the candidate.
	ErrFetchFailure = errors.New("image fetch failed")

	// ErrCrawlTimeout indicates the search results never materialized within
	// the bounded wait. It is fatal to a crawl invocation.
	ErrCrawlTimeout = errors.New("timed out waiting for search results")

	// ErrCorruptMetadata indicates the metadata document is missing or is not
	// a well-formed, crawl-produced candidate list.
	ErrCorruptMetadata = errors.New("corrupt metadata document")

	// ErrJudgmentParse indicates an LLM relevance reply was not a numeric literal.
	ErrJudgmentParse = errors.New("unparseable relevance judgment")
)

// Domain validation errors
var (
	// ErrInvalidCandidate indicates a Candidate failed validation.
	ErrInvalidCandidate = errors.New("invalid candidate")

	// ErrEmptyImageFile indicates the ImageFile field is empty.
	ErrEmptyImageFile = errors.New("image file cannot be empty")

	// ErrScoreOutOfRange indicates a similarity score outside [0,1].
	ErrScoreOutOfRange = errors.New("similarity score must be between 0 and 1")
)
