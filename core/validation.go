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

import (
	"fmt"
	"math"
)

// ValidateCandidate validates a Candidate according to domain rules.
//
// Validation rules:
//   - ImageFile must not be empty
//   - SimilarityScore, when present, must lie in [0,1]
//
// NOT validated:
//   - Description (alt text may legitimately be empty)
//   - SourceURL (SourceUnavailable is a valid value)
func ValidateCandidate(candidate *Candidate) error {
	if candidate == nil {
		return fmt.Errorf("%w: candidate is nil", ErrInvalidCandidate)
	}
	if candidate.ImageFile == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCandidate, ErrEmptyImageFile)
	}
	if candidate.SimilarityScore != nil && !IsValidScore(*candidate.SimilarityScore) {
		return fmt.Errorf("%w: %w: %v", ErrInvalidCandidate, ErrScoreOutOfRange, *candidate.SimilarityScore)
	}
	return nil
}

// IsValidScore checks that a score is a finite value in [0,1].
func IsValidScore(score float64) bool {
	return !math.IsNaN(score) && score >= 0 && score <= 1
}
