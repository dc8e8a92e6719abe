package core

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

// SourceUnavailable is recorded when a result carries no attributed source page.
const SourceUnavailable = "N/A"

// Digest is a content hash of a stored image.
type Digest uint64

// DigestBytes generates a deterministic digest from raw bytes using BLAKE2b hashing.
// Identical images produce identical digests.
func DigestBytes(data []byte) Digest {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return Digest(binary.LittleEndian.Uint64(sum))
}

// Candidate is one discovered image result together with its provenance.
// The JSON field names form the on-disk metadata document format.
type Candidate struct {
	Index       int    `json:"index,omitempty"`   // Crawl ordinal (1-based), determines the stored filename
	Description string `json:"image_description"` // Alt text captured at crawl time
	SourceURL   string `json:"source_url"`        // Page hosting the image, or SourceUnavailable
	SourceName  string `json:"source_name"`       // Domain derived from SourceURL
	ImageFile   string `json:"image_file"`        // Path of the normalized image on disk

	// Populated by ranking
	GeneratedDescription string   `json:"ai_description,omitempty"`
	SimilarityScore      *float64 `json:"similarity_score,omitempty"`
}

// Score returns the similarity score, or 0 if the candidate has not been ranked.
func (c *Candidate) Score() float64 {
	if c.SimilarityScore == nil {
		return 0
	}
	return *c.SimilarityScore
}

// Ranked reports whether a ranking pass has scored the candidate.
func (c *Candidate) Ranked() bool {
	return c.SimilarityScore != nil
}

// SetScore records the similarity score.
func (c *Candidate) SetScore(score float64) {
	c.SimilarityScore = &score
}
