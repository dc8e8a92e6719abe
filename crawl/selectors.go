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


package crawl

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/poiesic/imagerank/core"
)

// DefaultSearchURL is the image search endpoint.
const DefaultSearchURL = "https://www.google.com/search"

// Selectors locate the parts of the search results page the crawler reads.
// All values are CSS selectors.
type Selectors struct {
	// Results is the container that signals the results have rendered.
	Results string
	// Result matches one image result element.
	Result string
	// Preview matches the full-size preview image shown after activating a result.
	Preview string
	// SourceLink matches the attribution links of the preview panel.
	SourceLink string
	// SourceLinkIndex picks the attributed source page among SourceLink matches.
	SourceLinkIndex int
}

// DefaultSelectors returns the selectors for the Google Images layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Results:         `div[data-id="mosaic"]`,
		Result:          `div[data-attrid="images universal"]`,
		Preview:         `img.sFlh5c.FyHeAf.iPVvYb[jsaction]`,
		SourceLink:      `div[jsname="figiqf"] > a[class="YsLeY"]`,
		SourceLinkIndex: 1,
	}
}

// buildSearchURL returns the image search URL for query.
func buildSearchURL(base, query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("tbm", "isch")
	return base + "?" + params.Encode()
}

// extractSourceURL reads the attributed source page from a DOM snapshot.
// Returns core.SourceUnavailable if the link is absent.
func extractSourceURL(html string, sel Selectors) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return core.SourceUnavailable
	}
	href, ok := doc.Find(sel.SourceLink).Eq(sel.SourceLinkIndex).Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return core.SourceUnavailable
	}
	return href
}
