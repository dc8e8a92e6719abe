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
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	// ImagePrefix is the reserved filename prefix for images owned by the pipeline.
	ImagePrefix = "image_"

	// ImageExtension is the extension of the canonical stored image format.
	ImageExtension = ".jpg"
)

// reservedName matches "image_<n>" optionally followed by an extension or a
// temporary-file suffix. Anything else in the image directory is left alone.
var reservedName = regexp.MustCompile(`^image_[0-9]+(\..*)?$`)

// ImageStemName returns the extensionless filename for the given ordinal.
func ImageStemName(index int) string {
	return ImagePrefix + strconv.Itoa(index)
}

// ImageFileName returns the canonical filename for the given ordinal.
func ImageFileName(index int) string {
	return ImageStemName(index) + ImageExtension
}

// IsReservedName reports whether a base filename belongs to the pipeline.
func IsReservedName(name string) bool {
	return reservedName.MatchString(name)
}

// ExtractDomain returns the host of rawURL with a single leading "www." removed.
// An unparseable or host-less URL yields "".
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
