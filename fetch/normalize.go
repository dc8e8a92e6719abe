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


package fetch

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	// Decoders for every format a search engine may serve
	_ "image/gif"
	_ "image/png"

	_ "github.com/gen2brain/avif"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// decode reads an image in any registered format.
func decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, format, nil
}

// needsRGB reports whether img must be flattened before JPEG encoding:
// palette based images, and any image that is not fully opaque.
func needsRGB(img image.Image) bool {
	if _, paletted := img.ColorModel().(color.Palette); paletted {
		return true
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}

// toRGB drops the alpha channel, keeping the straight (non-premultiplied)
// color values of every pixel.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

// downscale limits the longer edge to maxDimension, keeping the aspect ratio.
// A zero maxDimension disables scaling.
func downscale(img image.Image, maxDimension uint) image.Image {
	if maxDimension == 0 {
		return img
	}
	bounds := img.Bounds()
	width, height := uint(bounds.Dx()), uint(bounds.Dy())
	if width <= maxDimension && height <= maxDimension {
		return img
	}
	if width >= height {
		return resize.Resize(maxDimension, 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, maxDimension, img, resize.Lanczos3)
}

// normalize converts img to the canonical JPEG encoding.
func normalize(img image.Image, quality int, maxDimension uint) ([]byte, image.Image, error) {
	if needsRGB(img) {
		img = toRGB(img)
	}
	img = downscale(img, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), img, nil
}
