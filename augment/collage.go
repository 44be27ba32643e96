/*
 *	Copyright 2024 The StrongAugment Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package augment

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Collage renders a rows x cols grid of independently augmented variants of
// img, for visual inspection of an augmentation space. Every cell has the
// dimensions of the source image, so the result is cols*width by
// rows*height.
func Collage(img image.Image, aug *Augmenter, rows, cols int) (image.Image, error) {
	if aug == nil {
		return nil, errors.Errorf("augmenter must not be nil")
	}
	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("collage grid must be positive, got %dx%d", rows, cols)
	}
	if img == nil {
		return nil, errors.Errorf("cannot render a collage of a nil image")
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot render a collage of an empty %dx%d image", width, height)
	}

	grid := imaging.New(cols*width, rows*height, color.NRGBA{A: 0xFF})
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cell := aug.Apply(img)
			grid = imaging.Paste(grid, cell, image.Pt(col*width, row*height))
		}
	}
	return grid, nil
}
