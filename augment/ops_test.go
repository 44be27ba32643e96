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
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// testImage builds a deterministic gradient image with varied values on all
// channels.
func testImage(width, height int) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{A: 0xFF})
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 13) % 256),
				B: uint8((x*3 + y*5) % 256),
				A: 0xFF,
			})
		}
	}
	return img
}

func requireSameImage(t *testing.T, want, got image.Image, msgAndArgs ...any) {
	t.Helper()
	require.Equal(t, want.Bounds().Size(), got.Bounds().Size(), msgAndArgs...)
	require.Equal(t, imaging.Clone(want).Pix, imaging.Clone(got).Pix, msgAndArgs...)
}

func TestApplyOpIdentities(t *testing.T) {
	img := testImage(32, 24)
	identities := []struct {
		op        Op
		magnitude float64
	}{
		{Red, 1.0},
		{Green, 1.0},
		{Blue, 1.0},
		{Hue, 0.0},
		{Saturation, 1.0},
		{Brightness, 1.0},
		{Contrast, 1.0},
		{Gamma, 1.0},
		{Solarize, 256},
		{Posterize, 8},
		{Sharpen, 0.0},
		{Emboss, 0.0},
		{Blur, 0.0},
		{Noise, 0.0},
	}
	for _, test := range identities {
		t.Run(fmt.Sprintf("%s=%g", test.op, test.magnitude), func(t *testing.T) {
			got, err := ApplyOp(img, test.op, test.magnitude)
			require.NoError(t, err)
			requireSameImage(t, img, got)
		})
	}
}

func TestApplyOpZeroMagnitudes(t *testing.T) {
	img := testImage(32, 24)

	red, err := ApplyOp(img, Red, 0.0)
	require.NoError(t, err)
	forEachPixel(red, func(i int) {
		require.Zero(t, red.Pix[i])
	})

	black, err := ApplyOp(img, Brightness, 0.0)
	require.NoError(t, err)
	forEachPixel(black, func(i int) {
		require.Zero(t, black.Pix[i])
		require.Zero(t, black.Pix[i+1])
		require.Zero(t, black.Pix[i+2])
	})

	// Gamma 0 maps every value to white.
	white, err := ApplyOp(img, Gamma, 0.0)
	require.NoError(t, err)
	forEachPixel(white, func(i int) {
		require.EqualValues(t, 255, white.Pix[i])
		require.EqualValues(t, 255, white.Pix[i+1])
		require.EqualValues(t, 255, white.Pix[i+2])
	})
}

func TestApplyOpPreservesDimensions(t *testing.T) {
	img := testImage(37, 23) // Odd sizes on purpose.
	magnitudes := map[Op][]float64{
		Red:          {1.7},
		Green:        {0.4},
		Blue:         {1.2},
		Hue:          {0.25},
		Saturation:   {1.5},
		Brightness:   {0.6},
		Contrast:     {1.8},
		Gamma:        {0.5},
		Solarize:     {128},
		Posterize:    {3},
		Sharpen:      {0.8},
		Emboss:       {0.5},
		Blur:         {2.0},
		Noise:        {0.15},
		JPEG:         {10},
		Tone:         {0.2, 0.9},
		AutoContrast: {},
		Equalize:     {},
		Grayscale:    {},
	}
	require.Len(t, magnitudes, int(numOps))
	for op, m := range magnitudes {
		got, err := ApplyOp(img, op, m...)
		require.NoErrorf(t, err, "operation %s", op)
		require.Equalf(t, img.Bounds().Size(), got.Bounds().Size(), "operation %s changed dimensions", op)
	}
}

func TestApplyOpDoesNotMutateInput(t *testing.T) {
	img := testImage(16, 16)
	before := append([]uint8(nil), img.Pix...)
	for _, op := range []Op{Brightness, Blur, Noise, Equalize, Grayscale} {
		var m []float64
		if !opTable[op].flag {
			m = []float64{0.5}
		}
		_, err := ApplyOp(img, op, m...)
		require.NoError(t, err)
		require.Equalf(t, before, img.Pix, "operation %s mutated its input", op)
	}
}

func TestApplyOpGrayscale(t *testing.T) {
	got, err := ApplyOp(testImage(16, 16), Grayscale)
	require.NoError(t, err)
	forEachPixel(got, func(i int) {
		require.Equal(t, got.Pix[i], got.Pix[i+1])
		require.Equal(t, got.Pix[i+1], got.Pix[i+2])
	})
}

func TestApplyOpSolarize(t *testing.T) {
	img := testImage(16, 16)
	got, err := ApplyOp(img, Solarize, 128)
	require.NoError(t, err)
	forEachPixel(img, func(i int) {
		for c := 0; c < 3; c++ {
			in := img.Pix[i+c]
			want := in
			if in >= 128 {
				want = 255 - in
			}
			require.Equal(t, want, got.Pix[i+c])
		}
	})
}

func TestApplyOpAutoContrastStretches(t *testing.T) {
	// Narrow-range image: every channel within [100, 150].
	img := imaging.New(16, 16, color.NRGBA{A: 0xFF})
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := uint8(100 + (x+y)*50/30)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 0xFF})
		}
	}
	got, err := ApplyOp(img, AutoContrast)
	require.NoError(t, err)
	lo, hi := 255, 0
	forEachPixel(got, func(i int) {
		v := int(got.Pix[i])
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	})
	require.Equal(t, 0, lo, "autocontrast should stretch the minimum to 0")
	require.Equal(t, 255, hi, "autocontrast should stretch the maximum to 255")
}

func TestApplyOpWrongArity(t *testing.T) {
	img := testImage(8, 8)
	_, err := ApplyOp(img, AutoContrast, 1.0)
	require.Error(t, err)
	_, err = ApplyOp(img, Tone, 0.5)
	require.Error(t, err)
	_, err = ApplyOp(img, Brightness)
	require.Error(t, err)
	_, err = ApplyOp(nil, Brightness, 1.0)
	require.Error(t, err)
}
