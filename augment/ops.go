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
	"bytes"
	"image"
	"image/color"
	"math"
	"math/rand"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Convolution kernels interpolated by Sharpen and Emboss: the applied kernel
// is (1-m)*identity + m*effect, so magnitude 0 is the identity.
var (
	kernelIdentity = [9]float64{
		0, 0, 0,
		0, 1, 0,
		0, 0, 0}
	kernelSharpen = [9]float64{
		-1, -1, -1,
		-1, 9, -1,
		-1, -1, -1}
	kernelEmboss = [9]float64{
		-2, -1, 0,
		-1, 1, 1,
		0, 1, 2}
)

// ApplyOp applies a single operation to img with the given magnitude(s) and
// returns the transformed copy. The input image is never modified.
//
// Flag operations (AutoContrast, Equalize, Grayscale) take no magnitude, Tone
// takes two, every other operation takes exactly one. Noise draws its random
// values from a time-seeded source; use Augmenter.Apply with a fixed seed for
// reproducible noise.
func ApplyOp(img image.Image, op Op, magnitudes ...float64) (*image.NRGBA, error) {
	if op < 0 || op >= numOps {
		return nil, errors.Errorf("operation %d is not supported", op)
	}
	if img == nil {
		return nil, errors.Errorf("cannot apply operation %q to a nil image", op)
	}
	info := opTable[op]
	want := 1
	if info.flag {
		want = 0
	} else if info.twoMagnitudes {
		want = 2
	}
	if len(magnitudes) != want {
		return nil, errors.Errorf("operation %q takes %d magnitude(s), got %d", op, want, len(magnitudes))
	}
	var m0, m1 float64
	if len(magnitudes) > 0 {
		m0 = magnitudes[0]
	}
	if len(magnitudes) > 1 {
		m1 = magnitudes[1]
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return op.apply(imaging.Clone(img), m0, m1, rng), nil
}

// apply dispatches to the operation implementation. src is owned by the
// caller and must be a freshly cloned NRGBA buffer; implementations may
// return a new buffer or an in-place transformed src.
func (op Op) apply(src *image.NRGBA, m0, m1 float64, rng *rand.Rand) *image.NRGBA {
	switch op {
	case Red:
		return scaleChannel(src, m0, 0)
	case Green:
		return scaleChannel(src, m0, 1)
	case Blue:
		return scaleChannel(src, m0, 2)
	case Hue:
		return rotateHue(src, m0)
	case Saturation:
		if p := clampPercentage((m0 - 1) * 100); p != 0 {
			return imaging.AdjustSaturation(src, p)
		}
		return src
	case Brightness:
		return scaleBrightness(src, m0)
	case Contrast:
		if p := clampPercentage((m0 - 1) * 100); p != 0 {
			return imaging.AdjustContrast(src, p)
		}
		return src
	case Gamma:
		return applyLUT(src, gammaLUT(m0))
	case Solarize:
		return applyLUT(src, solarizeLUT(int(math.Round(m0))))
	case Posterize:
		return applyLUT(src, posterizeLUT(int(math.Round(m0))))
	case Sharpen:
		return convolveBlend(src, m0, kernelSharpen)
	case Emboss:
		return convolveBlend(src, m0, kernelEmboss)
	case Blur:
		if m0 <= 0 {
			return src
		}
		return imaging.Blur(src, m0)
	case Noise:
		return addNoise(src, m0, rng)
	case JPEG:
		return jpegRoundTrip(src, int(math.Round(m0)))
	case Tone:
		return applyLUT(src, toneLUT(m0, m1))
	case AutoContrast:
		return autoContrast(src)
	case Equalize:
		return equalize(src)
	case Grayscale:
		return imaging.Grayscale(src)
	}
	exceptions.Panicf("augment: operation %d is not supported", op)
	return nil
}

func clamp8(v float64) uint8 {
	if v >= 255 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(v + 0.5)
}

func clampPercentage(p float64) float64 {
	return math.Max(-100, math.Min(100, p))
}

// scaleChannel multiplies one of the RGB channels by factor.
func scaleChannel(src *image.NRGBA, factor float64, channel int) *image.NRGBA {
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		switch channel {
		case 0:
			c.R = clamp8(float64(c.R) * factor)
		case 1:
			c.G = clamp8(float64(c.G) * factor)
		case 2:
			c.B = clamp8(float64(c.B) * factor)
		}
		return c
	})
}

// scaleBrightness multiplies all RGB channels by factor: 0 is black, 1 is the
// identity.
func scaleBrightness(src *image.NRGBA, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		c.R = clamp8(float64(c.R) * factor)
		c.G = clamp8(float64(c.G) * factor)
		c.B = clamp8(float64(c.B) * factor)
		return c
	})
}

// rotateHue shifts the hue of every pixel by shift (in [-0.5, 0.5], a
// fraction of a full turn). A zero shift is skipped entirely: the HSV
// round-trip is not exactly lossless.
func rotateHue(src *image.NRGBA, shift float64) *image.NRGBA {
	if shift == 0 {
		return src
	}
	degrees := shift * 360
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		h, s, v := rgbToHSV(c.R, c.G, c.B)
		h = math.Mod(h+degrees+360, 360)
		c.R, c.G, c.B = hsvToRGB(h, s, v)
		return c
	})
}

func rgbToHSV(r8, g8, b8 uint8) (h, s, v float64) {
	r, g, b := float64(r8)/255, float64(g8)/255, float64(b8)/255
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	v = maxC
	delta := maxC - minC
	if delta == 0 {
		return 0, 0, v
	}
	s = delta / maxC
	switch maxC {
	case r:
		h = math.Mod((g-b)/delta, 6)
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func hsvToRGB(h, s, v float64) (r8, g8, b8 uint8) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return clamp8((r + m) * 255), clamp8((g + m) * 255), clamp8((b + m) * 255)
}

// applyLUT remaps the RGB channels through a 256-entry lookup table, leaving
// alpha untouched.
func applyLUT(src *image.NRGBA, lut *[256]uint8) *image.NRGBA {
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		c.R, c.G, c.B = lut[c.R], lut[c.G], lut[c.B]
		return c
	})
}

// gammaLUT maps x to x^gamma (on the [0, 1] scale), so gamma 1 is the
// identity, gamma 0 maps everything to white.
func gammaLUT(gamma float64) *[256]uint8 {
	var lut [256]uint8
	for i := range lut {
		lut[i] = clamp8(math.Pow(float64(i)/255, gamma) * 255)
	}
	return &lut
}

// solarizeLUT inverts every value at or above the threshold. Threshold 256
// is the identity.
func solarizeLUT(threshold int) *[256]uint8 {
	var lut [256]uint8
	for i := range lut {
		if i < threshold {
			lut[i] = uint8(i)
		} else {
			lut[i] = uint8(255 - i)
		}
	}
	return &lut
}

// posterizeLUT keeps only the top `bits` bits of each channel. 8 bits is the
// identity.
func posterizeLUT(bits int) *[256]uint8 {
	if bits < 1 {
		bits = 1
	} else if bits > 8 {
		bits = 8
	}
	mask := uint8(0xFF) << (8 - uint(bits))
	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(i) & mask
	}
	return &lut
}

// toneLUT remaps values through a cubic Bezier curve with control points m0
// and m1, the classic "tone curve" adjustment.
func toneLUT(m0, m1 float64) *[256]uint8 {
	var lut [256]uint8
	for i := range lut {
		t := float64(i) / 255
		bez := 3*(1-t)*(1-t)*t*m0 + 3*(1-t)*t*t*m1 + t*t*t
		lut[i] = clamp8(math.Round(bez * 255))
	}
	return &lut
}

// convolveBlend convolves with (1-m)*identity + m*kernel. The kernels used
// here sum to 1, so no normalization is needed.
func convolveBlend(src *image.NRGBA, m float64, kernel [9]float64) *image.NRGBA {
	var blended [9]float64
	for i := range blended {
		blended[i] = (1-m)*kernelIdentity[i] + m*kernel[i]
	}
	return imaging.Convolve3x3(src, blended, nil)
}

// addNoise blends uniform noise into the image: each pixel gets one noise
// value shared across its RGB channels, weighted by m.
func addNoise(src *image.NRGBA, m float64, rng *rand.Rand) *image.NRGBA {
	if m <= 0 {
		return src
	}
	width := src.Rect.Dx()
	height := src.Rect.Dy()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := src.PixOffset(src.Rect.Min.X+x, src.Rect.Min.Y+y)
			n := float64(rng.Intn(256))
			for c := 0; c < 3; c++ {
				src.Pix[i+c] = clamp8(float64(src.Pix[i+c])*(1-m) + n*m)
			}
		}
	}
	return src
}

// jpegRoundTrip re-encodes the image as JPEG at the given quality and decodes
// it back, introducing the corresponding compression artifacts.
func jpegRoundTrip(src *image.NRGBA, quality int) *image.NRGBA {
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		exceptions.Panicf("augment: failed to JPEG-encode image: %v", err)
	}
	decoded, err := imaging.Decode(&buf)
	if err != nil {
		exceptions.Panicf("augment: failed to decode JPEG-compressed image: %v", err)
	}
	return imaging.Clone(decoded)
}

// autoContrast stretches each RGB channel linearly to cover the full [0, 255]
// range.
func autoContrast(src *image.NRGBA) *image.NRGBA {
	dst := imaging.Clone(src)
	for c := 0; c < 3; c++ {
		lo, hi := 255, 0
		forEachPixel(dst, func(i int) {
			v := int(dst.Pix[i+c])
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		})
		if hi <= lo {
			continue
		}
		scale := 255 / float64(hi-lo)
		var lut [256]uint8
		for i := range lut {
			lut[i] = clamp8(float64(i-lo) * scale)
		}
		forEachPixel(dst, func(i int) {
			dst.Pix[i+c] = lut[dst.Pix[i+c]]
		})
	}
	return dst
}

// equalize applies histogram equalization to each RGB channel independently.
func equalize(src *image.NRGBA) *image.NRGBA {
	dst := imaging.Clone(src)
	numPixels := dst.Rect.Dx() * dst.Rect.Dy()
	if numPixels == 0 {
		return dst
	}
	for c := 0; c < 3; c++ {
		var histogram [256]int
		forEachPixel(dst, func(i int) {
			histogram[dst.Pix[i+c]]++
		})
		var cdf [256]int
		sum := 0
		for i, count := range histogram {
			sum += count
			cdf[i] = sum
		}
		cdfMin := 0
		for _, v := range cdf {
			if v > 0 {
				cdfMin = v
				break
			}
		}
		if numPixels == cdfMin {
			// Uniform channel, nothing to equalize.
			continue
		}
		var lut [256]uint8
		for i := range lut {
			lut[i] = clamp8(math.Round(float64(cdf[i]-cdfMin) / float64(numPixels-cdfMin) * 255))
		}
		forEachPixel(dst, func(i int) {
			dst.Pix[i+c] = lut[dst.Pix[i+c]]
		})
	}
	return dst
}

// forEachPixel calls fn with the Pix offset of every pixel of img.
func forEachPixel(img *image.NRGBA, fn func(i int)) {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fn(img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y))
		}
	}
}
