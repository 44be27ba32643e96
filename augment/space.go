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
	"math"

	"github.com/pkg/errors"
)

// Op identifies one of the supported image operations.
type Op int

const (
	Red Op = iota
	Green
	Blue
	Hue
	Saturation
	Brightness
	Contrast
	Gamma
	Solarize
	Posterize
	Sharpen
	Emboss
	Blur
	Noise
	JPEG
	Tone
	AutoContrast
	Equalize
	Grayscale

	numOps
)

// opInfo holds static metadata about an operation: how its magnitude is
// sampled and which bounds are legal for it.
type opInfo struct {
	name string

	// flag operations take no magnitude (e.g. AutoContrast).
	flag bool

	// integral operations sample integer magnitudes (e.g. Posterize).
	integral bool

	// twoMagnitudes operations sample two values from the same bounds (Tone).
	twoMagnitudes bool

	// Legal range for the bounds themselves.
	minLow, maxHigh float64
}

var opTable = [numOps]opInfo{
	Red:          {name: "red", minLow: 0, maxHigh: math.Inf(1)},
	Green:        {name: "green", minLow: 0, maxHigh: math.Inf(1)},
	Blue:         {name: "blue", minLow: 0, maxHigh: math.Inf(1)},
	Hue:          {name: "hue", minLow: -0.5, maxHigh: 0.5},
	Saturation:   {name: "saturation", minLow: 0, maxHigh: math.Inf(1)},
	Brightness:   {name: "brightness", minLow: 0, maxHigh: math.Inf(1)},
	Contrast:     {name: "contrast", minLow: 0, maxHigh: math.Inf(1)},
	Gamma:        {name: "gamma", minLow: 0, maxHigh: math.Inf(1)},
	Solarize:     {name: "solarize", integral: true, minLow: 0, maxHigh: 256},
	Posterize:    {name: "posterize", integral: true, minLow: 1, maxHigh: 8},
	Sharpen:      {name: "sharpen", minLow: 0, maxHigh: math.Inf(1)},
	Emboss:       {name: "emboss", minLow: 0, maxHigh: math.Inf(1)},
	Blur:         {name: "blur", minLow: 0, maxHigh: math.Inf(1)},
	Noise:        {name: "noise", minLow: 0, maxHigh: math.Inf(1)},
	JPEG:         {name: "jpeg", integral: true, minLow: 0, maxHigh: 100},
	Tone:         {name: "tone", twoMagnitudes: true, minLow: 0, maxHigh: 1},
	AutoContrast: {name: "autocontrast", flag: true},
	Equalize:     {name: "equalize", flag: true},
	Grayscale:    {name: "grayscale", flag: true},
}

// String implements fmt.Stringer.
func (op Op) String() string {
	if op < 0 || op >= numOps {
		return "invalid"
	}
	return opTable[op].name
}

// Bounds is the inclusive range a magnitude is sampled from. A degenerate
// range (Low == High) always samples the constant.
type Bounds struct {
	Low, High float64
}

// Space is the pool of candidate operations an Augmenter samples from, with
// the magnitude bounds of each. It is built with NewSpace (or DefaultSpace)
// and the chained Set/Enable calls, and is read-only once handed to
// Config.WithSpace, so it can be shared across parallel workers.
type Space struct {
	ops    []Op
	bounds map[Op]Bounds
	err    error // First configuration error, surfaced by Check.
}

// NewSpace returns an empty operation space. Use Set and Enable to populate
// it.
func NewSpace() *Space {
	return &Space{bounds: make(map[Op]Bounds)}
}

// DefaultSpace returns the default augmentation space: every supported
// operation with its canonical magnitude bounds.
func DefaultSpace() *Space {
	return NewSpace().
		Set(Red, 0.0, 2.0).
		Set(Green, 0.0, 2.0).
		Set(Blue, 0.0, 2.0).
		Set(Hue, -0.5, 0.5).
		Set(Saturation, 0.0, 2.0).
		Set(Brightness, 0.1, 2.0).
		Set(Contrast, 0.1, 2.0).
		Set(Gamma, 0.1, 2.0).
		Set(Solarize, 0, 255).
		Set(Posterize, 1, 8).
		Set(Sharpen, 0.0, 1.0).
		Set(Emboss, 0.0, 1.0).
		Set(Blur, 0.0, 3.0).
		Set(Noise, 0.0, 0.2).
		Set(JPEG, 0, 100).
		Set(Tone, 0.0, 1.0).
		Enable(AutoContrast).
		Enable(Equalize).
		Enable(Grayscale)
}

// Set adds op to the space with the given magnitude bounds, replacing any
// previous bounds for the same operation. Invalid bounds are reported by
// Check (and by Config.Done).
//
// It returns the updated Space, so calls can be cascaded.
func (s *Space) Set(op Op, low, high float64) *Space {
	if err := checkBounds(op, low, high); err != nil {
		if s.err == nil {
			s.err = err
		}
		return s
	}
	if _, found := s.bounds[op]; !found {
		s.ops = append(s.ops, op)
	}
	s.bounds[op] = Bounds{Low: low, High: high}
	return s
}

// Enable adds a flag operation (AutoContrast, Equalize or Grayscale) to the
// space. Flag operations take no magnitude.
//
// It returns the updated Space, so calls can be cascaded.
func (s *Space) Enable(op Op) *Space {
	if op < 0 || op >= numOps {
		if s.err == nil {
			s.err = errors.Errorf("operation %d is not supported", op)
		}
		return s
	}
	if !opTable[op].flag {
		if s.err == nil {
			s.err = errors.Errorf("operation %q requires magnitude bounds, use Set instead of Enable", op)
		}
		return s
	}
	if _, found := s.bounds[op]; !found {
		s.ops = append(s.ops, op)
	}
	s.bounds[op] = Bounds{}
	return s
}

// Size returns the number of operations in the space.
func (s *Space) Size() int { return len(s.ops) }

// Ops returns the operations in the space, in insertion order.
func (s *Space) Ops() []Op {
	ops := make([]Op, len(s.ops))
	copy(ops, s.ops)
	return ops
}

// Bounds returns the magnitude bounds configured for op, and whether the
// operation is part of the space.
func (s *Space) Bounds(op Op) (Bounds, bool) {
	b, found := s.bounds[op]
	return b, found
}

// Check returns the first configuration error recorded while building the
// space, or an error if the space is empty.
func (s *Space) Check() error {
	if s.err != nil {
		return s.err
	}
	if len(s.ops) == 0 {
		return errors.Errorf("augmentation space is empty, at least one operation is required")
	}
	return nil
}

func checkBounds(op Op, low, high float64) error {
	if op < 0 || op >= numOps {
		return errors.Errorf("operation %d is not supported", op)
	}
	info := opTable[op]
	if info.flag {
		return errors.Errorf("operation %q takes no magnitude bounds, use Enable instead of Set", op)
	}
	if math.IsNaN(low) || math.IsNaN(high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return errors.Errorf("bounds for operation %q must be finite, got [%g, %g]", op, low, high)
	}
	if low > high {
		return errors.Errorf("bounds for operation %q are inverted: low %g > high %g", op, low, high)
	}
	if info.integral && (low != math.Trunc(low) || high != math.Trunc(high)) {
		return errors.Errorf("bounds for operation %q must be integers, got [%g, %g]", op, low, high)
	}
	if low < info.minLow || high > info.maxHigh {
		return errors.Errorf("bounds for operation %q must be within [%g, %g], got [%g, %g]",
			op, info.minLow, info.maxHigh, low, high)
	}
	return nil
}
