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

// Package augment implements "StrongAugment"-style image augmentation: each
// call applies a randomly drawn sequence of color and tone operations, with
// randomly sampled magnitudes, to one input image.
//
// An Augmenter is configured with a builder:
//
//	aug, err := augment.New().
//		WithCounts([]int{2, 3, 4}, []float64{0.5, 0.3, 0.2}).
//		WithSeed(42).
//		Done()
//	augmented := aug.Apply(img)
//
// Apply never modifies its input, so the same source image can be safely
// reused across epochs. One Augmenter is not safe for concurrent use; derive
// per-worker copies with Clone.
package augment

import (
	"image"
	"math"
	"math/rand"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Config is built by New and configures an Augmenter. Call Done when
// finished configuring.
type Config struct {
	counts  []int
	probs   []float64
	space   *Space
	seed    int64
	hasSeed bool
}

// New creates a Config with the default policy: apply 2, 3 or 4 operations
// with probabilities 0.5, 0.3 and 0.2, sampled from DefaultSpace.
func New() *Config {
	return &Config{
		counts: []int{2, 3, 4},
		probs:  []float64{0.5, 0.3, 0.2},
		space:  DefaultSpace(),
	}
}

// WithCounts sets the candidate operation counts and the probability of each.
// Probabilities must be non-negative and finite; they are normalized to sum
// to 1. A count of 0 is legal and makes Apply return the image unchanged for
// that draw.
//
// It returns the updated Config, so calls can be cascaded.
func (c *Config) WithCounts(counts []int, probs []float64) *Config {
	c.counts = counts
	c.probs = probs
	return c
}

// WithSpace sets the operation space (pool) to sample operations from. The
// default is DefaultSpace.
//
// It returns the updated Config, so calls can be cascaded.
func (c *Config) WithSpace(space *Space) *Config {
	c.space = space
	return c
}

// WithSeed sets the seed of the random source, making the augmentation
// sequence reproducible. Without it the Augmenter is seeded from the clock.
//
// It returns the updated Config, so calls can be cascaded.
func (c *Config) WithSeed(seed int64) *Config {
	c.seed = seed
	c.hasSeed = true
	return c
}

// Done validates the configuration and builds the Augmenter. It returns an
// error if the space is invalid, the counts and probabilities lengths differ,
// any probability is negative or non-finite, the probabilities sum to zero,
// or any count is negative or exceeds the pool size.
func (c *Config) Done() (*Augmenter, error) {
	if c.space == nil {
		return nil, errors.Errorf("augmentation space must not be nil")
	}
	if err := c.space.Check(); err != nil {
		return nil, errors.Wrapf(err, "invalid augmentation space")
	}
	if len(c.counts) == 0 {
		return nil, errors.Errorf("at least one operation count is required")
	}
	if len(c.counts) != len(c.probs) {
		return nil, errors.Errorf("got %d operation counts but %d probabilities, lengths must match",
			len(c.counts), len(c.probs))
	}
	sum := 0.0
	for i, p := range c.probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return nil, errors.Errorf("probability %g for count %d is invalid, must be finite and non-negative",
				p, c.counts[i])
		}
		sum += p
	}
	if sum <= 0 {
		return nil, errors.Errorf("probabilities sum to %g, must be positive", sum)
	}
	poolSize := c.space.Size()
	for _, count := range c.counts {
		if count < 0 {
			return nil, errors.Errorf("operation count %d is negative", count)
		}
		if count > poolSize {
			return nil, errors.Errorf("operation count %d exceeds the pool size %d", count, poolSize)
		}
	}

	a := &Augmenter{
		counts: append([]int(nil), c.counts...),
		cum:    make([]float64, len(c.probs)),
		space:  c.space,
		seed:   c.seed,
	}
	acc := 0.0
	for i, p := range c.probs {
		acc += p / sum
		a.cum[i] = acc
	}
	a.cum[len(a.cum)-1] = 1.0 // Guard against floating-point drift.
	if !c.hasSeed {
		a.seed = time.Now().UTC().UnixNano()
	}
	a.rng = rand.New(rand.NewSource(a.seed))
	return a, nil
}

// AppliedOp records one operation applied by Augmenter.Apply, with the
// magnitudes that were sampled for it (empty for flag operations).
type AppliedOp struct {
	Op         Op
	Magnitudes []float64
}

// Augmenter applies random operation sequences to images. Build it with New
// and Config.Done.
type Augmenter struct {
	counts []int
	cum    []float64 // Cumulative, normalized probabilities, aligned with counts.
	space  *Space
	seed   int64
	rng    *rand.Rand
	last   []AppliedOp
}

// Apply augments the image: it draws how many operations to apply, which
// ones (without replacement) and their magnitudes, and applies them in the
// drawn order. The input image is never modified.
//
// Apply panics (an error value, recoverable with exceptions.TryCatch) if img
// is nil or empty, so it stays usable as a transform-pipeline stage.
func (a *Augmenter) Apply(img image.Image) image.Image {
	if img == nil {
		exceptions.Panicf("augment: cannot augment a nil image")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		exceptions.Panicf("augment: cannot augment an empty %dx%d image", bounds.Dx(), bounds.Dy())
	}

	dst := imaging.Clone(img)
	k := a.sampleCount()
	a.last = a.last[:0]
	perm := a.rng.Perm(a.space.Size())
	for _, poolIdx := range perm[:k] {
		op := a.space.ops[poolIdx]
		m0, m1, magnitudes := a.sampleMagnitudes(op)
		dst = op.apply(dst, m0, m1, a.rng)
		a.last = append(a.last, AppliedOp{Op: op, Magnitudes: magnitudes})
	}
	return dst
}

// Transform adapts the Augmenter to a plain image-to-image function, the
// shape expected by per-sample transform pipelines.
func (a *Augmenter) Transform() func(image.Image) image.Image {
	return a.Apply
}

// LastOps returns the operations applied by the most recent Apply call, in
// application order. Useful for debugging augmentation spaces.
func (a *Augmenter) LastOps() []AppliedOp {
	out := make([]AppliedOp, len(a.last))
	copy(out, a.last)
	return out
}

// Seed returns the seed of the Augmenter's random source.
func (a *Augmenter) Seed() int64 { return a.seed }

// Clone creates an Augmenter with the same policy but its own random source
// seeded with seed. Use it to derive independent augmenters for parallel
// data-loading workers, which share the read-only operation space.
func (a *Augmenter) Clone(seed int64) *Augmenter {
	clone := &Augmenter{
		counts: a.counts,
		cum:    a.cum,
		space:  a.space,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
	}
	return clone
}

// sampleCount draws the number of operations to apply from the configured
// count distribution.
func (a *Augmenter) sampleCount() int {
	r := a.rng.Float64()
	for i, c := range a.cum {
		if r < c {
			return a.counts[i]
		}
	}
	return a.counts[len(a.counts)-1]
}

// sampleMagnitudes draws the magnitude(s) for op uniformly from its bounds.
func (a *Augmenter) sampleMagnitudes(op Op) (m0, m1 float64, magnitudes []float64) {
	info := opTable[op]
	if info.flag {
		return 0, 0, nil
	}
	b := a.space.bounds[op]
	m0 = a.sampleMagnitude(b, info.integral)
	if info.twoMagnitudes {
		m1 = a.sampleMagnitude(b, info.integral)
		return m0, m1, []float64{m0, m1}
	}
	return m0, 0, []float64{m0}
}

func (a *Augmenter) sampleMagnitude(b Bounds, integral bool) float64 {
	if integral {
		low, high := int(b.Low), int(b.High)
		return float64(low + a.rng.Intn(high-low+1))
	}
	if b.Low == b.High {
		return b.Low
	}
	return b.Low + a.rng.Float64()*(b.High-b.Low)
}
