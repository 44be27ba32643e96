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

package shift

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// writeTestImages writes count distinct small PNG images into dir and
// returns their paths.
func writeTestImages(t *testing.T, dir string, count int) []string {
	t.Helper()
	paths := make([]string, count)
	for i := range paths {
		img := imaging.New(16, 16, color.NRGBA{R: uint8(i * 40), G: uint8(255 - i*30), B: uint8(i * 11), A: 0xFF})
		paths[i] = path.Join(dir, fmt.Sprintf("img%d.png", i))
		must.M(imaging.Save(img, paths[i]))
	}
	return paths
}

func grayscaleTransform(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

func TestShiftWritesAllOutputs(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := path.Join(t.TempDir(), "shifted")
	paths := writeTestImages(t, inputDir, 5)

	report, err := New(paths, outputDir, grayscaleTransform).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, report.Total)
	require.Equal(t, 5, report.Succeeded)
	require.Zero(t, report.Failed)
	require.Zero(t, report.Skipped)
	require.False(t, report.Canceled)
	require.Greater(t, report.BytesWritten, int64(0))

	for _, inPath := range paths {
		outPath := path.Join(outputDir, filepath.Base(inPath))
		img := must.M1(imaging.Open(outPath))
		require.Equal(t, image.Pt(16, 16), img.Bounds().Size())
	}
	require.Contains(t, report.String(), "5/5")
}

func TestShiftOutputIndependentOfWorkers(t *testing.T) {
	inputDir := t.TempDir()
	paths := writeTestImages(t, inputDir, 5)
	outputDir1 := path.Join(t.TempDir(), "w1")
	outputDir4 := path.Join(t.TempDir(), "w4")

	_, err := New(paths, outputDir1, grayscaleTransform).WithWorkers(1).Run(context.Background())
	require.NoError(t, err)
	_, err = New(paths, outputDir4, grayscaleTransform).WithWorkers(4).Run(context.Background())
	require.NoError(t, err)

	for _, inPath := range paths {
		name := filepath.Base(inPath)
		bytes1 := must.M1(os.ReadFile(path.Join(outputDir1, name)))
		bytes4 := must.M1(os.ReadFile(path.Join(outputDir4, name)))
		require.Equalf(t, bytes1, bytes4, "output for %q differs between 1 and 4 workers", name)
	}
}

func TestShiftPartialFailure(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := path.Join(t.TempDir(), "shifted")
	paths := writeTestImages(t, inputDir, 4)
	missing := path.Join(inputDir, "missing.png")
	paths = append(paths, missing)

	report, err := New(paths, outputDir, grayscaleTransform).WithWorkers(2).Run(context.Background())
	require.NoError(t, err, "a single unreadable file must not abort the batch")
	require.Equal(t, 5, report.Total)
	require.Equal(t, 4, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	require.Equal(t, missing, report.Failures[0].Path)

	entries := must.M1(os.ReadDir(outputDir))
	require.Len(t, entries, 4)
}

func TestShiftTransformFailure(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := path.Join(t.TempDir(), "shifted")
	paths := writeTestImages(t, inputDir, 3)

	failOn := filepath.Base(paths[1])
	fn := func(img image.Image) (image.Image, error) {
		return nil, errors.Errorf("rejecting image")
	}
	report, err := New(paths[1:2], outputDir, fn).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Contains(t, report.Failures[0].Path, failOn)
}

func TestShiftSetupErrors(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := path.Join(t.TempDir(), "shifted")
	paths := writeTestImages(t, inputDir, 2)

	// Empty path list.
	_, err := New(nil, outputDir, grayscaleTransform).Run(context.Background())
	require.Error(t, err)
	require.NoDirExists(t, outputDir, "setup errors must not create the output directory")

	// Nil transform.
	_, err = New(paths, outputDir, nil).Run(context.Background())
	require.Error(t, err)

	// Invalid worker count.
	_, err = New(paths, outputDir, grayscaleTransform).WithWorkers(-1).Run(context.Background())
	require.Error(t, err)

	// No readable input at all.
	_, err = New([]string{path.Join(inputDir, "nope.png")}, outputDir, grayscaleTransform).
		Run(context.Background())
	require.Error(t, err)

	// Output name collision between distinct inputs.
	colliding := writeTestImages(t, t.TempDir(), 1)
	_, err = New(append(paths, colliding[0]), outputDir, grayscaleTransform).
		Run(context.Background())
	require.Error(t, err)
}

func TestShiftRefusesToOverwrite(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	paths := writeTestImages(t, inputDir, 2)

	// Pre-existing output file.
	must.M(os.WriteFile(path.Join(outputDir, filepath.Base(paths[0])), []byte("occupied"), 0644))
	_, err := New(paths, outputDir, grayscaleTransform).Run(context.Background())
	require.Error(t, err)

	report, err := New(paths, outputDir, grayscaleTransform).WithOverwrite(true).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Succeeded)
}

func TestShiftForcedFormat(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := path.Join(t.TempDir(), "shifted")
	paths := writeTestImages(t, inputDir, 2)

	report, err := New(paths, outputDir, grayscaleTransform).WithFormat(JPEG).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Succeeded)
	require.FileExists(t, path.Join(outputDir, "img0.jpg"))
	require.FileExists(t, path.Join(outputDir, "img1.jpg"))
}

func TestShiftCanceledBeforeStart(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := path.Join(t.TempDir(), "shifted")
	paths := writeTestImages(t, inputDir, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := New(paths, outputDir, grayscaleTransform).WithWorkers(2).Run(ctx)
	require.NoError(t, err)
	require.True(t, report.Canceled)
	require.Equal(t, 5, report.Total)
	require.Equal(t, 5, report.Succeeded+report.Failed+report.Skipped)
	require.Contains(t, report.String(), "canceled")
}
