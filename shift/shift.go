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

// Package shift re-renders a dataset of image files through a fixed
// pixel-level transform, in parallel, onto an output directory. It is the
// offline counterpart of package augment: use it to generate a distribution-
// shifted copy of a dataset.
//
//	job := shift.New(paths, outputDir, fn).WithWorkers(8).WithProgressBar(true)
//	report, err := job.Run(ctx)
//
// A single file failing to read, transform or write does not abort the batch:
// it is recorded in the returned Report and the remaining files proceed.
package shift

import (
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// TransformFunc shifts one image. It must be pure (no retained references to
// the input or output) since it is called concurrently from several workers.
type TransformFunc func(img image.Image) (image.Image, error)

// Format selects the encoding of the output files.
type Format int

const (
	// KeepFormat writes each output with the format (and extension) of its
	// input file.
	KeepFormat Format = iota
	PNG
	JPEG
)

func (f Format) extension() string {
	switch f {
	case PNG:
		return ".png"
	case JPEG:
		return ".jpg"
	}
	return ""
}

// Job describes one dataset shift: the input paths, the output directory and
// the transform, plus execution options. Build it with New and the chained
// With* calls, then execute it with Run.
type Job struct {
	paths      []string
	outputDir  string
	fn         TransformFunc
	numWorkers int
	overwrite  bool
	verbose    bool
	format     Format
}

// New creates a Job that renders the images in paths through fn into
// outputDir. By default it runs with one worker, keeps the input format,
// fails if an output file already exists, and shows no progress bar.
func New(paths []string, outputDir string, fn TransformFunc) *Job {
	return &Job{
		paths:      paths,
		outputDir:  outputDir,
		fn:         fn,
		numWorkers: 1,
	}
}

// WithWorkers sets the number of parallel workers. If n is 0 it uses the
// number of CPUs plus 1.
//
// It returns the updated Job, so calls can be cascaded.
func (j *Job) WithWorkers(n int) *Job {
	if n == 0 {
		n = runtime.NumCPU() + 1
	}
	j.numWorkers = n
	return j
}

// WithOverwrite allows outputs to replace files already present in the
// output directory. The default is to treat pre-existing outputs as a setup
// error.
//
// It returns the updated Job, so calls can be cascaded.
func (j *Job) WithOverwrite(allowed bool) *Job {
	j.overwrite = allowed
	return j
}

// WithProgressBar displays a progress bar on stderr while the job runs.
//
// It returns the updated Job, so calls can be cascaded.
func (j *Job) WithProgressBar(verbose bool) *Job {
	j.verbose = verbose
	return j
}

// WithFormat forces the encoding (and file extension) of the outputs. The
// default, KeepFormat, mirrors each input's own format.
//
// It returns the updated Job, so calls can be cascaded.
func (j *Job) WithFormat(format Format) *Job {
	j.format = format
	return j
}

// fileResult is the fan-in unit sent by workers back to Run.
type fileResult struct {
	path         string
	err          error
	bytesWritten int64
}

// Run executes the job and returns its Report.
//
// Setup problems -- empty path list, no readable input at all, colliding
// output names, pre-existing outputs without WithOverwrite, or an output
// directory that cannot be created -- abort before any worker starts and
// return an error without a Report. Per-file failures never abort the batch;
// they are recorded in the Report.
//
// Canceling ctx stops dispatching new files; files already being processed
// drain, and files never dispatched are counted as skipped.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	if err := j.check(); err != nil {
		return nil, err
	}
	outputs, err := j.outputPaths()
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(j.outputDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %q", j.outputDir)
	}
	if !j.overwrite {
		for _, outPath := range outputs {
			if _, err := os.Stat(outPath); err == nil {
				return nil, errors.Errorf(
					"output file %q already exists: remove it or configure the job with WithOverwrite", outPath)
			}
		}
	}

	report := &Report{JobID: uuid.New(), Total: len(j.paths)}
	start := time.Now()

	var bar *progressbar.ProgressBar
	if j.verbose {
		bar = progressbar.NewOptions(len(j.paths),
			progressbar.OptionSetDescription("Shifting dataset"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	// Fan-out: a feeder pushes path indices, workers pull and process
	// independently; fan-in: per-file results are aggregated here, so the
	// report stays consistent also under partial failure.
	work := make(chan int)
	go func() {
		defer close(work)
		for i := range j.paths {
			select {
			case <-ctx.Done():
				return
			case work <- i:
			}
		}
	}()

	results := make(chan fileResult, j.numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < j.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results <- j.processFile(j.paths[i], outputs[j.paths[i]])
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			report.Failed++
			report.Failures = append(report.Failures, FileError{Path: res.path, Err: res.err})
			klog.Warningf("shift: failed to process %q: %v", res.path, res.err)
		} else {
			report.Succeeded++
			report.BytesWritten += res.bytesWritten
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Close()
		fmt.Println()
	}

	report.Skipped = report.Total - report.Succeeded - report.Failed
	report.Canceled = ctx.Err() != nil
	report.Elapsed = time.Since(start)
	return report, nil
}

// check validates the job configuration, before any file system side effect.
func (j *Job) check() error {
	if len(j.paths) == 0 {
		return errors.Errorf("no input paths given, nothing to shift")
	}
	if j.fn == nil {
		return errors.Errorf("transform function must not be nil")
	}
	if j.numWorkers < 1 {
		return errors.Errorf("number of workers must be positive, got %d", j.numWorkers)
	}
	if j.outputDir == "" {
		return errors.Errorf("output directory must not be empty")
	}
	anyReadable := false
	for _, inPath := range j.paths {
		if _, err := os.Stat(inPath); err == nil {
			anyReadable = true
			break
		}
	}
	if !anyReadable {
		return errors.Errorf("none of the %d input path(s) is readable", len(j.paths))
	}
	return nil
}

// outputPaths maps every input path to its output path, verifying that no two
// inputs collide on the same output name.
func (j *Job) outputPaths() (map[string]string, error) {
	outputs := make(map[string]string, len(j.paths))
	claimedBy := make(map[string]string, len(j.paths))
	for _, inPath := range j.paths {
		name := filepath.Base(inPath)
		if ext := j.format.extension(); ext != "" {
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ext
		}
		if previous, found := claimedBy[name]; found {
			return nil, errors.Errorf(
				"input paths %q and %q both map to output name %q, which would silently overwrite",
				previous, inPath, name)
		}
		claimedBy[name] = inPath
		outputs[inPath] = path.Join(j.outputDir, name)
	}
	return outputs, nil
}

// processFile reads, transforms and writes one image. Errors are returned in
// the fileResult, never propagated: one bad file must not stop the batch.
func (j *Job) processFile(inPath, outPath string) fileResult {
	res := fileResult{path: inPath}
	img, err := imaging.Open(inPath)
	if err != nil {
		res.err = errors.Wrapf(err, "failed to read image")
		return res
	}
	shifted, err := j.fn(img)
	if err != nil {
		res.err = errors.Wrapf(err, "transform failed")
		return res
	}
	if shifted == nil {
		res.err = errors.Errorf("transform returned a nil image")
		return res
	}
	if err = imaging.Save(shifted, outPath); err != nil {
		res.err = errors.Wrapf(err, "failed to save image to %q", outPath)
		return res
	}
	if info, err := os.Stat(outPath); err == nil {
		res.bytesWritten = info.Size()
	}
	return res
}
