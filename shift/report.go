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
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// FileError records the failure of one input file during a shift job.
type FileError struct {
	Path string
	Err  error
}

// Report summarizes the outcome of one Job.Run. It is always returned, also
// under partial failure; only setup errors abort a run without one.
type Report struct {
	// JobID identifies the run the report belongs to.
	JobID uuid.UUID

	// Total is the number of input paths; Total = Succeeded+Failed+Skipped.
	Total     int
	Succeeded int
	Failed    int

	// Skipped counts files not attempted because the run was canceled.
	Skipped int

	// Failures holds one entry per failed file.
	Failures []FileError

	// BytesWritten is the total size of the output files written.
	BytesWritten int64

	Elapsed  time.Duration
	Canceled bool
}

// String renders a short human-readable summary of the run.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "shift job %s: %s/%s image(s) shifted, %s written in %s",
		r.JobID,
		humanize.Comma(int64(r.Succeeded)), humanize.Comma(int64(r.Total)),
		humanize.Bytes(uint64(r.BytesWritten)),
		r.Elapsed.Round(time.Millisecond))
	if r.Failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.Failed)
	}
	if r.Canceled {
		fmt.Fprintf(&sb, ", canceled with %d file(s) skipped", r.Skipped)
	}
	for _, failure := range r.Failures {
		fmt.Fprintf(&sb, "\n  %s: %v", failure.Path, failure.Err)
	}
	return sb.String()
}
