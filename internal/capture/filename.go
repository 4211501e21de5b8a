// Package capture drives batch processing of recorded video files:
// frame sampling with deduplication, audio chunking with transcription,
// and timeline writes.
package capture

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ValidationError rejects an input before any processing starts.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid filename %q: %s", e.Filename, e.Reason)
}

var filenamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}$`)

const filenameLayout = "2006-01-02_15-04-05"

// ParseVideoTimestamp extracts the capture start time encoded in a
// video filename. The name must be YYYY-MM-DD_HH-MM-SS plus extension.
func ParseVideoTimestamp(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if !filenamePattern.MatchString(stem) {
		return time.Time{}, &ValidationError{
			Filename: base,
			Reason:   "expected YYYY-MM-DD_HH-MM-SS plus extension",
		}
	}

	ts, err := time.ParseInLocation(filenameLayout, stem, time.Local)
	if err != nil {
		return time.Time{}, &ValidationError{
			Filename: base,
			Reason:   "not a valid date and time",
		}
	}
	return ts, nil
}
