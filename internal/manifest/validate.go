package manifest

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateID      = errors.New("duplicate id")
	ErrMissingRecording = errors.New("supervision references missing recording")
	ErrInvalidSegment   = errors.New("invalid supervision segment")
)

// OverrunTolerance - seconds a segment may extend past its recording end
// before a warning is produced.
const OverrunTolerance = 0.025

// Warning - non-fatal finding produced by Validate.
type Warning struct {
	SupervisionID string
	RecordingID   string
	Message       string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s (%s): %s", w.SupervisionID, w.RecordingID, w.Message)
}

// Validate checks referential completeness between the two sets. Every
// supervision must point at a recording in recs and have start >= 0 and a
// positive duration; these are returned as errors (all of them, joined).
// Segments running past the end of their recording are only reported as
// warnings.
func Validate(recs *RecordingSet, sups *SupervisionSet) ([]Warning, error) {
	var (
		errs     []error
		warnings []Warning
	)

	for _, s := range sups.Segments() {
		rec, ok := recs.Get(s.RecordingID)
		if !ok {
			errs = append(errs, fmt.Errorf("supervision %q -> recording %q: %w", s.ID, s.RecordingID, ErrMissingRecording))
			continue
		}
		if s.Start < 0 {
			errs = append(errs, fmt.Errorf("supervision %q: negative start %.3f: %w", s.ID, s.Start, ErrInvalidSegment))
		}
		if s.Duration <= 0 {
			errs = append(errs, fmt.Errorf("supervision %q: non-positive duration %.3f: %w", s.ID, s.Duration, ErrInvalidSegment))
		}
		if s.Channel < 0 || (rec.NumChannels() > 0 && s.Channel >= rec.NumChannels()) {
			errs = append(errs, fmt.Errorf("supervision %q: channel %d not in recording %q: %w", s.ID, s.Channel, rec.ID, ErrInvalidSegment))
		}
		if end := s.End(); end > rec.Duration+OverrunTolerance {
			warnings = append(warnings, Warning{
				SupervisionID: s.ID,
				RecordingID:   rec.ID,
				Message:       fmt.Sprintf("ends at %.3fs past recording duration %.3fs", end, rec.Duration),
			})
		}
	}

	return warnings, errors.Join(errs...)
}
