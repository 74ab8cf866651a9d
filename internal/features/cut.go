package features

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"asrprep/internal/manifest"
)

// Features describes stored feature matrices for one cut.
type Features struct {
	Type         string  `json:"type"`
	NumFrames    int     `json:"num_frames"`
	NumFeatures  int     `json:"num_features"`
	FrameShift   float64 `json:"frame_shift"`
	SamplingRate int     `json:"sampling_rate"`
	Start        float64 `json:"start"`
	Duration     float64 `json:"duration"`
	StorageType  string  `json:"storage_type"`
	StoragePath  string  `json:"storage_path"`
	StorageKey   string  `json:"storage_key"`
	RecordingID  string  `json:"recording_id,omitempty"`
	Channels     int     `json:"channels"`
}

// Cut - a time span of one recording channel with its supervisions.
// Supervision times are relative to the cut start.
type Cut struct {
	ID           string                 `json:"id"`
	Start        float64                `json:"start"`
	Duration     float64                `json:"duration"`
	Channel      int                    `json:"channel"`
	Supervisions []manifest.Supervision `json:"supervisions"`
	Features     *Features              `json:"features,omitempty"`
	Recording    manifest.Recording     `json:"recording"`
	SpeedFactor  float64                `json:"speed_factor,omitempty"`
	Type         string                 `json:"type"`
}

const monoCut = "MonoCut"

func (c Cut) End() float64 {
	return c.Start + c.Duration
}

type CutOptions struct {
	// TrimToSupervisions yields one cut per supervision instead of one per
	// recording. Other supervisions only partially inside the span are dropped.
	TrimToSupervisions bool
	// SpeedPerturb appends a copy of every cut per factor. 1.0 is ignored.
	SpeedPerturb []float64
}

// BuildCuts pairs recordings with their supervisions. Base cuts come first
// in recording/segment order, followed by one perturbed copy per factor.
func BuildCuts(recs *manifest.RecordingSet, sups *manifest.SupervisionSet, opts CutOptions) ([]Cut, error) {
	byRec := sups.ByRecording()
	for id := range byRec {
		if _, ok := recs.Get(id); !ok {
			return nil, fmt.Errorf("supervision for %q: %w", id, manifest.ErrMissingRecording)
		}
	}

	var base []Cut
	for _, rec := range recs.Recordings() {
		segs := byRec[rec.ID]
		if !opts.TrimToSupervisions {
			base = append(base, Cut{
				ID:           rec.ID,
				Duration:     rec.Duration,
				Channel:      firstChannel(rec),
				Supervisions: shift(segs, 0, rec.Duration),
				Recording:    rec,
				Type:         monoCut,
			})
			continue
		}
		for _, s := range segs {
			base = append(base, Cut{
				ID:           s.ID,
				Start:        s.Start,
				Duration:     s.Duration,
				Channel:      s.Channel,
				Supervisions: shift(segs, s.Start, s.End()),
				Recording:    rec,
				Type:         monoCut,
			})
		}
	}

	out := append([]Cut(nil), base...)
	for _, factor := range opts.SpeedPerturb {
		if factor <= 0 {
			return nil, fmt.Errorf("invalid speed factor %v", factor)
		}
		if factor == 1 {
			continue
		}
		for _, c := range base {
			out = append(out, perturb(c, factor))
		}
	}
	return out, nil
}

// shift keeps supervisions fully inside [from, to] and makes their start
// relative to from.
func shift(segs []manifest.Supervision, from, to float64) []manifest.Supervision {
	const eps = 1e-6
	var kept []manifest.Supervision
	for _, s := range segs {
		if s.Start < from-eps || s.End() > to+eps {
			continue
		}
		s.Start = round(s.Start - from)
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// SpeedSuffix returns "_sp0.9" for 0.9.
func SpeedSuffix(factor float64) string {
	return "_sp" + strconv.FormatFloat(factor, 'f', -1, 64)
}

func perturb(c Cut, factor float64) Cut {
	suffix := SpeedSuffix(factor)

	rec := c.Recording
	rec.ID += suffix
	rec.Duration = round(rec.Duration / factor)
	rec.NumSamples = int64(math.Round(float64(rec.NumSamples) / factor))

	sups := make([]manifest.Supervision, len(c.Supervisions))
	for i, s := range c.Supervisions {
		s.ID += suffix
		s.RecordingID = rec.ID
		s.Start = round(s.Start / factor)
		s.Duration = round(s.Duration / factor)
		sups[i] = s
	}

	return Cut{
		ID:           c.ID + suffix,
		Start:        round(c.Start / factor),
		Duration:     round(c.Duration / factor),
		Channel:      c.Channel,
		Supervisions: sups,
		Recording:    rec,
		SpeedFactor:  factor,
		Type:         c.Type,
	}
}

func firstChannel(r manifest.Recording) int {
	if len(r.ChannelIDs) == 0 {
		return 0
	}
	return r.ChannelIDs[0]
}

// round to microseconds so repeated runs serialise identically.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
