package manifest

import (
	"fmt"
	"sort"
)

// AudioSource - where the samples of a recording live.
type AudioSource struct {
	Type     string `json:"type"`
	Channels []int  `json:"channels"`
	Source   string `json:"source"`
}

// Recording describes one audio file. Values are not modified after
// construction; sets hand out copies.
type Recording struct {
	ID           string        `json:"id"`
	Sources      []AudioSource `json:"sources"`
	SamplingRate int           `json:"sampling_rate"`
	NumSamples   int64         `json:"num_samples"`
	Duration     float64       `json:"duration"`
	ChannelIDs   []int         `json:"channel_ids"`
}

// NewRecording builds a single-file recording with channels 0..channels-1.
func NewRecording(id, path string, samplingRate int, numSamples int64, duration float64, channels int) Recording {
	if channels <= 0 {
		channels = 1
	}
	ids := make([]int, channels)
	for i := range ids {
		ids[i] = i
	}
	return Recording{
		ID: id,
		Sources: []AudioSource{{
			Type:     "file",
			Channels: append([]int(nil), ids...),
			Source:   path,
		}},
		SamplingRate: samplingRate,
		NumSamples:   numSamples,
		Duration:     duration,
		ChannelIDs:   ids,
	}
}

// Path returns the first file source, or "".
func (r Recording) Path() string {
	for _, s := range r.Sources {
		if s.Type == "file" {
			return s.Source
		}
	}
	return ""
}

func (r Recording) NumChannels() int {
	return len(r.ChannelIDs)
}

// RecordingSet - recordings keyed by id.
type RecordingSet struct {
	items map[string]Recording
}

// NewRecordingSet fails with ErrDuplicateID when two recordings share an id.
func NewRecordingSet(recordings []Recording) (*RecordingSet, error) {
	set := &RecordingSet{items: make(map[string]Recording, len(recordings))}
	for _, r := range recordings {
		if _, ok := set.items[r.ID]; ok {
			return nil, fmt.Errorf("recording %q: %w", r.ID, ErrDuplicateID)
		}
		set.items[r.ID] = r
	}
	return set, nil
}

func (s *RecordingSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *RecordingSet) Get(id string) (Recording, bool) {
	if s == nil {
		return Recording{}, false
	}
	r, ok := s.items[id]
	return r, ok
}

// Recordings returns all recordings sorted by id.
func (s *RecordingSet) Recordings() []Recording {
	if s == nil {
		return nil
	}
	out := make([]Recording, 0, len(s.items))
	for _, r := range s.items {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TotalDuration in seconds.
func (s *RecordingSet) TotalDuration() float64 {
	var total float64
	for _, r := range s.Recordings() {
		total += r.Duration
	}
	return total
}
