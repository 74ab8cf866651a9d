package manifest

import (
	"fmt"
	"sort"
)

// Supervision - one time-aligned utterance inside a recording.
type Supervision struct {
	ID          string            `json:"id"`
	RecordingID string            `json:"recording_id"`
	Start       float64           `json:"start"`
	Duration    float64           `json:"duration"`
	Channel     int               `json:"channel"`
	Language    string            `json:"language,omitempty"`
	Speaker     string            `json:"speaker,omitempty"`
	Text        string            `json:"text,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"`
}

func (s Supervision) End() float64 {
	return s.Start + s.Duration
}

// SupervisionSet - supervisions keyed by id.
type SupervisionSet struct {
	items map[string]Supervision
}

// NewSupervisionSet fails with ErrDuplicateID when two segments share an id.
func NewSupervisionSet(segments []Supervision) (*SupervisionSet, error) {
	set := &SupervisionSet{items: make(map[string]Supervision, len(segments))}
	for _, s := range segments {
		if _, ok := set.items[s.ID]; ok {
			return nil, fmt.Errorf("supervision %q: %w", s.ID, ErrDuplicateID)
		}
		set.items[s.ID] = s
	}
	return set, nil
}

func (s *SupervisionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *SupervisionSet) Get(id string) (Supervision, bool) {
	if s == nil {
		return Supervision{}, false
	}
	sup, ok := s.items[id]
	return sup, ok
}

// Segments returns all supervisions ordered by recording, start, then id.
func (s *SupervisionSet) Segments() []Supervision {
	if s == nil {
		return nil
	}
	out := make([]Supervision, 0, len(s.items))
	for _, sup := range s.items {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RecordingID != b.RecordingID {
			return a.RecordingID < b.RecordingID
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})
	return out
}

// ByRecording groups segments by recording id, each group in Segments order.
func (s *SupervisionSet) ByRecording() map[string][]Supervision {
	out := make(map[string][]Supervision)
	for _, sup := range s.Segments() {
		out[sup.RecordingID] = append(out[sup.RecordingID], sup)
	}
	return out
}
