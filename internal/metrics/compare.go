package metrics

import (
	"sort"

	"asrprep/internal/manifest"
)

// SegmentScore - errors for one supervision id present in both sets.
type SegmentScore struct {
	ID         string
	Reference  string
	Hypothesis string
	Words      ErrorCount
	Chars      ErrorCount
}

type Comparison struct {
	Segments []SegmentScore
	// ids only in the reference / only in the hypothesis
	Missing []string
	Extra   []string
	Words   ErrorCount
	Chars   ErrorCount
}

func (c Comparison) WER() float64 { return c.Words.Rate() }
func (c Comparison) CER() float64 { return c.Chars.Rate() }

// CompareSupervisions scores hypothesis text against reference text by
// supervision id. Corpus-level rates pool the edits of shared segments.
func CompareSupervisions(ref, hyp *manifest.SupervisionSet) Comparison {
	var out Comparison
	for _, r := range ref.Segments() {
		h, ok := hyp.Get(r.ID)
		if !ok {
			out.Missing = append(out.Missing, r.ID)
			continue
		}
		s := SegmentScore{
			ID:         r.ID,
			Reference:  r.Text,
			Hypothesis: h.Text,
			Words:      WordErrors(r.Text, h.Text),
			Chars:      CharErrors(r.Text, h.Text),
		}
		out.Words = out.Words.Add(s.Words)
		out.Chars = out.Chars.Add(s.Chars)
		out.Segments = append(out.Segments, s)
	}
	for _, h := range hyp.Segments() {
		if _, ok := ref.Get(h.ID); !ok {
			out.Extra = append(out.Extra, h.ID)
		}
	}
	sort.Strings(out.Extra)
	return out
}
