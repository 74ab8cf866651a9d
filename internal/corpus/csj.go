package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"asrprep/internal/audio"
	"asrprep/internal/manifest"
)

const (
	cleanSuffix   = "-clean.txt"
	morphSuffix   = "-morph.txt"
	pronSuffix    = "-pron.txt"
	wavListSuffix = "-wav.list"
)

// Group - the four companion files of one CSJ recording.
type Group struct {
	ID      string
	Clean   string
	Morph   string
	Pron    string
	WavList string
}

func groupFromClean(cleanPath string) Group {
	stem := strings.TrimSuffix(cleanPath, cleanSuffix)
	return Group{
		ID:      strings.TrimSuffix(filepath.Base(cleanPath), cleanSuffix),
		Clean:   cleanPath,
		Morph:   stem + morphSuffix,
		Pron:    stem + pronSuffix,
		WavList: stem + wavListSuffix,
	}
}

// LocateCSJ walks a partition directory and returns one group per
// "*-clean.txt" file. Companion files are not checked here; a missing one
// fails when the group is parsed.
func LocateCSJ(partDir string) ([]Group, error) {
	if err := RequireDir(partDir); err != nil {
		return nil, fmt.Errorf("partition dir: %w", err)
	}

	var groups []Group
	err := filepath.WalkDir(partDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), cleanSuffix) {
			groups = append(groups, groupFromClean(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Clean < groups[j].Clean })
	return groups, nil
}

// RequireDir fails unless path exists and is a directory.
func RequireDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: not a directory", path)
	}
	return nil
}

// Options - supervision defaults shared by both corpus parsers.
type Options struct {
	Language      string
	NormalizeText bool
}

// Parsed - output of one parse job. Recording is nil when the input was
// skipped.
type Parsed struct {
	Recording    *manifest.Recording
	Supervisions []manifest.Supervision
	SkipReason   string
}

// ParseCSJGroup reads a group's annotation files, which must be line-aligned,
// and builds the recording plus one supervision per line.
func ParseCSJGroup(ctx context.Context, g Group, opts Options) (Parsed, error) {
	morph, err := readLines(g.Morph)
	if err != nil {
		return Parsed{}, fmt.Errorf("group %s: %w", g.ID, err)
	}
	pron, err := readLines(g.Pron)
	if err != nil {
		return Parsed{}, fmt.Errorf("group %s: %w", g.ID, err)
	}
	clean, err := readLines(g.Clean)
	if err != nil {
		return Parsed{}, fmt.Errorf("group %s: %w", g.ID, err)
	}
	wavPath, err := readWavList(g.WavList)
	if err != nil {
		return Parsed{}, fmt.Errorf("group %s: %w", g.ID, err)
	}

	if len(morph) != len(clean) || len(pron) != len(clean) {
		return Parsed{}, fmt.Errorf("group %s: clean=%d morph=%d pron=%d: %w",
			g.ID, len(clean), len(morph), len(pron), ErrLineCountMismatch)
	}

	rec, err := recordingFromFile(ctx, g.ID, wavPath)
	if err != nil {
		return Parsed{}, fmt.Errorf("group %s: %w", g.ID, err)
	}

	segments := make([]manifest.Supervision, 0, len(clean))
	for i := range clean {
		c, err := ParseHeader(clean[i])
		if err != nil {
			return Parsed{}, fmt.Errorf("group %s line %d: %w", g.ID, i+1, err)
		}
		m, err := ParseHeader(morph[i])
		if err != nil {
			return Parsed{}, fmt.Errorf("group %s morph line %d: %w", g.ID, i+1, err)
		}
		p, err := ParseHeader(pron[i])
		if err != nil {
			return Parsed{}, fmt.Errorf("group %s pron line %d: %w", g.ID, i+1, err)
		}

		segments = append(segments, manifest.Supervision{
			ID:          c.ID,
			RecordingID: g.ID,
			Start:       c.Start,
			Duration:    c.End - c.Start,
			Channel:     0,
			Language:    opts.Language,
			Speaker:     g.ID,
			Text:        normalizeText(c.Payload, opts.NormalizeText),
			Custom: map[string]string{
				"morph": m.Payload,
				"pron":  p.Payload,
			},
		})
	}

	return Parsed{Recording: &rec, Supervisions: segments}, nil
}

// readWavList returns the first non-empty line. Relative paths resolve
// against the list file's directory.
func readWavList(path string) (string, error) {
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if !filepath.IsAbs(l) {
			l = filepath.Join(filepath.Dir(path), l)
		}
		return l, nil
	}
	return "", fmt.Errorf("%s: empty wav list", path)
}

func recordingFromFile(ctx context.Context, id, path string) (manifest.Recording, error) {
	meta, err := audio.Probe(ctx, path)
	if err != nil {
		return manifest.Recording{}, fmt.Errorf("probe audio: %w", err)
	}
	return manifest.NewRecording(id, path, meta.SampleRate, meta.NumSamples, meta.DurationSec, meta.Channels), nil
}
