package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"asrprep/internal/manifest"
)

// Utterance - one "<recording-id>,<text>" transcript line.
type Utterance struct {
	RecordingID string
	Text        string
	WavPath     string
}

// LaboroTVTranscript returns trans-dir/text_<part>.txt.
func LaboroTVTranscript(transDir, part string) string {
	return filepath.Join(transDir, "text_"+part+".txt")
}

// LaboroTVWavDir returns corpus-dir/data/<part>/wav.
func LaboroTVWavDir(corpusDir, part string) string {
	return filepath.Join(corpusDir, "data", part, "wav")
}

// ReadLaboroTVTranscript parses every non-blank line of the partition
// transcript. A line without a comma fails the whole file.
func ReadLaboroTVTranscript(transPath, wavDir string) ([]Utterance, error) {
	f, err := os.Open(transPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var utts []Utterance
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Формат: "ID,текст"
		id, text, ok := strings.Cut(line, ",")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%s:%d: %q: %w", transPath, lineNo, line, ErrMalformedLine)
		}
		id = strings.TrimSpace(id)
		utts = append(utts, Utterance{
			RecordingID: id,
			Text:        text,
			WavPath:     filepath.Join(wavDir, id+".wav"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return utts, nil
}

// ParseLaboroTVUtterance builds a recording and a single full-length
// supervision. A missing wav is not an error: the result carries a
// SkipReason and no recording.
func ParseLaboroTVUtterance(ctx context.Context, u Utterance, opts Options) (Parsed, error) {
	fi, err := os.Stat(u.WavPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Parsed{SkipReason: "missing audio: " + u.WavPath}, nil
	}
	if err != nil {
		return Parsed{}, fmt.Errorf("recording %s: %w", u.RecordingID, err)
	}
	if !fi.Mode().IsRegular() {
		return Parsed{}, fmt.Errorf("recording %s: %s is not a regular file", u.RecordingID, u.WavPath)
	}

	rec, err := recordingFromFile(ctx, u.RecordingID, u.WavPath)
	if err != nil {
		return Parsed{}, fmt.Errorf("recording %s: %w", u.RecordingID, err)
	}

	seg := manifest.Supervision{
		ID:          u.RecordingID,
		RecordingID: u.RecordingID,
		Start:       0,
		Duration:    rec.Duration,
		Channel:     0,
		Language:    opts.Language,
		Speaker:     u.RecordingID,
		Text:        normalizeText(u.Text, opts.NormalizeText),
	}
	return Parsed{Recording: &rec, Supervisions: []manifest.Supervision{seg}}, nil
}
