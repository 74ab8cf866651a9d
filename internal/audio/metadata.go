package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

var ErrNotAudio = errors.New("not a readable audio file")

type Metadata struct {
	DurationSec float64
	SampleRate  int
	Channels    int
	BitDepth    int
	NumSamples  int64
	FileSize    int64
	Codec       string
	Format      string
}

// Probe reads duration and layout of an audio file. WAV files are read from
// their header directly; anything else goes through ffprobe.
func Probe(ctx context.Context, path string) (*Metadata, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotAudio)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		m, err := probeWAV(path)
		if err == nil {
			m.FileSize = fi.Size()
			return m, nil
		}
		// non-PCM RIFF variants fall through to ffprobe
		if !errors.Is(err, ErrNotAudio) {
			return nil, err
		}
	}

	m, err := probeFFmpeg(ctx, path)
	if err != nil {
		return nil, err
	}
	m.FileSize = fi.Size()
	return m, nil
}

func probeWAV(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotAudio)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%s: locate pcm chunk: %w", path, err)
	}

	channels := int(d.NumChans)
	bytesPerSample := int(d.BitDepth) / 8
	if channels == 0 || bytesPerSample == 0 || d.SampleRate == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNotAudio)
	}

	numSamples := int64(d.PCMSize) / int64(channels*bytesPerSample)
	return &Metadata{
		DurationSec: float64(numSamples) / float64(d.SampleRate),
		SampleRate:  int(d.SampleRate),
		Channels:    channels,
		BitDepth:    int(d.BitDepth),
		NumSamples:  numSamples,
		Codec:       "pcm",
		Format:      "wav",
	}, nil
}

func probeFFmpeg(ctx context.Context, path string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			BitsPerSample int    `json:"bits_per_sample"`
			CodecName     string `json:"codec_name"`
			DurationTS    int64  `json:"duration_ts"`
		} `json:"streams"`
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
		} `json:"format"`
	}

	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("ffprobe %s: decode output: %w", path, err)
	}

	m := &Metadata{Format: probe.Format.FormatName}
	if probe.Format.Duration != "" {
		m.DurationSec, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "" && s.CodecType != "audio" {
			continue
		}
		m.SampleRate, _ = strconv.Atoi(s.SampleRate)
		m.Channels = s.Channels
		m.BitDepth = s.BitsPerSample
		m.Codec = s.CodecName
		break
	}
	if m.Channels == 0 {
		return nil, fmt.Errorf("%s: no audio stream: %w", path, ErrNotAudio)
	}
	if m.SampleRate > 0 {
		m.NumSamples = int64(m.DurationSec*float64(m.SampleRate) + 0.5)
	}

	return m, nil
}
