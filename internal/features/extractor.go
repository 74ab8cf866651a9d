package features

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Extractor computes and stores features for one cut under outDir.
type Extractor interface {
	Extract(ctx context.Context, cut Cut, outDir string) (*Features, error)
}

// CommandExtractor runs an external program per cut. The cut is written as
// JSON to stdin; the program prints a Features document on stdout.
type CommandExtractor struct {
	argv       []string
	numMelBins int
}

// NewCommandExtractor splits command with shell quoting rules and appends
// extra args verbatim.
func NewCommandExtractor(command string, extra []string, numMelBins int) (*CommandExtractor, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse feature command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("feature command is empty")
	}
	if numMelBins <= 0 {
		return nil, fmt.Errorf("num mel bins must be positive, got %d", numMelBins)
	}
	return &CommandExtractor{
		argv:       append(argv, extra...),
		numMelBins: numMelBins,
	}, nil
}

func (e *CommandExtractor) Extract(ctx context.Context, cut Cut, outDir string) (*Features, error) {
	payload, err := json.Marshal(cut)
	if err != nil {
		return nil, fmt.Errorf("encode cut %s: %w", cut.ID, err)
	}

	args := append([]string{}, e.argv[1:]...)
	args = append(args, "--output", outDir, "--num-mel-bins", strconv.Itoa(e.numMelBins))

	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract %s: %w: %s", cut.ID, err, strings.TrimSpace(stderr.String()))
	}

	var feats Features
	if err := json.Unmarshal(stdout.Bytes(), &feats); err != nil {
		return nil, fmt.Errorf("decode features for %s: %w", cut.ID, err)
	}
	if feats.StoragePath == "" || feats.NumFrames <= 0 {
		return nil, fmt.Errorf("extractor returned incomplete features for %s", cut.ID)
	}
	if feats.RecordingID == "" {
		feats.RecordingID = cut.Recording.ID
	}
	return &feats, nil
}
