package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	KindRecordings   = "recordings"
	KindSupervisions = "supervisions"
)

var suffixes = []string{".json", ".json.gz", ".jsonl", ".jsonl.gz"}

// FileName returns "<kind>_<partition>.json" or ".json.gz".
func FileName(kind, partition string, compress bool) string {
	name := kind + "_" + partition + ".json"
	if compress {
		name += ".gz"
	}
	return name
}

// Find looks for an existing manifest of kind/partition under dir in any of
// the supported encodings.
func Find(dir, kind, partition string) (string, bool) {
	for _, suffix := range suffixes {
		path := filepath.Join(dir, kind+"_"+partition+suffix)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// WriteRecordings writes the set sorted by id.
func WriteRecordings(path string, set *RecordingSet) error {
	return writeItems(path, set.Recordings())
}

// WriteSupervisions writes the set in Segments order.
func WriteSupervisions(path string, set *SupervisionSet) error {
	return writeItems(path, set.Segments())
}

func ReadRecordings(path string) (*RecordingSet, error) {
	items, err := readItems[Recording](path)
	if err != nil {
		return nil, err
	}
	return NewRecordingSet(items)
}

func ReadSupervisions(path string) (*SupervisionSet, error) {
	items, err := readItems[Supervision](path)
	if err != nil {
		return nil, err
	}
	return NewSupervisionSet(items)
}

// WriteJSONL writes one JSON document per line; gzip when path ends in .gz.
func WriteJSONL[T any](path string, items []T) error {
	return writeItems(path, items)
}

// ReadJSONL reads either a JSON array or a JSON-lines file.
func ReadJSONL[T any](path string) ([]T, error) {
	return readItems[T](path)
}

func isLines(path string) bool {
	return strings.HasSuffix(strings.TrimSuffix(path, ".gz"), ".jsonl")
}

// writeItems encodes to a temp file in the target directory and renames it
// into place, so a reader never sees a partial manifest.
func writeItems[T any](path string, items []T) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(tmp)
		w = gz
	}
	bw := bufio.NewWriter(w)

	if err = encodeItems(bw, items, isLines(path)); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return err
		}
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move manifest into place: %w", err)
	}
	return nil
}

func encodeItems[T any](w *bufio.Writer, items []T, lines bool) error {
	if !lines {
		if _, err := w.WriteString("[\n"); err != nil {
			return err
		}
	}
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		sep := "\n"
		if !lines && i < len(items)-1 {
			sep = ",\n"
		}
		if _, err := w.WriteString(sep); err != nil {
			return err
		}
	}
	if !lines {
		if _, err := w.WriteString("]\n"); err != nil {
			return err
		}
	}
	return nil
}

func readItems[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return items, nil
	}

	var items []T
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var item T
		if err := dec.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Exists reports whether path is present. Errors other than not-exist count
// as present so callers never overwrite something they could not stat.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
