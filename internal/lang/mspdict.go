package lang

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// CurrentVersion is the MSPDict schema written by this package.
const CurrentVersion = 1

// Entry maps one morpheme/pronunciation pair to its output forms.
type Entry struct {
	Morph      []string `json:"morph"`
	Pron       []string `json:"pron"`
	OutPron    []string `json:"out_pron"`
	OutSurface []string `json:"out_surface"`
}

// MSPDict - morpheme/surface/pronunciation dictionary.
//
// Version 1 is {"version":1,"entries":[...]}. A file without a version field
// is version 0: nested objects keyed by python tuple literals,
// {"('morph', ...)": {"('pron', ...)": {"out_pron": ..., "out_surface": ...}}}.
type MSPDict struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

type legacyValue struct {
	OutPron    json.RawMessage `json:"out_pron"`
	OutSurface json.RawMessage `json:"out_surface"`
}

func LoadMSPDict(path string) (*MSPDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseMSPDict(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func ParseMSPDict(data []byte) (*MSPDict, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode msp dict: %w", err)
	}

	raw, ok := top["version"]
	if !ok {
		return parseLegacy(top)
	}
	var version int
	if err := json.Unmarshal(raw, &version); err != nil {
		return nil, fmt.Errorf("decode msp dict version: %w", err)
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("unsupported msp dict version %d", version)
	}
	var d MSPDict
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode msp dict: %w", err)
	}
	return &d, nil
}

func parseLegacy(top map[string]json.RawMessage) (*MSPDict, error) {
	morphKeys := make([]string, 0, len(top))
	for k := range top {
		morphKeys = append(morphKeys, k)
	}
	sort.Strings(morphKeys)

	d := &MSPDict{Version: CurrentVersion}
	for _, mk := range morphKeys {
		morph, err := ParseTuple(mk)
		if err != nil {
			return nil, fmt.Errorf("morph key %q: %w", mk, err)
		}
		var prons map[string]legacyValue
		if err := json.Unmarshal(top[mk], &prons); err != nil {
			return nil, fmt.Errorf("morph %q: %w", mk, err)
		}
		pronKeys := make([]string, 0, len(prons))
		for k := range prons {
			pronKeys = append(pronKeys, k)
		}
		sort.Strings(pronKeys)

		for _, pk := range pronKeys {
			pron, err := ParseTuple(pk)
			if err != nil {
				return nil, fmt.Errorf("pron key %q: %w", pk, err)
			}
			v := prons[pk]
			outPron, err := legacyStrings(v.OutPron)
			if err != nil {
				return nil, fmt.Errorf("%s/%s out_pron: %w", mk, pk, err)
			}
			outSurface, err := legacyStrings(v.OutSurface)
			if err != nil {
				return nil, fmt.Errorf("%s/%s out_surface: %w", mk, pk, err)
			}
			d.Entries = append(d.Entries, Entry{Morph: morph, Pron: pron, OutPron: outPron, OutSurface: outSurface})
		}
	}
	return d, nil
}

// legacyStrings accepts a string, a tuple-literal string or a list of strings.
func legacyStrings(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.HasPrefix(strings.TrimSpace(s), "(") {
			return ParseTuple(s)
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.New("want string or list of strings")
	}
	return list, nil
}
