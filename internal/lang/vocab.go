package lang

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	Blank = "<blk>"

	MSPDictFile = "msp_dict.json"
	TokensFile  = "tokens.txt"
	WordsFile   = "words.txt"
	LexiconFile = "lexicon.txt"
)

// CharVocab - sorted, deduplicated character inventories.
type CharVocab struct {
	Tokens []string
	Words  []string
}

// CharVocabFrom collects tokens from the characters of every output
// pronunciation and words from the characters of every surface form. A
// surface form is cut at the first '+'; empty forms are ignored.
func CharVocabFrom(d *MSPDict) CharVocab {
	tokens := map[string]struct{}{}
	words := map[string]struct{}{}
	for _, e := range d.Entries {
		for _, pron := range e.OutPron {
			for _, r := range pron {
				tokens[string(r)] = struct{}{}
			}
		}
		for _, surface := range e.OutSurface {
			w, _, _ := strings.Cut(surface, "+")
			for _, r := range w {
				words[string(r)] = struct{}{}
			}
		}
	}
	return CharVocab{Tokens: sortedKeys(tokens), Words: sortedKeys(words)}
}

// BuildCharVocab reads langDir/msp_dict.json and writes tokens.txt,
// words.txt, tokens_len and words_len next to it.
func BuildCharVocab(langDir string) (CharVocab, error) {
	d, err := LoadMSPDict(filepath.Join(langDir, MSPDictFile))
	if err != nil {
		return CharVocab{}, err
	}
	v := CharVocabFrom(d)

	if err := writeSymbolTable(filepath.Join(langDir, TokensFile), v.Tokens); err != nil {
		return CharVocab{}, err
	}
	if err := writeSymbolTable(filepath.Join(langDir, WordsFile), v.Words); err != nil {
		return CharVocab{}, err
	}
	// counts include <blk>
	if err := os.WriteFile(filepath.Join(langDir, "tokens_len"), []byte(strconv.Itoa(len(v.Tokens)+1)), 0o644); err != nil {
		return CharVocab{}, err
	}
	if err := os.WriteFile(filepath.Join(langDir, "words_len"), []byte(strconv.Itoa(len(v.Words)+1)), 0o644); err != nil {
		return CharVocab{}, err
	}
	return v, nil
}

func writeSymbolTable(path string, symbols []string) error {
	var sb strings.Builder
	sb.WriteString(Blank + "\t0\n")
	for i, s := range symbols {
		fmt.Fprintf(&sb, "%s\t%d\n", s, i+1)
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

var lexiconSpecials = []string{"!SIL SIL", "<SPOKEN_NOISE> SPN", "<UNK> SPN"}

// BuildLexicon turns a BPE .vocab file (one "piece score" per line) into a
// lexicon where every piece maps to itself. Returns the number of entries.
func BuildLexicon(vocabPath, outPath string) (int, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	entries := map[string]struct{}{}
	for _, s := range lexiconSpecials {
		entries[s] = struct{}{}
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "<blk>") || strings.Contains(line, "<unk>") || strings.Contains(line, "<sos/eos>") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		entries[fields[0]+" "+fields[0]] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read %s: %w", vocabPath, err)
	}

	lines := sortedKeys(entries)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(outPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return 0, err
	}
	return len(lines), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
