package dataset

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tsawler/go-vocoder/melspec"
)

// SCPDataset serves examples listed in a kaldi-style wav.scp index:
// one `<utterance-id> <audio-path>` pair per line, sorted by id.
type SCPDataset struct {
	*melDataset
}

// NewSCPDataset reads the index file and builds a dataset over the
// audio files it names. Blank lines and #-comments are skipped.
func NewSCPDataset(scpPath string, extractor *melspec.Extractor, melLengthThreshold int, allowCache bool) (*SCPDataset, error) {
	entries, err := parseSCP(scpPath)
	if err != nil {
		return nil, err
	}

	core, err := newMelDataset(entries, extractor, melLengthThreshold, allowCache)
	if err != nil {
		return nil, fmt.Errorf("scp %s: %w", scpPath, err)
	}
	return &SCPDataset{melDataset: core}, nil
}

func parseSCP(path string) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scp %s: %w", path, err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var entries []entry
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("scp %s line %d: want `<id> <path>`, got %q", path, line, text)
		}
		if seen[fields[0]] {
			return nil, fmt.Errorf("scp %s line %d: duplicate utterance id %q", path, line, fields[0])
		}
		seen[fields[0]] = true
		entries = append(entries, entry{id: fields[0], path: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scp %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("scp %s lists no entries", path)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return entries, nil
}
