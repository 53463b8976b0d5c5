package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"loginguard/internal/model"
)

// WriteCorpus writes one labeled event per line.
func WriteCorpus(w io.Writer, events []model.LabeledEvent) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("write corpus line %d: %w", i+1, err)
		}
	}
	return bw.Flush()
}

// ReadCorpus reads JSON Lines. Blank lines are skipped; a malformed line
// fails the whole read with its line number.
func ReadCorpus(r io.Reader) ([]model.LabeledEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var out []model.LabeledEvent
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var ev model.LabeledEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func WriteCorpusFile(path string, events []model.LabeledEvent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCorpus(f, events); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadCorpusFile(path string) ([]model.LabeledEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCorpus(f)
}
