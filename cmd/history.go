package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const maxHistory = 500

// HistoryEntry is one line of the input history file.
type HistoryEntry struct {
	Timestamp time.Time `json:"ts"`
	Input     string    `json:"input"`
}

// History keeps chat inputs across runs in <dir>/input.jsonl.
type History struct {
	path string

	mu      sync.Mutex
	entries []string
}

// OpenHistory loads the history stored under dir.
func OpenHistory(dir string) (*History, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	h := &History{path: filepath.Join(dir, "input.jsonl")}

	f, err := os.Open(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(strings.TrimSpace(scanner.Text())), &e); err != nil || e.Input == "" {
			continue
		}
		h.entries = append(h.entries, e.Input)
	}
	if len(h.entries) > maxHistory {
		h.entries = h.entries[len(h.entries)-maxHistory:]
	}
	return h, scanner.Err()
}

// Entries returns a copy, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Add records input unless it repeats the previous entry.
func (h *History) Add(input string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && h.entries[n-1] == input {
		return nil
	}
	h.entries = append(h.entries, input)

	data, err := json.Marshal(HistoryEntry{Timestamp: time.Now(), Input: input})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}
