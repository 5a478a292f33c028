package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/use-agent/brandscrape/models"
)

// outputFile rewrites the run's JSON output after every retailer so an
// interrupted run keeps what it collected.
type outputFile struct {
	path string
	env  string
	mu   sync.Mutex
}

func newOutputFile(path, env string) *outputFile {
	return &outputFile{path: path, env: env}
}

// Payload wraps records the way they are written.
func (o *outputFile) Payload(records []models.BrandRecord, partial bool) models.Payload {
	return payloadFor(records, partial, o.env)
}

// Write replaces the file atomically.
func (o *outputFile) Write(records []models.BrandRecord, partial bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	data, err := json.MarshalIndent(o.Payload(records, partial), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(o.path), ".brands-*.json")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(tmp.Name(), o.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
