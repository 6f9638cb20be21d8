package report

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/calibration.report/internal/fsutil"
)

// Artifact is one rendered output file held in memory.
type Artifact struct {
	Name string
	Data []byte
}

// Sink collects rendered artifacts and writes them into one directory only
// once every artifact has rendered. A failed render leaves the directory
// untouched; a failed write removes whatever this flush already wrote.
type Sink struct {
	fs        fsutil.FileSystem
	dir       string
	artifacts []Artifact
}

// NewSink returns a sink writing into dir through fs.
func NewSink(fs fsutil.FileSystem, dir string) *Sink {
	return &Sink{fs: fs, dir: dir}
}

// Dir returns the output directory.
func (s *Sink) Dir() string { return s.dir }

// Stage renders one artifact into memory.
func (s *Sink) Stage(name string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	s.artifacts = append(s.artifacts, Artifact{Name: name, Data: buf.Bytes()})
	tracef("staged %s (%d bytes)", name, buf.Len())
	return nil
}

// Staged returns the names of the staged artifacts in staging order.
func (s *Sink) Staged() []string {
	names := make([]string, len(s.artifacts))
	for i, a := range s.artifacts {
		names[i] = a.Name
	}
	return names
}

// Flush writes every staged artifact. Each file is written under a
// temporary name first and renamed into place once all temporaries exist.
// It returns the final paths.
func (s *Sink) Flush() ([]string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", s.dir, err)
	}

	temps := make([]string, 0, len(s.artifacts))
	cleanup := func(paths []string) {
		for _, p := range paths {
			if err := s.fs.Remove(p); err != nil {
				opsf("cleanup %s: %v", p, err)
			}
		}
	}

	for _, a := range s.artifacts {
		tmp := filepath.Join(s.dir, "."+a.Name+".tmp")
		if err := s.fs.WriteFile(tmp, a.Data, 0o644); err != nil {
			cleanup(temps)
			return nil, fmt.Errorf("write %s: %w", a.Name, err)
		}
		temps = append(temps, tmp)
	}

	written := make([]string, 0, len(s.artifacts))
	for i, a := range s.artifacts {
		final := filepath.Join(s.dir, a.Name)
		if err := s.fs.Rename(temps[i], final); err != nil {
			cleanup(temps[i:])
			cleanup(written)
			return nil, fmt.Errorf("move %s into place: %w", a.Name, err)
		}
		written = append(written, final)
	}

	s.artifacts = nil
	diagf("wrote %d files to %s", len(written), s.dir)
	return written, nil
}
