// Package objectstorage implements the content-addressed on-disk layout
// rooted at STORAGE_DIR: uploads/, audio/{job_id}/, stems/{job_id}/,
// midi/{job_id}/.
package objectstorage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Storage struct {
	root string
}

func New(root string) *Storage {
	return &Storage{root: root}
}

func (s *Storage) UploadsDir() string { return filepath.Join(s.root, "uploads") }

func (s *Storage) AudioDir(jobID string) string { return filepath.Join(s.root, "audio", jobID) }

func (s *Storage) StemsDir(jobID string) string { return filepath.Join(s.root, "stems", jobID) }

func (s *Storage) MidiDir(jobID string) string { return filepath.Join(s.root, "midi", jobID) }

// MasterAudioPath returns the canonical master path for a job, per spec's
// fixed {STORAGE}/audio/{job_id}/master.flac layout.
func (s *Storage) MasterAudioPath(jobID string) string {
	return filepath.Join(s.AudioDir(jobID), "master.flac")
}

func (s *Storage) EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// SaveUpload writes an ingress upload under uploads/<name> and returns its
// path, creating the directory if needed.
func (s *Storage) SaveUpload(name string, r io.Reader) (string, error) {
	if err := s.EnsureDir(s.UploadsDir()); err != nil {
		return "", err
	}
	path := filepath.Join(s.UploadsDir(), name)
	return path, writeFile(path, r)
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// Exists reports whether a path is present on disk.
func (s *Storage) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (s *Storage) Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// DeleteJobDirs recursively removes the three per-job directories. Missing
// directories are not an error (spec.md §4.4).
func (s *Storage) DeleteJobDirs(jobID string) error {
	dirs := []string{s.AudioDir(jobID), s.StemsDir(jobID), s.MidiDir(jobID)}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("deleting %s: %w", dir, err)
		}
	}
	return nil
}
