// Package stats keeps aggregate usage counters and writes them through to
// a JSON file after every change.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is the persisted statistics document.
type Record struct {
	TotalSubmitted        int64            `json:"total_submitted"`
	TotalJobs             int64            `json:"total_jobs"`
	TotalDurationSeconds  int64            `json:"total_duration_seconds"`
	CountByProfile        map[string]int64 `json:"count_by_profile"`
	PerUserJobCount       map[string]int64 `json:"per_user_job_count"`
	AverageProcessSeconds float64          `json:"average_process_seconds"`
	CancelledJobs         int64            `json:"cancelled_jobs"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func newRecord() Record {
	return Record{
		CountByProfile:  make(map[string]int64),
		PerUserJobCount: make(map[string]int64),
	}
}

func (r Record) clone() Record {
	out := r
	out.CountByProfile = maps.Clone(r.CountByProfile)
	out.PerUserJobCount = maps.Clone(r.PerUserJobCount)
	if out.CountByProfile == nil {
		out.CountByProfile = make(map[string]int64)
	}
	if out.PerUserJobCount == nil {
		out.PerUserJobCount = make(map[string]int64)
	}
	return out
}

// Store guards a Record and its file.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	data Record
}

// Open loads the statistics file at path. A missing or empty file yields
// zeroed statistics. A file that cannot be decoded is renamed to
// <path>.corrupt and replaced by zeroed statistics.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger, data: newRecord()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	defer file.Close()

	var rec Record
	if err := json.NewDecoder(file).Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		aside := s.path + ".corrupt"
		s.logger.Warn("stats file unreadable, starting from zero",
			slog.String("path", s.path),
			slog.String("moved_to", aside),
			slog.String("error", err.Error()),
		)
		_ = file.Close()
		if err := os.Rename(s.path, aside); err != nil {
			return fmt.Errorf("move corrupt stats file: %w", err)
		}
		return nil
	}

	s.data = rec.clone()
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the current statistics.
func (s *Store) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.clone()
}

// AverageProcessSeconds returns the running processing-time average.
func (s *Store) AverageProcessSeconds() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AverageProcessSeconds
}

// RecordSubmitted counts a request accepted at intake.
func (s *Store) RecordSubmitted() error {
	return s.update(func(r *Record) {
		r.TotalSubmitted++
	})
}

// RecordCompleted counts a finished clip. The average is updated as
// (avg + elapsed) / 2, seeded with elapsed when there is no average yet.
func (s *Store) RecordCompleted(profile, requesterID string, durationSeconds int, elapsed time.Duration) error {
	return s.update(func(r *Record) {
		r.TotalJobs++
		r.TotalDurationSeconds += int64(durationSeconds)
		r.CountByProfile[profile]++
		r.PerUserJobCount[requesterID]++

		secs := elapsed.Seconds()
		if r.AverageProcessSeconds == 0 {
			r.AverageProcessSeconds = secs
		} else {
			r.AverageProcessSeconds = (r.AverageProcessSeconds + secs) / 2
		}
	})
}

// RecordCancelled counts a cancelled job.
func (s *Store) RecordCancelled() error {
	return s.update(func(r *Record) {
		r.CancelledJobs++
	})
}

// update applies fn and persists the result. The in-memory record keeps
// the change even when persisting fails.
func (s *Store) update(fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.data)
	s.data.UpdatedAt = time.Now().UTC()
	return s.persistLocked()
}

// Save writes the current statistics to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// persistLocked writes to a temp file in the same directory, syncs it and
// renames it over the target, so readers never see a partial document.
func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".stats-*.json")
	if err != nil {
		return fmt.Errorf("create temp stats file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.data); err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("flush stats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp stats file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace stats file: %w", err)
	}
	success = true
	return nil
}

// ReadFile decodes a statistics file without taking ownership of it.
func ReadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newRecord(), nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read stats file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode stats file: %w", err)
	}
	return rec.clone(), nil
}
