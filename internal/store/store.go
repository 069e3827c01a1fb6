// Package store keeps a history of discovery runs.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/uiprobe/internal/report"
)

var bucketRuns = []byte("runs")

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one stored discovery result.
type Run struct {
	ID         string         `json:"id"`
	SavedAt    time.Time      `json:"saved_at"`
	ReportPath string         `json:"report_path"`
	Result     *report.Result `json:"result"`
}

// Summary is a listing entry.
type Summary struct {
	ID         string    `json:"id"`
	SavedAt    time.Time `json:"saved_at"`
	URL        string    `json:"url"`
	Backend    string    `json:"backend"`
	Timestamp  string    `json:"timestamp"`
	Total      int       `json:"total"`
	ReportPath string    `json:"report_path"`
}

// Store persists runs.
type Store interface {
	// Put assigns the run an ID, stores it and returns the ID.
	Put(run *Run) (string, error)
	Get(id string) (*Run, error)
	// List returns up to limit runs, newest first. limit <= 0 means all.
	List(limit int) ([]Summary, error)
	Close() error
}

func summarize(run *Run) Summary {
	s := Summary{
		ID:         run.ID,
		SavedAt:    run.SavedAt,
		ReportPath: run.ReportPath,
	}
	if run.Result != nil {
		s.URL = run.Result.URL
		s.Backend = run.Result.Backend
		s.Timestamp = run.Result.Timestamp
		s.Total = run.Result.Elements.ComputeStatistics().Total
	}
	return s
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens or creates a run history database.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Put stores run under the next sequence number.
func (s *BoltStore) Put(run *Run) (string, error) {
	if run == nil || run.Result == nil {
		return "", fmt.Errorf("run has no result")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		run.ID = strconv.FormatUint(seq, 10)
		if run.SavedAt.IsZero() {
			run.SavedAt = time.Now()
		}

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// Get loads one run.
func (s *BoltStore) Get(id string) (*Run, error) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q", id)
	}

	var run *Run
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get(seqKey(seq))
		if data == nil {
			return ErrNotFound
		}

		decoded, err := decodeRun(data)
		if err != nil {
			return err
		}
		run = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List walks the bucket backwards so the newest run comes first.
func (s *BoltStore) List(limit int) ([]Summary, error) {
	out := make([]Summary, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			run, err := decodeRun(v)
			if err != nil {
				return err
			}
			out = append(out, summarize(run))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func decodeRun(data []byte) (*Run, error) {
	var raw struct {
		ID         string          `json:"id"`
		SavedAt    time.Time       `json:"saved_at"`
		ReportPath string          `json:"report_path"`
		Result     json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	result, err := report.Unmarshal(raw.Result)
	if err != nil {
		return nil, err
	}

	return &Run{
		ID:         raw.ID,
		SavedAt:    raw.SavedAt,
		ReportPath: raw.ReportPath,
		Result:     result,
	}, nil
}

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[uint64]*Run
	seq  uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uint64]*Run)}
}

// Put stores a deep copy of run.
func (s *MemoryStore) Put(run *Run) (string, error) {
	if run == nil || run.Result == nil {
		return "", fmt.Errorf("run has no result")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	run.ID = strconv.FormatUint(s.seq, 10)
	if run.SavedAt.IsZero() {
		run.SavedAt = time.Now()
	}

	cp := *run
	cp.Result = run.Result.Clone()
	s.runs[s.seq] = &cp
	return run.ID, nil
}

// Get returns a copy of a stored run.
func (s *MemoryStore) Get(id string) (*Run, error) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[seq]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	cp.Result = run.Result.Clone()
	return &cp, nil
}

// List returns summaries newest first.
func (s *MemoryStore) List(limit int) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs := make([]uint64, 0, len(s.runs))
	for seq := range s.runs {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })

	out := make([]Summary, 0, len(seqs))
	for _, seq := range seqs {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, summarize(s.runs[seq]))
	}
	return out, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
