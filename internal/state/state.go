// Package state persists completion stamps of pipeline steps so reruns can
// skip work whose inputs did not change.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const keyPrefix = "step/"

// Stamp records a completed step.
type Stamp struct {
	Fingerprint string    `json:"fingerprint"`
	Outputs     []string  `json:"outputs"`
	RunID       string    `json:"run_id"`
	Finished    time.Time `json:"finished"`
}

// Store is a LevelDB-backed stamp table. Safe for concurrent use.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if needed) the store in dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a store that lives only as long as the process.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the stamp for step; ok is false when none is recorded.
func (s *Store) Get(step string) (st Stamp, ok bool, err error) {
	b, err := s.db.Get([]byte(keyPrefix+step), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Stamp{}, false, nil
	}
	if err != nil {
		return Stamp{}, false, err
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return Stamp{}, false, fmt.Errorf("state %s: %w", step, err)
	}
	return st, true, nil
}

func (s *Store) Put(step string, st Stamp) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(keyPrefix+step), b, nil)
}

func (s *Store) Delete(step string) error {
	return s.db.Delete([]byte(keyPrefix+step), nil)
}

// Steps lists recorded step names in key order.
func (s *Store) Steps() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, string(it.Key()[len(keyPrefix):]))
	}
	return out, it.Error()
}

// Fingerprint hashes the step arguments together with the path, size and
// modification time of every input. Directory inputs are walked.
func Fingerprint(args []string, inputs ...string) (string, error) {
	h := xxhash.New64()
	for _, a := range args {
		h.WriteString(a)
		h.WriteString("\x00")
	}
	h.WriteString("\x01")
	for _, in := range inputs {
		err := filepath.WalkDir(in, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && p != in {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			h.WriteString(p)
			h.WriteString("\x00")
			if !info.IsDir() {
				h.WriteString(strconv.FormatInt(info.Size(), 10))
				h.WriteString("\x00")
				h.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
				h.WriteString("\x00")
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", in, err)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// OutputsExist reports whether every path exists.
func OutputsExist(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
