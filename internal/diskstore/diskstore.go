// Package diskstore implements the cold tier of the tiered cache: a
// content-by-key on-disk store with an in-memory key to path index,
// durable across process restarts.
package diskstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"blinkdb/internal/logging"
)

const shardCount = 1000

const indexFileName = "index.dat"

// Store is the on-disk cold tier. Every operation is synchronous; callers
// on the reactor thread should expect brief blocking on I/O.
type Store struct {
	mu      sync.Mutex
	dataDir string
	index   map[string]string // key -> relative path, "<hash(key) mod 1000>/<hex(key)>.data"
}

// Open loads the index file under dataDir (creating dataDir if absent) and
// returns a ready Store. A missing index file is not an error: it means
// the store starts empty, matching a first run.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("diskstore: create data dir: %w", err)
	}

	s := &Store{
		dataDir: dataDir,
		index:   make(map[string]string),
	}

	if err := s.loadIndex(); err != nil {
		return nil, fmt.Errorf("diskstore: load index: %w", err)
	}

	return s, nil
}

// shardPath derives the deterministic subdirectory and escaped filename for
// a key: hash(key) mod 1000 chooses the shard, and the key is hex-encoded
// to make the filename safe regardless of what bytes the key contains.
func shardPath(key string) string {
	shard := xxhash.Sum64String(key) % shardCount
	name := hex.EncodeToString([]byte(key))
	return filepath.Join(strconv.FormatUint(shard, 10), name+".data")
}

// Put writes value to the key's derived path and records it in the index.
// A write failure is logged and treated as "the value is lost"; the caller
// (TieredCache eviction) has already dropped its in-memory copy and cannot
// undo that, matching the spec's eviction-failure policy.
func (s *Store) Put(ctx context.Context, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel := shardPath(key)
	full := filepath.Join(s.dataDir, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		logging.Error(ctx, logging.ComponentStorage, logging.ActionEvict, "failed to create shard directory", err, map[string]interface{}{"key": key})
		return
	}

	if err := os.WriteFile(full, value, 0644); err != nil {
		logging.Error(ctx, logging.ComponentStorage, logging.ActionEvict, "failed to write disk-tier value", err, map[string]interface{}{"key": key})
		return
	}

	s.index[key] = rel
}

// Get reads the full file at the indexed path. A missing index entry or a
// read failure both surface as (nil, false), which the caller treats as a
// cache miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	rel, ok := s.index[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, rel))
	if err != nil {
		logging.Warn(ctx, logging.ComponentStorage, logging.ActionRestore, "failed to read disk-tier value", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false
	}
	return data, true
}

// Remove deletes the file backing key, if any, and drops the index entry.
// Missing files are ignored: the index is the source of truth.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.index[key]
	if !ok {
		return
	}
	delete(s.index, key)
	_ = os.Remove(filepath.Join(s.dataDir, rel))
}

// Contains reports whether key is present in the index. It never touches
// the filesystem.
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key]
	return ok
}

// Len returns the number of keys currently indexed.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// loadIndex reads index.dat as a sequence of
// {u64 key_len, key_bytes, u64 path_len, path_bytes} little-endian records.
// A truncated final record is treated as a crash artifact and ignored, per
// the "index is source of truth, orphans are ignored" recovery policy.
func (s *Store) loadIndex() error {
	f, err := os.Open(filepath.Join(s.dataDir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		key, err := readLenPrefixed(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// partial trailing record: stop reading, keep what we have.
			return nil
		}
		path, err := readLenPrefixed(r)
		if err != nil {
			return nil
		}
		s.index[string(key)] = string(path)
	}
}

func readLenPrefixed(r *bufio.Reader) ([]byte, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close rewrites the index file from the current in-memory state. Data
// files are never fsynced; this is a warm/cold cache, not a database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := filepath.Join(s.dataDir, indexFileName+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("diskstore: create index temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	for key, path := range s.index {
		if err := writeLenPrefixed(w, []byte(key)); err != nil {
			f.Close()
			return err
		}
		if err := writeLenPrefixed(w, []byte(path)); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("diskstore: flush index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("diskstore: close index temp file: %w", err)
	}

	return os.Rename(tmp, filepath.Join(s.dataDir, indexFileName))
}

func writeLenPrefixed(w *bufio.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
