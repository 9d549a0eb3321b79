package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Store persists journal entries.
type Store interface {
	Put(ctx context.Context, e *Entry) error
	Get(ctx context.Context, gameID string, turn int) (*Entry, error)
	Turns(ctx context.Context, gameID string) ([]int, error)
}

// FileStore keeps one compressed file per turn under dir/<game>/.
type FileStore struct {
	dir   string
	codec Codec
}

// NewFileStore returns a store rooted at dir. A nil codec selects zstd.
func NewFileStore(dir string, codec Codec) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("journal: empty directory")
	}
	if codec == nil {
		codec = Zstd{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

func (s *FileStore) path(gameID string, turn int) string {
	return filepath.Join(s.dir, gameID, fmt.Sprintf("turn-%06d.%s", turn, s.codec.Name()))
}

// Put writes e atomically: the entry goes to a temp file that is renamed
// into place once complete.
func (s *FileStore) Put(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validGameID(e.Header.GameID); err != nil {
		return err
	}
	final := s.path(e.Header.GameID, e.Header.Turn)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), ".turn-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, s.codec, e); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("journal: write turn %d: %w", e.Header.Turn, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), final)
}

// Get reads the entry for gameID and turn.
func (s *FileStore) Get(ctx context.Context, gameID string, turn int) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validGameID(gameID); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(gameID, turn))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: game %q turn %d", ErrEntryNotFound, gameID, turn)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, s.codec)
}

// Turns lists the journaled turns of gameID in ascending order.
func (s *FileStore) Turns(ctx context.Context, gameID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validGameID(gameID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, gameID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	suffix := "." + s.codec.Name()
	var turns []int
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, "turn-") || !strings.HasSuffix(name, suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "turn-"), suffix))
		if err != nil {
			continue
		}
		turns = append(turns, n)
	}
	sort.Ints(turns)
	return turns, nil
}

func validGameID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("journal: invalid game id %q", id)
	}
	return nil
}

// MemoryStore keeps encoded entries in memory. Entries still pass through
// the codec so tests exercise the same path as FileStore.
type MemoryStore struct {
	codec Codec

	mu      sync.RWMutex
	entries map[string]map[int][]byte
}

// NewMemoryStore returns an empty store. A nil codec selects zstd.
func NewMemoryStore(codec Codec) *MemoryStore {
	if codec == nil {
		codec = Zstd{}
	}
	return &MemoryStore{codec: codec, entries: make(map[string]map[int][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, s.codec, e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	game := s.entries[e.Header.GameID]
	if game == nil {
		game = make(map[int][]byte)
		s.entries[e.Header.GameID] = game
	}
	game[e.Header.Turn] = buf.Bytes()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, gameID string, turn int) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.entries[gameID][turn]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: game %q turn %d", ErrEntryNotFound, gameID, turn)
	}
	return Decode(bytes.NewReader(raw), s.codec)
}

func (s *MemoryStore) Turns(ctx context.Context, gameID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]int, 0, len(s.entries[gameID]))
	for t := range s.entries[gameID] {
		turns = append(turns, t)
	}
	sort.Ints(turns)
	return turns, nil
}
