// Package chunked persists an unbounded logical collection over a storage.Driver
// whose individual values have a size ceiling.
//
// A collection named "c" is stored as an index entry "c_index" and N chunk
// entries "c_1" ... "c_N", each holding at most ChunkSize JSON-encoded records.
// The index is the only source of truth for which chunks belong to the
// collection. Every Save rebuilds the partition from scratch: old chunks are
// removed, new chunks are written, and the new index is written last. A crash
// mid-save can leave unreferenced chunks behind; Load ignores them. When the
// index itself is unreadable, Load falls back to every chunk-shaped key in
// chunk order and the next save writes a fresh index.
//
// Mutating components must go through Update, which reloads the persisted
// collection and saves the result under the store's lock, so concurrent
// read-modify-write cycles on one collection never lose each other's writes.
package chunked

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"sync"

	"github.com/papercomputeco/echoes/pkg/storage"
)

// ErrNoChange may be returned by an Update function to skip the save.
var ErrNoChange = errors.New("no change")

// Index lists the chunks that compose a collection.
type Index struct {
	Chunks     []string `json:"chunks"`
	TotalCount int      `json:"totalCount"`
	LastChunk  *string  `json:"lastChunk"`
}

// Collection names a logical collection and its chunk size. Collections with
// larger records should use smaller chunk sizes.
type Collection struct {
	Name      string
	ChunkSize int
}

// Store persists a collection of T in chunks.
type Store[T any] struct {
	driver     storage.Driver
	collection Collection
	chunkKeyRe *regexp.Regexp
	logger     *slog.Logger

	// mu serializes whole-collection read-modify-write cycles.
	mu sync.Mutex
}

// New creates a Store for the given collection.
func New[T any](driver storage.Driver, collection Collection, logger *slog.Logger) (*Store[T], error) {
	if driver == nil {
		return nil, errors.New("chunked store requires a storage driver")
	}
	if collection.Name == "" {
		return nil, errors.New("chunked store requires a collection name")
	}
	if collection.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d for collection %s", collection.ChunkSize, collection.Name)
	}

	return &Store[T]{
		driver:     driver,
		collection: collection,
		chunkKeyRe: regexp.MustCompile("^" + regexp.QuoteMeta(collection.Name) + `_(\d+)$`),
		logger:     logger.With("collection", collection.Name),
	}, nil
}

// Name returns the collection name.
func (s *Store[T]) Name() string {
	return s.collection.Name
}

// ChunkSize returns the maximum number of records per chunk.
func (s *Store[T]) ChunkSize() int {
	return s.collection.ChunkSize
}

// IndexKey returns the storage key of the collection index.
func (s *Store[T]) IndexKey() string {
	return s.collection.Name + "_index"
}

// ChunkKey returns the storage key of chunk n (1-based).
func (s *Store[T]) ChunkKey(n int) string {
	return s.collection.Name + "_" + strconv.Itoa(n)
}

// Index reads the collection index. A missing index is an empty collection.
func (s *Store[T]) Index(ctx context.Context) (Index, error) {
	raw, err := s.driver.Get(ctx, s.IndexKey())
	if err != nil {
		if storage.IsNotFound(err) {
			return Index{Chunks: []string{}}, nil
		}
		return Index{}, fmt.Errorf("reading index %s: %w", s.IndexKey(), err)
	}

	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return Index{}, fmt.Errorf("decoding index %s: %w", s.IndexKey(), err)
	}
	if idx.Chunks == nil {
		idx.Chunks = []string{}
	}
	return idx, nil
}

// Load returns every record of the collection in index order. Chunks that
// cannot be read or decoded are skipped with a warning.
func (s *Store[T]) Load(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save replaces the collection with records.
func (s *Store[T]) Save(ctx context.Context, records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, records)
}

// Update loads the collection, applies fn and saves the result, holding the
// collection lock for the whole cycle. If fn returns ErrNoChange nothing is
// written and Update returns nil; any other error aborts without writing.
func (s *Store[T]) Update(ctx context.Context, fn func(records []T) ([]T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	next, err := fn(records)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.save(ctx, next)
}

// Retain applies keep to the collection and saves the result. It returns the
// number of records dropped.
func (s *Store[T]) Retain(ctx context.Context, keep func(records []T) []T) (int, error) {
	removed := 0
	err := s.Update(ctx, func(records []T) ([]T, error) {
		kept := keep(records)
		removed = len(records) - len(kept)
		if removed == 0 {
			return nil, ErrNoChange
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info("retention applied", "removed", removed)
	}
	return removed, nil
}

// Clear removes every record of the collection.
func (s *Store[T]) Clear(ctx context.Context) error {
	return s.Save(ctx, nil)
}

func (s *Store[T]) load(ctx context.Context) ([]T, error) {
	idx, err := s.Index(ctx)
	if err != nil {
		s.logger.Warn("index unreadable, loading chunks found by scan", "error", err)
		keys, serr := s.scanChunks(ctx)
		if serr != nil {
			return nil, errors.Join(err, serr)
		}
		idx = Index{Chunks: keys}
	}

	records := make([]T, 0, idx.TotalCount)
	for _, key := range idx.Chunks {
		raw, err := s.driver.Get(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unreadable chunk", "chunk", key, "error", err)
			continue
		}

		var chunk []T
		if err := json.Unmarshal(raw, &chunk); err != nil {
			s.logger.Warn("skipping undecodable chunk", "chunk", key, "error", err)
			continue
		}
		records = append(records, chunk...)
	}

	s.logger.Debug("loaded collection", "records", len(records), "chunks", len(idx.Chunks))
	return records, nil
}

func (s *Store[T]) save(ctx context.Context, records []T) error {
	oldChunks, err := s.currentChunks(ctx)
	if err != nil {
		return err
	}

	for _, key := range oldChunks {
		if err := s.driver.Remove(ctx, key); err != nil {
			return fmt.Errorf("removing chunk %s: %w", key, err)
		}
	}

	size := s.collection.ChunkSize
	chunks := make([]string, 0, (len(records)+size-1)/size)
	for i := 0; i < len(records); i += size {
		end := min(i+size, len(records))
		key := s.ChunkKey(i/size + 1)

		raw, err := json.Marshal(records[i:end])
		if err != nil {
			return fmt.Errorf("encoding chunk %s: %w", key, err)
		}
		if err := s.driver.Set(ctx, key, raw); err != nil {
			return fmt.Errorf("writing chunk %s: %w", key, err)
		}
		chunks = append(chunks, key)
	}

	idx := Index{Chunks: chunks, TotalCount: len(records)}
	if len(chunks) > 0 {
		last := chunks[len(chunks)-1]
		idx.LastChunk = &last
	}

	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding index %s: %w", s.IndexKey(), err)
	}
	if err := s.driver.Set(ctx, s.IndexKey(), raw); err != nil {
		return fmt.Errorf("writing index %s: %w", s.IndexKey(), err)
	}

	s.logger.Debug("saved collection", "records", len(records), "chunks", len(chunks))
	return nil
}

// currentChunks returns the chunk keys to delete before a save. When the index
// is unreadable it falls back to scanning the substrate for chunk-shaped keys.
func (s *Store[T]) currentChunks(ctx context.Context) ([]string, error) {
	idx, err := s.Index(ctx)
	if err == nil {
		return idx.Chunks, nil
	}

	s.logger.Warn("index unreadable, scanning for chunks", "error", err)
	keys, serr := s.scanChunks(ctx)
	if serr != nil {
		return nil, errors.Join(err, serr)
	}
	return keys, nil
}

// scanChunks lists the chunk keys present in the substrate, ordered by chunk
// number.
func (s *Store[T]) scanChunks(ctx context.Context) ([]string, error) {
	keys, err := s.driver.Keys(ctx, s.collection.Name+"_")
	if err != nil {
		return nil, fmt.Errorf("scanning chunks of %s: %w", s.collection.Name, err)
	}

	type numbered struct {
		key string
		n   int
	}
	var found []numbered
	for _, k := range keys {
		m := s.chunkKeyRe.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, numbered{key: k, n: n})
	}
	slices.SortFunc(found, func(a, b numbered) int { return a.n - b.n })

	out := make([]string, 0, len(found))
	for _, f := range found {
		out = append(out, f.key)
	}
	return out, nil
}

// KeepNewest returns a retention function that keeps the limit newest records
// according to cmp (which orders older before newer), newest first.
// Records for which pin returns true are always kept in addition.
func KeepNewest[T any](limit int, cmp func(a, b T) int, pin func(T) bool) func([]T) []T {
	return func(records []T) []T {
		if len(records) <= limit {
			return records
		}

		sorted := slices.Clone(records)
		slices.SortStableFunc(sorted, func(a, b T) int { return cmp(b, a) })

		kept := make([]T, 0, limit)
		for i, r := range sorted {
			if i < limit || (pin != nil && pin(r)) {
				kept = append(kept, r)
			}
		}
		return kept
	}
}
