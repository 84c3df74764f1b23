package knowledge

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// storedEntry is the on-disk record: the entry plus its retrieval vector.
type storedEntry struct {
	schemas.KnowledgeEntry
	Embedding []float32 `json:"embedding"`
}

// FileStore keeps entries in a JSON-lines file and ranks queries in memory.
// Suited to the single-operator workflow; the Postgres store covers shared
// deployments.
type FileStore struct {
	path     string
	embedder schemas.Embedder
	logger   *zap.Logger

	mu      sync.RWMutex
	entries []storedEntry
}

// NewFileStore loads (or creates) the store file.
func NewFileStore(path string, embedder schemas.Embedder, logger *zap.Logger) (*FileStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("cannot initialize file store with a nil embedder")
	}

	s := &FileStore{
		path:     path,
		embedder: embedder,
		logger:   logger.Named("knowledge.file"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.logger.Info("Knowledge file store ready",
		zap.String("path", path),
		zap.Int("entries", len(s.entries)),
	)
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh store
		}
		return fmt.Errorf("failed to open knowledge store %q: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry storedEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("corrupt knowledge store %q line %d: %w", s.path, lineNo, err)
		}
		s.entries = append(s.entries, entry)
	}
	return scanner.Err()
}

// Insert embeds the abstract prompt and appends the entry to memory and
// disk.
func (s *FileStore) Insert(ctx context.Context, entry schemas.KnowledgeEntry) error {
	vector, err := s.embedder.Embed(ctx, entry.AbstractPrompt)
	if err != nil {
		return fmt.Errorf("failed to embed abstract prompt: %w", err)
	}

	stored := storedEntry{KnowledgeEntry: entry, Embedding: vector}
	line, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append knowledge entry: %w", err)
	}

	s.entries = append(s.entries, stored)
	s.logger.Info("Knowledge entry stored",
		zap.String("id", entry.ID),
		zap.String("abstract_prompt", entry.AbstractPrompt),
	)
	return nil
}

// Query embeds the key and returns the topK most similar entries. An empty
// store yields an empty result, never an error.
func (s *FileStore) Query(ctx context.Context, key string, topK int) ([]schemas.RetrievedExample, error) {
	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()
	if empty || topK <= 0 {
		return nil, nil
	}

	keyVector, err := s.embedder.Embed(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query key: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry storedEntry
		score float64
	}
	ranked := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		ranked = append(ranked, scored{entry: e, score: cosineSimilarity(keyVector, e.Embedding)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	examples := make([]schemas.RetrievedExample, 0, topK)
	for _, r := range ranked[:topK] {
		examples = append(examples, schemas.RetrievedExample{
			OriginalPrompt: r.entry.OriginalPrompt,
			Code:           r.entry.Code,
		})
	}
	return examples, nil
}

// List returns every stored entry in insertion order.
func (s *FileStore) List(context.Context) ([]schemas.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]schemas.KnowledgeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e.KnowledgeEntry)
	}
	return entries, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() {}
