package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/services"
)

const (
	indexFileName = "cache_index.json"
	keyPrefixLen  = 16
	evictionSlack = 10
)

// Entry is a cached analysis result keyed by normalized transcript hash.
type Entry struct {
	Key             string              `json:"transcript_hash"`
	Analysis        string              `json:"analysis"`
	Entities        map[string][]string `json:"entities"`
	Metadata        map[string]string   `json:"metadata"`
	CreatedAt       time.Time           `json:"created_at"`
	AccessCount     int                 `json:"access_count"`
	LastAccessed    *time.Time          `json:"last_accessed,omitempty"`
	Keywords        []string            `json:"similarity_keywords"`
	TranscriptBytes int                 `json:"file_size"`
}

type index struct {
	MemoryCacheKeys []string            `json:"memory_cache_keys"`
	SimilarityIndex map[string][]string `json:"similarity_index"`
	LastUpdated     time.Time           `json:"last_updated"`
}

// Stats summarizes cache contents and lookup outcomes since startup.
type Stats struct {
	Entries        int
	Hits           uint64
	SimilarityHits uint64
	Misses         uint64
	KeywordCount   int
	DiskBytes      int64
}

// HitRate returns the fraction of lookups served from cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.SimilarityHits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.SimilarityHits) / float64(total)
}

// Cache stores analysis results on disk with an in-memory map and a keyword
// index for detecting near-duplicate meetings.
type Cache struct {
	dir        string
	maxEntries int
	maxAge     time.Duration
	threshold  float64
	logger     *slog.Logger
	now        func() time.Time

	mu           sync.Mutex
	entries      map[string]*Entry
	keywordIndex map[string][]string

	hits        uint64
	similarHits uint64
	misses      uint64
}

// New opens the cache directory, loads surviving entries, and sweeps out
// entries past the configured age.
func New(section config.Cache, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(section.Dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "cache_init", "create cache directory", err)
	}
	c := &Cache{
		dir:          section.Dir,
		maxEntries:   section.MaxEntries,
		maxAge:       time.Duration(section.MaxAgeDays) * 24 * time.Hour,
		threshold:    section.SimilarityThreshold,
		logger:       logger,
		now:          time.Now,
		entries:      map[string]*Entry{},
		keywordIndex: map[string][]string{},
	}
	c.load()
	c.sweepExpired()
	return c, nil
}

// Get returns the cached entry for the transcript, matching first on exact
// normalized hash and then on keyword similarity above the threshold. A hit
// bumps and persists the entry's access count.
func (c *Cache) Get(transcript string) (Entry, bool) {
	key := HashTranscript(transcript)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.touchLocked(entry)
		c.hits++
		c.logger.Debug("cache hit", logging.String("match", "exact"), logging.String("key", shortKey(key)))
		return *entry, true
	}

	if entry := c.bestSimilarLocked(transcript); entry != nil {
		c.touchLocked(entry)
		c.similarHits++
		c.logger.Debug("cache hit", logging.String("match", "similar"), logging.String("key", shortKey(entry.Key)))
		return *entry, true
	}

	c.misses++
	c.logger.Debug("cache miss", logging.String("key", shortKey(key)))
	return Entry{}, false
}

// Put caches an analysis result and returns the transcript hash it was
// stored under. Inserting past the entry limit evicts the least recently
// accessed entries down to the retention floor.
func (c *Cache) Put(transcript, analysis string, entities map[string][]string, metadata map[string]string) (string, error) {
	key := HashTranscript(transcript)
	keywords := ExtractKeywords(transcript, analysis, entities)
	if metadata == nil {
		metadata = map[string]string{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &Entry{
		Key:             key,
		Analysis:        analysis,
		Entities:        entities,
		Metadata:        metadata,
		CreatedAt:       c.now(),
		Keywords:        keywords,
		TranscriptBytes: len(transcript),
	}
	c.entries[key] = entry
	for _, keyword := range keywords {
		c.indexKeywordLocked(keyword, key)
	}

	if err := c.writeEntryLocked(entry); err != nil {
		return "", err
	}
	c.writeIndexLocked()

	c.logger.Debug("cached analysis",
		logging.String("key", shortKey(key)),
		logging.Int("keywords", len(keywords)))

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictLocked()
	}
	return key, nil
}

// Stats reports entry counts, lookup outcomes, and on-disk size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var diskBytes int64
	matches, _ := filepath.Glob(filepath.Join(c.dir, "*.json"))
	for _, path := range matches {
		if info, err := os.Stat(path); err == nil {
			diskBytes += info.Size()
		}
	}
	return Stats{
		Entries:        len(c.entries),
		Hits:           c.hits,
		SimilarityHits: c.similarHits,
		Misses:         c.misses,
		KeywordCount:   len(c.keywordIndex),
		DiskBytes:      diskBytes,
	}
}

// Clear removes every entry from memory and disk.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key := range c.entries {
		if err := os.Remove(c.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	c.entries = map[string]*Entry{}
	c.keywordIndex = map[string][]string{}
	c.writeIndexLocked()
	if firstErr != nil {
		return services.Wrap(services.ErrStorage, "", "cache_clear", "remove cache entries", firstErr)
	}
	return nil
}

func (c *Cache) bestSimilarLocked(transcript string) *Entry {
	queryKeywords := QueryKeywords(transcript)
	if len(queryKeywords) == 0 {
		return nil
	}
	var best *Entry
	bestScore := 0.0
	for _, entry := range c.entries {
		if len(entry.Keywords) == 0 {
			continue
		}
		score := Similarity(queryKeywords, entry.Keywords)
		if score >= c.threshold && score > bestScore {
			bestScore = score
			best = entry
		}
	}
	return best
}

func (c *Cache) touchLocked(entry *Entry) {
	entry.AccessCount++
	accessed := c.now()
	entry.LastAccessed = &accessed
	if err := c.writeEntryLocked(entry); err != nil {
		c.logger.Warn("could not persist cache entry", logging.Error(err))
	}
}

func (c *Cache) indexKeywordLocked(keyword, key string) {
	for _, existing := range c.keywordIndex[keyword] {
		if existing == key {
			return
		}
	}
	c.keywordIndex[keyword] = append(c.keywordIndex[keyword], key)
}

// evictLocked drops least recently accessed entries down to a floor below
// the limit so back-to-back inserts do not evict on every call. Limits too
// small to absorb the slack trim straight to the limit instead.
func (c *Cache) evictLocked() {
	target := c.maxEntries - evictionSlack
	if target < 1 {
		target = c.maxEntries
	}
	if len(c.entries) <= target {
		return
	}

	type aged struct {
		key  string
		when time.Time
	}
	order := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		when := entry.CreatedAt
		if entry.LastAccessed != nil {
			when = *entry.LastAccessed
		}
		order = append(order, aged{key: key, when: when})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].when.Before(order[j].when) })

	removed := 0
	for _, candidate := range order {
		if len(c.entries) <= target {
			break
		}
		c.removeLocked(candidate.key)
		removed++
	}
	c.writeIndexLocked()
	c.logger.Info("evicted cache entries", logging.Int("removed", removed), logging.Int("remaining", len(c.entries)))
}

func (c *Cache) sweepExpired() {
	if c.maxAge <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.maxAge)
	var expired []string
	for key, entry := range c.entries {
		if entry.CreatedAt.Before(cutoff) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeLocked(key)
	}
	if len(expired) > 0 {
		c.writeIndexLocked()
		c.logger.Info("removed expired cache entries", logging.Int("removed", len(expired)))
	}
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for keyword, keys := range c.keywordIndex {
		trimmed := keys[:0]
		for _, existing := range keys {
			if existing != key {
				trimmed = append(trimmed, existing)
			}
		}
		if len(trimmed) == 0 {
			delete(c.keywordIndex, keyword)
		} else {
			c.keywordIndex[keyword] = trimmed
		}
	}
	if err := os.Remove(c.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("could not remove cache file", logging.String("key", shortKey(key)), logging.Error(err))
	}
}

func (c *Cache) load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(c.dir, indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Info("no existing analysis cache, starting fresh", logging.String("dir", c.dir))
		return
	}
	if err != nil {
		c.logger.Warn("could not read cache index", logging.Error(err))
		return
	}
	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		c.logger.Warn("cache index corrupted, starting fresh", logging.Error(err))
		return
	}

	loaded := 0
	for _, key := range idx.MemoryCacheKeys {
		path := c.entryPath(key)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || entry.Key == "" {
			c.logger.Debug("dropping corrupted cache entry", logging.String("key", shortKey(key)))
			_ = os.Remove(path)
			continue
		}
		c.entries[entry.Key] = &entry
		loaded++
	}
	if idx.SimilarityIndex != nil {
		for keyword, keys := range idx.SimilarityIndex {
			kept := keys[:0]
			for _, key := range keys {
				if _, ok := c.entries[key]; ok {
					kept = append(kept, key)
				}
			}
			if len(kept) > 0 {
				c.keywordIndex[keyword] = kept
			}
		}
	}
	c.logger.Info("loaded analysis cache",
		logging.Int("entries", loaded),
		logging.Int("keywords", len(c.keywordIndex)))
}

func (c *Cache) writeEntryLocked(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrStorage, "", "cache_put", "encode cache entry", err)
	}
	if err := os.WriteFile(c.entryPath(entry.Key), data, 0o644); err != nil {
		return services.Wrap(services.ErrStorage, "", "cache_put", "write cache entry", err)
	}
	return nil
}

func (c *Cache) writeIndexLocked() {
	idx := index{
		MemoryCacheKeys: make([]string, 0, len(c.entries)),
		SimilarityIndex: c.keywordIndex,
		LastUpdated:     c.now(),
	}
	for key := range c.entries {
		idx.MemoryCacheKeys = append(idx.MemoryCacheKeys, key)
	}
	sort.Strings(idx.MemoryCacheKeys)

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		c.logger.Warn("could not encode cache index", logging.Error(err))
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, indexFileName), data, 0o644); err != nil {
		c.logger.Warn("could not write cache index", logging.Error(err))
	}
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.json", key))
}

// shortKey abbreviates a transcript hash for log lines.
func shortKey(key string) string {
	if len(key) > keyPrefixLen {
		return key[:keyPrefixLen]
	}
	return key
}
