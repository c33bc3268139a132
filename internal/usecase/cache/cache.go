// Package cache is the two-tier answer cache: exact question match first, then
// embedding similarity over the workspace's entries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Defaults.
const (
	DefaultThreshold = 0.95
	DefaultTTL       = time.Hour
	scanBatch        = 100
)

// Options configures the key space and matching.
type Options struct {
	KeyPrefix string
	Threshold float64
	TTL       time.Duration
}

// Cache answers repeated and paraphrased questions. Backend failures never escape:
// a failed lookup is a miss and a failed write is dropped.
type Cache struct {
	store     db.KVStore
	prefix    string
	threshold float64
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a cache over a key-value backend.
func New(store db.KVStore, opts Options, logger *zap.Logger) *Cache {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.TTL < 0 {
		opts.TTL = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:     store,
		prefix:    opts.KeyPrefix + "cache:",
		threshold: opts.Threshold,
		ttl:       opts.TTL,
		now:       time.Now,
		logger:    logger,
	}
}

// Normalize trims, lowercases and collapses whitespace.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// Key returns the exact-tier key of a question.
func (c *Cache) Key(workspace, question string) string {
	sum := sha256.Sum256([]byte(workspace + ":" + Normalize(question)))
	return c.workspacePrefix(workspace) + hex.EncodeToString(sum[:])
}

func (c *Cache) workspacePrefix(workspace string) string {
	return c.prefix + workspace + ":entry:"
}

func (c *Cache) pattern(workspace string) string {
	return c.prefix + escapeGlob(workspace) + ":entry:*"
}

// scanOwned lists the entry keys of workspace. The glob can also match keys of a
// workspace named "<workspace>:entry:...", so only keys whose suffix is a bare digest
// are kept.
func (c *Cache) scanOwned(ctx context.Context, workspace string) ([]string, error) {
	keys, err := c.store.Scan(ctx, c.pattern(workspace))
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap
	}
	prefix := c.workspacePrefix(workspace)
	owned := make([]string, 0, len(keys))
	for _, k := range keys {
		if digest, ok := strings.CutPrefix(k, prefix); ok && isDigest(digest) {
			owned = append(owned, k)
		}
	}
	return owned, nil
}

func isDigest(s string) bool {
	if len(s) != hex.EncodedLen(sha256.Size) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Lookup tries the exact tier, then, when embedding is non-nil, the similarity tier.
func (c *Cache) Lookup(ctx context.Context, workspace, question string, embedding []float32) (*Entry, Status) {
	e, ok, err := c.exact(ctx, workspace, question)
	if err != nil {
		c.degraded("lookup", workspace, err)
		return nil, Miss
	}
	if ok {
		metrics.AnswerCacheLookupsTotal.WithLabelValues(string(ExactHit)).Inc()
		return e, ExactHit
	}
	if len(embedding) == 0 {
		metrics.AnswerCacheLookupsTotal.WithLabelValues(string(Miss)).Inc()
		return nil, Miss
	}

	e, err = c.similar(ctx, workspace, embedding)
	if err != nil {
		c.degraded("lookup", workspace, err)
		return nil, Miss
	}
	if e == nil {
		metrics.AnswerCacheLookupsTotal.WithLabelValues(string(Miss)).Inc()
		return nil, Miss
	}
	metrics.AnswerCacheLookupsTotal.WithLabelValues(string(SemanticHit)).Inc()
	return e, SemanticHit
}

func (c *Cache) exact(ctx context.Context, workspace, question string) (*Entry, bool, error) {
	key := c.Key(workspace, question)
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	e, err := decode(data)
	if err != nil {
		c.logger.Warn("drop malformed cache entry", zap.String("key", key), zap.Error(err))
		c.purge(ctx, key)
		return nil, false, nil
	}
	if e.expired(c.now()) {
		c.purge(ctx, key)
		return nil, false, nil
	}
	return e, true, nil
}

func (c *Cache) similar(ctx context.Context, workspace string, embedding []float32) (*Entry, error) {
	keys, err := c.scanOwned(ctx, workspace)
	if err != nil {
		return nil, err
	}

	var (
		best    *Entry
		bestSim = -1.0
		stale   []string
		now     = c.now()
	)
	for start := 0; start < len(keys); start += scanBatch {
		batch := keys[start:min(start+scanBatch, len(keys))]
		vals, err := c.store.GetMulti(ctx, batch)
		if err != nil {
			return nil, err
		}
		for i, data := range vals {
			if data == nil {
				continue
			}
			e, err := decode(data)
			if err != nil {
				stale = append(stale, batch[i])
				continue
			}
			if e.expired(now) {
				stale = append(stale, batch[i])
				continue
			}
			if e.Workspace != workspace {
				continue
			}
			sim, ok := cosine(embedding, e.Embedding)
			if ok && sim > bestSim {
				best, bestSim = e, sim
			}
		}
	}
	if len(stale) > 0 {
		c.purge(ctx, stale...)
	}

	if best == nil || bestSim < c.threshold {
		return nil, nil
	}
	best.Similarity = bestSim
	return best, nil
}

// Store writes an answer for the question. Failures are logged and counted; the returned
// error wraps domain.ErrCacheUnavailable for callers that want to know.
func (c *Cache) Store(ctx context.Context, workspace, question string, embedding []float32, p Payload) error {
	e := Entry{
		Workspace:  workspace,
		Question:   Normalize(question),
		Embedding:  embedding,
		Payload:    p,
		CreatedAt:  c.now().UTC(),
		TTLSeconds: int64(c.ttl / time.Second),
	}
	data, err := json.Marshal(&e)
	if err != nil {
		metrics.AnswerCacheWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: encode entry: %w", domain.ErrCacheUnavailable, err)
	}

	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, c.Key(workspace, question), data, c.ttl)
	} else {
		err = c.store.Set(ctx, c.Key(workspace, question), data)
	}
	if err != nil {
		metrics.AnswerCacheWritesTotal.WithLabelValues("error").Inc()
		c.logger.Warn("cache write failed", zap.String("workspace", workspace), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	metrics.AnswerCacheWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Invalidate removes the entry of one question. Returns the number of entries removed.
func (c *Cache) Invalidate(ctx context.Context, workspace, question string) (int, error) {
	key := c.Key(workspace, question)
	if _, err := c.store.Get(ctx, key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	if err := c.store.Del(ctx, key); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return 1, nil
}

// InvalidateWorkspace removes every entry of the workspace.
func (c *Cache) InvalidateWorkspace(ctx context.Context, workspace string) (int, error) {
	keys, err := c.scanOwned(ctx, workspace)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	c.logger.Info("cache invalidated", zap.String("workspace", workspace), zap.Int("entries", len(keys)))
	return len(keys), nil
}

// Stats returns the number of stored entries of the workspace, expired ones not yet
// purged included.
func (c *Cache) Stats(ctx context.Context, workspace string) (int, error) {
	keys, err := c.scanOwned(ctx, workspace)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return len(keys), nil
}

// HealthCheck pings the backend.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *Cache) purge(ctx context.Context, keys ...string) {
	if err := c.store.Del(ctx, keys...); err != nil {
		c.logger.Debug("cache purge failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

func (c *Cache) degraded(op, workspace string, err error) {
	metrics.AnswerCacheLookupsTotal.WithLabelValues("error").Inc()
	c.logger.Warn("cache degraded, treating as miss",
		zap.String("op", op),
		zap.String("workspace", workspace),
		zap.Error(fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)),
	)
}

func decode(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// cosine returns false for mismatched or zero vectors.
func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
