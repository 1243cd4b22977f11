package entitykind

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
)

// evictFraction of the cache is dropped at once when it fills up.
const evictFraction = 5

// Config tunes a Classifier.
type Config struct {
	MinLength int
	CacheSize int
}

// Classifier composes strategies by first opinion and memoizes results.
type Classifier struct {
	strategies []Strategy
	cache      *lru.Cache[string, Kind]
	cacheSize  int
	logger     logging.Logger
}

// DefaultStrategies returns the standard ranked chain.  recognizer may be nil.
func DefaultStrategies(minLength int, recognizer Recognizer) []Strategy {
	chain := []Strategy{MinLength{Min: minLength}, OrgMarkers{}}
	if recognizer != nil {
		chain = append(chain, NER{Recognizer: recognizer})
	}
	return append(chain, PersonShape{}, Fallback{})
}

// NewClassifier builds a Classifier over strategies.  A Fallback is appended
// when the chain does not already end with one.
func NewClassifier(cfg Config, strategies []Strategy, logger logging.Logger) (*Classifier, error) {
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 1
	}
	if len(strategies) == 0 || strategies[len(strategies)-1].Name() != (Fallback{}).Name() {
		strategies = append(strategies, Fallback{})
	}
	cache, err := lru.New[string, Kind](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Classifier{
		strategies: strategies,
		cache:      cache,
		cacheSize:  cfg.CacheSize,
		logger:     logger,
	}, nil
}

// Classify returns the kind of text.
func (c *Classifier) Classify(ctx context.Context, text string) Kind {
	key := strings.TrimSpace(text)
	if kind, ok := c.cache.Get(key); ok {
		return kind
	}
	v := c.Decide(ctx, key)
	c.remember(key, v.Kind)
	return v.Kind
}

// Decide runs the strategy chain without consulting the cache.
func (c *Classifier) Decide(ctx context.Context, text string) Verdict {
	for _, s := range c.strategies {
		if v, ok := s.Classify(ctx, text); ok {
			return v
		}
	}
	// unreachable: the chain always ends with Fallback
	return Verdict{Kind: KindOrganization, Strategy: "none"}
}

// ClassifyBatch classifies every distinct text once.
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string) map[string]Kind {
	out := make(map[string]Kind, len(texts))
	for _, t := range texts {
		if _, done := out[t]; done {
			continue
		}
		out[t] = c.Classify(ctx, t)
	}
	c.logger.Debug("classified batch", logging.Int("distinct", len(out)), logging.Int("cached", c.cache.Len()))
	return out
}

// CacheLen reports the number of memoized decisions.
func (c *Classifier) CacheLen() int {
	return c.cache.Len()
}

// remember stores a decision, first evicting the oldest fifth of the cache
// when it is full.
func (c *Classifier) remember(key string, kind Kind) {
	if c.cache.Contains(key) {
		return
	}
	if c.cache.Len() >= c.cacheSize {
		n := c.cacheSize / evictFraction
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			c.cache.RemoveOldest()
		}
	}
	c.cache.Add(key, kind)
}
