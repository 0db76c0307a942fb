package memory

import (
	"strconv"
	"sync"
)

// cacheKeyThreshold is the content length at which cache keys switch to a
// truncated prefix + length form, to bound key size.
const cacheKeyThreshold = 1000

// cacheKeyPrefixLen is how much content the truncated key keeps.
const cacheKeyPrefixLen = 64

// Estimator estimates token counts with a cheap character heuristic:
// one token per CJK character plus one per four other characters. This is
// deliberately not a tokenizer; the budget invariants are defined against
// this estimate.
type Estimator struct {
	mu         sync.Mutex
	cache      map[string]int
	maxEntries int
}

// NewEstimator creates an Estimator with the given cache capacity.
// A capacity of zero or less uses the default of 2048 entries.
func NewEstimator(maxEntries int) *Estimator {
	if maxEntries <= 0 {
		maxEntries = 2048
	}
	return &Estimator{
		cache:      make(map[string]int),
		maxEntries: maxEntries,
	}
}

// Estimate returns the estimated token count for the content.
// Results are cached per message; once the cache exceeds its capacity the
// whole cache is cleared rather than evicted entry by entry.
func (e *Estimator) Estimate(content string) int {
	key := cacheKey(content)

	e.mu.Lock()
	if n, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return n
	}
	e.mu.Unlock()

	n := estimateTokens(content)

	e.mu.Lock()
	if len(e.cache) >= e.maxEntries {
		e.cache = make(map[string]int)
	}
	e.cache[key] = n
	e.mu.Unlock()

	return n
}

// CacheSize returns the number of cached estimates.
func (e *Estimator) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// cacheKey derives the cache key for a content string. Long content is
// keyed by a prefix plus the total length so keys stay bounded.
func cacheKey(content string) string {
	if len(content) < cacheKeyThreshold {
		return content
	}
	return content[:cacheKeyPrefixLen] + "#" + strconv.Itoa(len(content))
}

// estimateTokens computes the raw heuristic without caching.
func estimateTokens(content string) int {
	cjk := 0
	other := 0
	for _, r := range content {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return cjk + (other+3)/4
}

// isCJK reports whether the rune is a CJK ideograph, kana, or hangul.
// These scripts sit near one token per character in common tokenizers.
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK Extension A
		return true
	case r >= 0x3040 && r <= 0x30FF: // Hiragana + Katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // Hangul Syllables
		return true
	case r >= 0xF900 && r <= 0xFAFF: // CJK Compatibility Ideographs
		return true
	default:
		return false
	}
}
