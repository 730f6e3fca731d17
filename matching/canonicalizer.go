package matching

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"github.com/sirupsen/logrus"
)

// Canonicalizer resolves raw vendor/product/type strings to canonical labels.
// Lookups hit the mapping store first; only unseen strings reach the
// classifier. The store flushes on every new mapping, so a crashed run
// resumes without repeating classifier calls.
type Canonicalizer struct {
	mu         sync.Mutex
	store      *MappingStore
	classifier Classifier
	logger     *logrus.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewCanonicalizer(store *MappingStore, classifier Classifier, logger *logrus.Logger, maxRetries int, retryDelay time.Duration) *Canonicalizer {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Canonicalizer{
		store:      store,
		classifier: classifier,
		logger:     logger,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Canonicalize maps one raw string to its canonical label. Empty input
// resolves to UnknownLabel without a classifier call. The mutex spans the
// classifier call so concurrent callers never issue duplicate requests for
// the same key.
func (c *Canonicalizer) Canonicalize(ctx context.Context, domain Domain, raw string) (string, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return UnknownLabel, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.store.Get(domain, normalized); ok {
		return entry.Canonical, nil
	}

	label, err := c.classifyWithRetry(ctx, domain, normalized)
	if err != nil {
		// A cancelled run must not persist fallback mappings.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		// Degrade: the raw string becomes its own canonical value, flagged
		// for human correction. A single unresolved string never aborts a run.
		config.LogError(c.logger, "matching", "Canonicalize", "classifier exhausted, using raw value", map[string]any{
			"domain": string(domain),
			"raw":    normalized,
		}, err)
		config.MetricClassifierRequests.WithLabelValues(string(domain), "fallback").Inc()

		fallback := MappingEntry{Raw: normalized, Canonical: normalized, Status: MappingUnverified}
		if putErr := c.store.Put(domain, fallback); putErr != nil {
			return "", putErr
		}
		return normalized, nil
	}

	config.MetricClassifierRequests.WithLabelValues(string(domain), "ok").Inc()
	entry := MappingEntry{Raw: normalized, Canonical: label, Status: MappingVerified}
	if err := c.store.Put(domain, entry); err != nil {
		return "", err
	}
	return label, nil
}

func (c *Canonicalizer) classifyWithRetry(ctx context.Context, domain Domain, normalized string) (string, error) {
	known := c.store.Labels(domain)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		label, err := c.classifier.Classify(ctx, domain, normalized, known)
		if err == nil {
			return label, nil
		}
		lastErr = err
		config.MetricClassifierRequests.WithLabelValues(string(domain), "error").Inc()

		if attempt == c.maxRetries {
			break
		}
		if c.retryDelay > 0 {
			sleep := c.retryDelay * time.Duration(1<<minInt(attempt, 5))
			if sleep > 30*time.Second {
				sleep = 30 * time.Second
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(sleep):
			}
		}
	}
	return "", lastErr
}

// Store exposes the underlying mapping store for reloads and summaries.
func (c *Canonicalizer) Store() *MappingStore {
	return c.store
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
