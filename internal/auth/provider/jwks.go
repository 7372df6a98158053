package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

const (
	defaultJWKSCacheTTL      = 10 * time.Minute
	defaultJWKSMaxStale      = 30 * time.Minute
	defaultJWKSFetchTimeout  = 5 * time.Second
	defaultJWKSRetryAttempts = 3
	defaultJWKSRetryBase     = 200 * time.Millisecond
	defaultJWKSRetryMax      = 2 * time.Second
	maxJWKSBytes             = 1 << 20
)

var errKeyNotFound = errors.New("signing key not found in provider key set")

type keyState int

const (
	keyMissing keyState = iota
	keyFresh
	keyStale
)

// keyCache holds the provider's public signing keys. Fresh keys are served
// directly; stale keys are served while one background refresh runs; a miss
// triggers a synchronous refresh that concurrent callers share.
type keyCache struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	maxStale   time.Duration
	retryBase  time.Duration
	now        func() time.Time

	mu         sync.RWMutex
	keys       map[string]jose.JSONWebKey
	expiresAt  time.Time
	staleUntil time.Time

	refreshMu sync.Mutex
	refreshCh chan struct{}
	lastErr   error
}

func newKeyCache(url string, httpClient *http.Client) *keyCache {
	return &keyCache{
		url:        url,
		httpClient: httpClient,
		ttl:        defaultJWKSCacheTTL,
		maxStale:   defaultJWKSMaxStale,
		retryBase:  defaultJWKSRetryBase,
		now:        time.Now,
		keys:       map[string]jose.JSONWebKey{},
	}
}

// key returns the public key for kid. An empty kid matches the only key in a
// single-key set.
func (c *keyCache) key(ctx context.Context, kid string) (any, error) {
	now := c.now()
	switch k, state := c.lookup(kid, now); state {
	case keyFresh:
		return k.Key, nil
	case keyStale:
		c.refreshAsync()
		return k.Key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, fmt.Errorf("refresh provider keys: %w", err)
	}
	if k, state := c.lookup(kid, c.now()); state != keyMissing {
		return k.Key, nil
	}
	return nil, errKeyNotFound
}

func (c *keyCache) lookup(kid string, now time.Time) (jose.JSONWebKey, keyState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	if !ok && kid == "" && len(c.keys) == 1 {
		for _, only := range c.keys {
			k, ok = only, true
		}
	}
	if !ok {
		return jose.JSONWebKey{}, keyMissing
	}
	if now.Before(c.expiresAt) {
		return k, keyFresh
	}
	if now.Before(c.staleUntil) {
		return k, keyStale
	}
	return jose.JSONWebKey{}, keyMissing
}

func (c *keyCache) refreshAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultJWKSFetchTimeout)
	go func() {
		defer cancel()
		_ = c.refresh(ctx)
	}()
}

func (c *keyCache) refresh(ctx context.Context) error {
	ch, leader := c.beginRefresh()
	if !leader {
		select {
		case <-ch:
			c.refreshMu.Lock()
			defer c.refreshMu.Unlock()
			return c.lastErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := c.doRefresh(ctx)

	c.refreshMu.Lock()
	c.lastErr = err
	close(ch)
	c.refreshCh = nil
	c.refreshMu.Unlock()
	return err
}

func (c *keyCache) beginRefresh() (chan struct{}, bool) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.refreshCh != nil {
		return c.refreshCh, false
	}
	c.refreshCh = make(chan struct{})
	return c.refreshCh, true
}

func (c *keyCache) doRefresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultJWKSFetchTimeout)
	defer cancel()

	keys, err := c.fetchWithRetry(ctx)
	if err != nil {
		return err
	}
	now := c.now()
	c.mu.Lock()
	c.keys = keys
	c.expiresAt = now.Add(c.ttl)
	c.staleUntil = c.expiresAt.Add(c.maxStale)
	c.mu.Unlock()
	return nil
}

func (c *keyCache) fetchWithRetry(ctx context.Context) (map[string]jose.JSONWebKey, error) {
	delay := c.retryBase
	var lastErr error
	for attempt := 0; attempt < defaultJWKSRetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
			delay = min(delay*2, defaultJWKSRetryMax)
		}
		keys, err := c.fetchOnce(ctx)
		if err == nil {
			return keys, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *keyCache) fetchOnce(ctx context.Context) (map[string]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch returned %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, k := range set.Keys {
		if !k.Valid() || !k.IsPublic() || (k.Use != "" && k.Use != "sig") {
			continue
		}
		keys[k.KeyID] = k
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable signing keys")
	}
	return keys, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
