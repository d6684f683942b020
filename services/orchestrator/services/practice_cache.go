// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services holds orchestrator-internal services that sit between
// the HTTP handlers and the persistence layer.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
	"github.com/casewise/casewise/services/orchestrator/store"
)

const (
	// practiceCacheTTL bounds how stale a practice record used for prompt
	// context may be. Onboarding turns bypass the cache entirely since
	// they mutate the record they read.
	practiceCacheTTL = 5 * time.Minute

	practiceCacheSweep = 10 * time.Minute
)

// PracticeCache serves practice records with a read-through TTL cache.
//
// # Description
//
//	GENERAL_QA and REQUEST_CONSULTATION turns read practice details only
//	to build prompt context, so a short TTL is fine and saves a store
//	round trip per token stream. Concurrent misses for the same slug are
//	collapsed to one store read via singleflight.
//
// # Limitations
//
//   - Invalidate must be called after any practice write; onboarding
//     code paths should prefer GetFresh.
type PracticeCache struct {
	store  store.PracticeStore
	cache  *gocache.Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewPracticeCache wires the cache in front of the given practice store.
func NewPracticeCache(st store.PracticeStore, logger *slog.Logger) *PracticeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PracticeCache{
		store:  st,
		cache:  gocache.New(practiceCacheTTL, practiceCacheSweep),
		logger: logger,
	}
}

func slugKey(slug string) string { return "slug:" + slug }

// GetBySlug returns the practice for slug, from cache when fresh.
// Misses hit the store once per slug regardless of concurrent callers.
func (pc *PracticeCache) GetBySlug(ctx context.Context, slug string) (*datatypes.PracticeDetails, error) {
	key := slugKey(slug)
	if v, ok := pc.cache.Get(key); ok {
		if p, ok := v.(*datatypes.PracticeDetails); ok {
			return p, nil
		}
	}

	v, err, shared := pc.group.Do(key, func() (any, error) {
		p, err := pc.store.GetPracticeBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		pc.cache.Set(key, p, gocache.DefaultExpiration)
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("practice lookup %q: %w", slug, err)
	}
	if shared {
		pc.logger.Debug("practice lookup coalesced", "slug", slug)
	}
	return v.(*datatypes.PracticeDetails), nil
}

// GetFresh bypasses the cache and refreshes the cached entry. Onboarding
// turns use this so the profile score reflects the latest writes.
func (pc *PracticeCache) GetFresh(ctx context.Context, slug string) (*datatypes.PracticeDetails, error) {
	p, err := pc.store.GetPracticeBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	pc.cache.Set(slugKey(slug), p, gocache.DefaultExpiration)
	return p, nil
}

// Invalidate drops the cached entry for slug after a write.
func (pc *PracticeCache) Invalidate(slug string) {
	pc.cache.Delete(slugKey(slug))
}
