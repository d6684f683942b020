// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
	"github.com/casewise/casewise/services/orchestrator/store"
)

// countingPracticeStore tracks store reads so tests can assert cache hits.
type countingPracticeStore struct {
	reads    atomic.Int64
	practice *datatypes.PracticeDetails
	err      error
}

func (s *countingPracticeStore) GetPracticeBySlug(_ context.Context, slug string) (*datatypes.PracticeDetails, error) {
	s.reads.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if s.practice == nil || s.practice.Slug != slug {
		return nil, store.ErrNotFound
	}
	return s.practice, nil
}

func (s *countingPracticeStore) GetPracticeByID(_ context.Context, id string) (*datatypes.PracticeDetails, error) {
	s.reads.Add(1)
	if s.practice == nil || s.practice.ID != id {
		return nil, store.ErrNotFound
	}
	return s.practice, nil
}

func (s *countingPracticeStore) UpsertPractice(_ context.Context, p *datatypes.PracticeDetails) error {
	s.practice = p
	return nil
}

func TestGetBySlug_CachesReads(t *testing.T) {
	st := &countingPracticeStore{practice: &datatypes.PracticeDetails{ID: "p1", Slug: "harbor-legal"}}
	pc := NewPracticeCache(st, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p, err := pc.GetBySlug(ctx, "harbor-legal")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
	}
	assert.Equal(t, int64(1), st.reads.Load())
}

func TestGetBySlug_NotFoundNotCached(t *testing.T) {
	st := &countingPracticeStore{}
	pc := NewPracticeCache(st, nil)
	ctx := context.Background()

	_, err := pc.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = pc.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, int64(2), st.reads.Load())
}

func TestGetFresh_BypassesCache(t *testing.T) {
	st := &countingPracticeStore{practice: &datatypes.PracticeDetails{ID: "p1", Slug: "harbor-legal", Name: "Old"}}
	pc := NewPracticeCache(st, nil)
	ctx := context.Background()

	_, err := pc.GetBySlug(ctx, "harbor-legal")
	require.NoError(t, err)

	st.practice = &datatypes.PracticeDetails{ID: "p1", Slug: "harbor-legal", Name: "New"}
	p, err := pc.GetFresh(ctx, "harbor-legal")
	require.NoError(t, err)
	assert.Equal(t, "New", p.Name)

	// GetFresh refreshed the cached entry too.
	p, err = pc.GetBySlug(ctx, "harbor-legal")
	require.NoError(t, err)
	assert.Equal(t, "New", p.Name)
}

func TestInvalidate_ForcesReRead(t *testing.T) {
	st := &countingPracticeStore{practice: &datatypes.PracticeDetails{ID: "p1", Slug: "harbor-legal"}}
	pc := NewPracticeCache(st, nil)
	ctx := context.Background()

	_, err := pc.GetBySlug(ctx, "harbor-legal")
	require.NoError(t, err)
	pc.Invalidate("harbor-legal")
	_, err = pc.GetBySlug(ctx, "harbor-legal")
	require.NoError(t, err)

	assert.Equal(t, int64(2), st.reads.Load())
}
