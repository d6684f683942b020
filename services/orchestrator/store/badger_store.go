// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// Key layout:
//
//	conv:<id>                        -> Conversation JSON
//	msg:<convID>:<createdAtNanos>:<id> -> Message JSON (prefix scan = oldest-first)
//	practice:id:<id>                 -> PracticeDetails JSON
//	practice:slug:<slug>             -> practice id
const (
	convPrefix         = "conv:"
	msgPrefix          = "msg:"
	practiceIDPrefix   = "practice:id:"
	practiceSlugPrefix = "practice:slug:"
)

// Config holds configuration for the embedded store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is
	// true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. If nil, that logging
	// is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: persistent, sync writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// Open creates and opens a BadgerStore with the given configuration.
//
// # Description
//
//	Opens a BadgerDB database at the configured path, or in memory when
//	InMemory is true. Creates the directory if it doesn't exist.
//
// # Outputs
//
//	*BadgerStore - Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
//
// Thread Safety: the returned store is safe for concurrent use.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*BadgerStore, error) {
	return Open(InMemoryConfig())
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) getJSON(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

func (s *BadgerStore) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// ===== ConversationStore =====

func (s *BadgerStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var conv Conversation
	if err := s.getJSON(convPrefix+id, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *BadgerStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	return s.setJSON(convPrefix+conv.ID, conv)
}

func (s *BadgerStore) UpdateConversationMetadata(ctx context.Context, id string, md datatypes.ConversationMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.Metadata = md
	conv.UpdatedAt = time.Now().UTC()
	return s.setJSON(convPrefix+id, conv)
}

func (s *BadgerStore) SendSystemMessage(ctx context.Context, conversationID, recipientID, content string, md datatypes.MessageMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return "", err
	}
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       SystemSenderID,
		RecipientID:    recipientID,
		Role:           "assistant",
		Content:        content,
		Metadata:       md,
		CreatedAt:      time.Now().UTC(),
	}
	key := fmt.Sprintf("%s%s:%020d:%s", msgPrefix, conversationID, msg.CreatedAt.UnixNano(), msg.ID)
	if err := s.setJSON(key, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *BadgerStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(msgPrefix + conversationID + ":")
	var out []Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ===== PracticeStore =====

func (s *BadgerStore) GetPracticeBySlug(ctx context.Context, slug string) (*datatypes.PracticeDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(practiceSlugPrefix + slug))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetPracticeByID(ctx, id)
}

func (s *BadgerStore) GetPracticeByID(ctx context.Context, id string) (*datatypes.PracticeDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p datatypes.PracticeDetails
	if err := s.getJSON(practiceIDPrefix+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BadgerStore) UpsertPractice(ctx context.Context, p *datatypes.PracticeDetails) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return errors.New("practice id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode practice %s: %w", p.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(practiceIDPrefix+p.ID), data); err != nil {
			return err
		}
		if p.Slug != "" {
			return txn.Set([]byte(practiceSlugPrefix+p.Slug), []byte(p.ID))
		}
		return nil
	})
}
