// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

//go:build wal

package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/ipc"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/metrics"
)

const prefixPending = "pending:"

// gcDiscardRatio is passed to badger's value log GC by Compact.
const gcDiscardRatio = 0.5

// Spool stores events in BadgerDB.
type Spool struct {
	db  *badger.DB
	cfg Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the spool at cfg.Path.
func Open(cfg Config) (*Spool, error) {
	if cfg.Path == "" {
		return nil, errors.New("spool path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Compression = options.Snappy
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Spool{db: db, cfg: cfg}
	n, err := s.Len()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	metrics.SpoolPending.Set(float64(n))

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Int("pending", n).
		Msg("Event spool opened")
	return s, nil
}

func (s *Spool) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Append stores ev as the newest entry.
func (s *Spool) Append(ev ipc.Event) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	// Version 7 ids sort by creation time.
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate entry id: %w", err)
	}
	entry := Entry{ID: id.String(), Event: ev, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+entry.ID), data)
		if s.cfg.EntryTTL > 0 {
			e = e.WithTTL(s.cfg.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write to BadgerDB: %w", err)
	}
	metrics.SpoolWrites.Inc()
	metrics.SpoolPending.Inc()
	return nil
}

// Pending returns up to limit entries, oldest first. limit <= 0 means all.
func (s *Spool) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping malformed spool entry")
				continue
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate spool: %w", err)
	}
	return entries, nil
}

// Ack deletes an entry after it was published or given up on.
func (s *Spool) Ack(id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := []byte(prefixPending + id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	metrics.SpoolPending.Dec()
	return nil
}

// MarkFailed records a failed replay and returns the new attempt count.
func (s *Spool) MarkFailed(id string, cause error) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	key := []byte(prefixPending + id)
	var attempts int
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}

		entry.Attempts++
		if cause != nil {
			entry.LastError = cause.Error()
		}
		attempts = entry.Attempts

		data, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		e := badger.NewEntry(key, data)
		if exp := item.ExpiresAt(); exp > 0 {
			if ttl := time.Until(time.Unix(int64(exp), 0)); ttl > 0 {
				e = e.WithTTL(ttl)
			}
		}
		return txn.SetEntry(e)
	})
	return attempts, err
}

// Len counts pending entries.
func (s *Spool) Len() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Compact reclaims value log space from acknowledged entries.
func (s *Spool) Compact() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close closes the database. Further calls return ErrClosed.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
