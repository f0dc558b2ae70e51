// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements the Storage interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

// Key generation functions
func userKey(id string) []byte {
	return []byte(fmt.Sprintf("user:%s", id))
}

func factKey(id string) []byte {
	return []byte(fmt.Sprintf("fact:%s", id))
}

func decisionKey(id string) []byte {
	return []byte(fmt.Sprintf("decision:%s", id))
}

func recordKey(id string) []byte {
	return []byte(fmt.Sprintf("record:%s", id))
}

func userSnapshotKey(recordID string) []byte {
	return []byte(fmt.Sprintf("snapshot:user:%s", recordID))
}

func factSnapshotKey(recordID string) []byte {
	return []byte(fmt.Sprintf("snapshot:fact:%s", recordID))
}

// Serialization helpers
func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

func (b *BadgerStorage) setJSON(key []byte, v interface{}) error {
	data, err := serialize(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (b *BadgerStorage) getJSON(key []byte, entityType, id string, v interface{}) error {
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return &storage.NotFoundError{EntityType: entityType, ID: id}
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return deserialize(val, v)
		})
	})
}

// SaveUser saves a user to Badger.
func (b *BadgerStorage) SaveUser(ctx context.Context, u *fact.User) error {
	return b.setJSON(userKey(u.ID), u)
}

// GetUser retrieves a user by ID.
func (b *BadgerStorage) GetUser(ctx context.Context, id string) (*fact.User, error) {
	var u fact.User
	if err := b.getJSON(userKey(id), "user", id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users ordered by id.
func (b *BadgerStorage) ListUsers(ctx context.Context) ([]*fact.User, error) {
	var users []*fact.User

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("user:")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var u fact.User
			err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &u)
			})
			if err != nil {
				continue
			}
			users = append(users, &u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// SaveFact saves a fact to Badger.
func (b *BadgerStorage) SaveFact(ctx context.Context, f *fact.Fact) error {
	return b.setJSON(factKey(f.ID), f)
}

// GetFact retrieves a fact by ID.
func (b *BadgerStorage) GetFact(ctx context.Context, id string) (*fact.Fact, error) {
	var f fact.Fact
	if err := b.getJSON(factKey(id), "fact", id, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SaveDecision saves a scheduling decision. A decision id is written once;
// re-saving an existing id is rejected.
func (b *BadgerStorage) SaveDecision(ctx context.Context, d *fact.Decision) error {
	data, err := serialize(d)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(decisionKey(d.ID))
		if err == nil {
			return &storage.DuplicateKeyError{EntityType: "decision", ID: d.ID}
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(decisionKey(d.ID), data)
	})
}

// GetDecision retrieves a decision by ID.
func (b *BadgerStorage) GetDecision(ctx context.Context, id string) (*fact.Decision, error) {
	var d fact.Decision
	if err := b.getJSON(decisionKey(id), "decision", id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetRecord retrieves an audit record by ID.
func (b *BadgerStorage) GetRecord(ctx context.Context, id string) (*fact.Record, error) {
	var r fact.Record
	if err := b.getJSON(recordKey(id), "record", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecords lists audit records matching the filter, ordered by date then id.
func (b *BadgerStorage) ListRecords(ctx context.Context, filter *storage.RecordFilter) ([]*fact.Record, error) {
	var matched []*fact.Record

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("record:")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r fact.Record
			err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &r)
			})
			if err != nil {
				continue
			}
			if filter.Matches(&r) {
				copied := r
				matched = append(matched, &copied)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].ID < matched[j].ID
	})

	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		end := filter.Offset + filter.Limit
		if start > len(matched) {
			start = len(matched)
		}
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, nil
}

// GetUserSnapshot retrieves the user snapshot attached to a record.
func (b *BadgerStorage) GetUserSnapshot(ctx context.Context, recordID string) (*fact.UserSnapshot, error) {
	var s fact.UserSnapshot
	if err := b.getJSON(userSnapshotKey(recordID), "user snapshot", recordID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetFactSnapshot retrieves the fact snapshot attached to a record.
func (b *BadgerStorage) GetFactSnapshot(ctx context.Context, recordID string) (*fact.FactSnapshot, error) {
	var s fact.FactSnapshot
	if err := b.getJSON(factSnapshotKey(recordID), "fact snapshot", recordID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyUpdate commits a response batch inside a single Badger transaction,
// so a failure on any entity rolls back the whole batch.
func (b *BadgerStorage) ApplyUpdate(ctx context.Context, batch *storage.UpdateBatch) error {
	return b.db.Update(func(txn *badger.Txn) error {
		set := func(key []byte, v interface{}) error {
			data, err := serialize(v)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		}

		if batch.Decision != nil {
			item, err := txn.Get(decisionKey(batch.Decision.ID))
			if err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err == nil {
				var stored fact.Decision
				if err := item.Value(func(val []byte) error {
					return deserialize(val, &stored)
				}); err != nil {
					return err
				}
				if stored.ConsumedAt != nil {
					return &storage.DuplicateKeyError{EntityType: "decision", ID: batch.Decision.ID}
				}
			}
		}

		if batch.User != nil {
			if err := set(userKey(batch.User.ID), batch.User); err != nil {
				return err
			}
		}
		for _, f := range batch.Facts {
			if err := set(factKey(f.ID), f); err != nil {
				return err
			}
		}
		if batch.Decision != nil {
			if err := set(decisionKey(batch.Decision.ID), batch.Decision); err != nil {
				return err
			}
		}
		for _, r := range batch.Records {
			if err := set(recordKey(r.ID), r); err != nil {
				return err
			}
		}
		for _, s := range batch.UserSnapshots {
			if err := set(userSnapshotKey(s.RecordID), s); err != nil {
				return err
			}
		}
		for _, s := range batch.FactSnapshots {
			if err := set(factSnapshotKey(s.RecordID), s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	if err := b.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		// GC failure is not fatal on shutdown
	}
	return b.db.Close()
}
