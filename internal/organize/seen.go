package organize

import (
	"github.com/dgraph-io/badger/v4"
)

// seenCache records source keys already copied so re-runs skip them.
// A nil cache is valid and never matches.
type seenCache struct {
	db *badger.DB
}

func openSeenCache(path string) (*seenCache, error) {
	if path == "" {
		return nil, nil
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &seenCache{db: db}, nil
}

func (s *seenCache) Has(key string) bool {
	if s == nil {
		return false
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	return err == nil
}

func (s *seenCache) Mark(key string) error {
	if s == nil {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte{1})
	})
}

func (s *seenCache) Close() {
	if s != nil {
		_ = s.db.Close()
	}
}
