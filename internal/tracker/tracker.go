package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/tidwall/buntdb"
	"github.com/vmihailenco/msgpack/v5"
)

type TrackerConfig struct {
	Context context.Context
	Logger  logger.Logger
	Dir     string
}

// Tracker is a small local key/value store for maintenance state that must survive restarts.
type Tracker struct {
	ctx    context.Context
	logger logger.Logger
	db     *buntdb.DB
	once   sync.Once
}

// Close will close the tracker and the underlying database.
func (t *Tracker) Close() error {
	t.logger.Debug("closing")
	var err error
	t.once.Do(func() {
		t.db.Shrink()
		err = t.db.Close()
	})
	t.logger.Debug("closed")
	return err
}

// GetKey will return the value of the key from the database.
func (t *Tracker) GetKey(key string) (bool, string, error) {
	var value string
	var found bool
	err := t.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key, false)
		if err != nil {
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		value = val
		found = true
		return nil
	})
	if err != nil {
		return found, "", fmt.Errorf("failed to get key: %w", err)
	}
	return found, value, nil
}

// SetKey will set the key to the value in the database.
func (t *Tracker) SetKey(key, value string, expires time.Duration) error {
	err := t.db.Update(func(tx *buntdb.Tx) error {
		var opts *buntdb.SetOptions
		if expires > 0 {
			opts = &buntdb.SetOptions{Expires: true, TTL: expires}
		}
		_, _, err := tx.Set(key, value, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// DeleteKey will delete the key from the database.
func (t *Tracker) DeleteKey(keys ...string) error {
	return t.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

// SetRecord stores a msgpack encoded value under key.
func (t *Tracker) SetRecord(key string, value any) error {
	buf, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}
	return t.SetKey(key, string(buf), 0)
}

// GetRecord decodes the value stored under key into value. It returns false if the key is not set.
func (t *Tracker) GetRecord(key string, value any) (bool, error) {
	found, buf, err := t.GetKey(key)
	if err != nil || !found {
		return found, err
	}
	if err := msgpack.Unmarshal([]byte(buf), value); err != nil {
		return true, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return true, nil
}

// TrackerFilenameFromDir returns the filename for the tracker database based on a specific directory.
func TrackerFilenameFromDir(dir string) string {
	return filepath.Join(dir, "procure-data.db")
}

// NewTracker will create a new tracker with the given configuration.
func NewTracker(config TrackerConfig) (*Tracker, error) {
	var tracker Tracker

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if _, err := util.IsDirWritable(config.Dir); err != nil {
		return nil, fmt.Errorf("data dir is not usable: %w", err)
	}

	db, err := buntdb.Open(TrackerFilenameFromDir(config.Dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	var dbcfg buntdb.Config
	if err := db.ReadConfig(&dbcfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read db config: %w", err)
	}
	dbcfg.SyncPolicy = buntdb.EverySecond
	if err := db.SetConfig(dbcfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set db config: %w", err)
	}

	tracker.db = db
	tracker.ctx = config.Context
	tracker.logger = config.Logger.WithPrefix("[tracker]")

	return &tracker, nil
}
