package store

import (
	"fmt"
	"sort"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/MalekiRe/nexus-social/src/social"
	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

const (
	userPrefix     = "user"
	deliveryPrefix = "outbox"
)

// BadgerStore persists records in a Badger database. It also implements
// outbox.Journal, keeping pending deliveries in the same database.
type BadgerStore struct {
	db    *badger.DB
	path  string
	locks recordLocks
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db:   handle,
		path: path,
	}

	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func userKey(username string) []byte {
	return []byte(fmt.Sprintf("%s_%s", userPrefix, username))
}

func deliveryKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", deliveryPrefix, id))
}

/*******************************************************************************
Implement the Store interface
*******************************************************************************/

// Register implements the Store interface.
func (s *BadgerStore) Register(username string) error {
	unlock := s.locks.lock(username)
	defer unlock()

	data, err := social.NewUserRecord().Marshal()
	if err != nil {
		return err
	}

	key := userKey(username)

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return alreadyExists(username)
		}
		if !isDBKeyNotFound(err) {
			return err
		}
		return txn.Set(key, data)
	})
}

// Get implements the Store interface.
func (s *BadgerStore) Get(username string) (*social.UserRecord, error) {
	var u *social.UserRecord

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = dbGetUser(txn, username)
		return err
	})

	if err != nil {
		return nil, err
	}

	return u, nil
}

// Update implements the Store interface. The record lock keeps concurrent
// Updates of the same user from conflicting inside Badger.
func (s *BadgerStore) Update(username string, fn func(*social.UserRecord) error) error {
	unlock := s.locks.lock(username)
	defer unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		u, err := dbGetUser(txn, username)
		if err != nil {
			return err
		}

		if err := fn(u); err != nil {
			return err
		}

		data, err := u.Marshal()
		if err != nil {
			return err
		}

		return txn.Set(userKey(username), data)
	})
}

// Usernames implements the Store interface.
func (s *BadgerStore) Usernames() ([]string, error) {
	res := []string{}
	prefix := []byte(userPrefix + "_")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			res = append(res, string(key[len(prefix):]))
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(res)

	return res, nil
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the directory of the Badger database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
Implement the outbox.Journal interface
*******************************************************************************/

// SaveDelivery implements the outbox.Journal interface.
func (s *BadgerStore) SaveDelivery(d *outbox.Delivery) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(deliveryKey(d.ID), data)
	})
}

// GetDelivery implements the outbox.Journal interface.
func (s *BadgerStore) GetDelivery(id string) (*outbox.Delivery, error) {
	d := new(outbox.Delivery)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(deliveryKey(id))
		if err != nil {
			if isDBKeyNotFound(err) {
				return common.NewErr("Delivery", common.NotFound, id)
			}
			return err
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		return d.Unmarshal(val)
	})

	if err != nil {
		return nil, err
	}

	return d, nil
}

// DeleteDelivery implements the outbox.Journal interface.
func (s *BadgerStore) DeleteDelivery(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(deliveryKey(id))
	})
}

// Deliveries implements the outbox.Journal interface.
func (s *BadgerStore) Deliveries() ([]*outbox.Delivery, error) {
	res := []*outbox.Delivery{}
	prefix := []byte(deliveryPrefix + "_")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			d := new(outbox.Delivery)
			if err := d.Unmarshal(val); err != nil {
				return err
			}

			res = append(res, d)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	outbox.SortByCreated(res)

	return res, nil
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func dbGetUser(txn *badger.Txn, username string) (*social.UserRecord, error) {
	item, err := txn.Get(userKey(username))
	if err != nil {
		if isDBKeyNotFound(err) {
			return nil, notFound(username)
		}
		return nil, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	u := new(social.UserRecord)
	if err := u.Unmarshal(val); err != nil {
		return nil, err
	}

	return u, nil
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}
