// Package store implements the per-node user store. Each local username maps
// to one social.UserRecord, and all modifications go through Update, which
// gives the caller exclusive access to that record for the duration of the
// mutation.
package store

import (
	"sync"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/social"
)

// Store is the interface implemented by the user-store backends.
type Store interface {
	// Register creates an empty record. It fails with AlreadyExists if the
	// username is taken.
	Register(username string) error

	// Get returns a copy of the record. It fails with NotFound if the username
	// is not registered.
	Get(username string) (*social.UserRecord, error)

	// Update applies fn to a decoded copy of the record and persists the
	// result if fn returns nil. If fn fails the store is left unchanged and
	// the error is returned as is. Concurrent Updates of the same username are
	// serialized; Updates of different usernames are not. fn must not call
	// back into the store.
	Update(username string, fn func(*social.UserRecord) error) error

	// Usernames lists the registered usernames.
	Usernames() ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// Transact is Update for mutators that produce a value.
func Transact[T any](s Store, username string, fn func(*social.UserRecord) (T, error)) (T, error) {
	var res T

	err := s.Update(username, func(u *social.UserRecord) error {
		r, err := fn(u)
		if err != nil {
			return err
		}
		res = r
		return nil
	})

	if err != nil {
		var zero T
		return zero, err
	}

	return res, nil
}

/*******************************************************************************
Record locks
*******************************************************************************/

const lockStripes = 256

// recordLocks serializes access to individual records without keeping one
// mutex per username. Usernames are hashed onto a fixed set of stripes, so two
// different users only contend when they share a stripe.
type recordLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *recordLocks) lock(username string) func() {
	m := &l.stripes[common.Hash32(username)%lockStripes]
	m.Lock()
	return m.Unlock
}

func notFound(username string) error {
	return common.NewErr("User", common.NotFound, username)
}

func alreadyExists(username string) error {
	return common.NewErr("User", common.AlreadyExists, username)
}
