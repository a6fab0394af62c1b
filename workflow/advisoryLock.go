package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"gorm.io/gorm"
)

const lockPrefix = "reconcile:"

// MySQL caps user lock names at 64 characters.
const maxLockNameLen = 64 - len(lockPrefix)

// SourceLock is the MySQL advisory lock taken by write runs over a set of sources.
// The zero value holds nothing.
type SourceLock struct {
	name string
	wait time.Duration
}

// NewSourceLock names the lock after the sources, ignoring order and repeats, so two runs
// writing the same sources always contend.
func NewSourceLock(sources []string) SourceLock {
	names := utils.UniqueSlice(sources)
	sort.Strings(names)
	name := strings.Join(names, "+")
	if len(name) > maxLockNameLen {
		name = name[:maxLockNameLen]
	}
	return SourceLock{name: name, wait: 30 * time.Second}
}

// Name is the lock scope without prefix; the redis run lock reuses it.
func (l SourceLock) Name() string {
	return l.name
}

// hold runs fn while tx owns the lock. GET_LOCK is connection-scoped, so tx must be the
// transaction doing the writes.
func (l SourceLock) hold(tx *gorm.DB, fn func() error) error {
	if l.name == "" {
		return fn()
	}
	key := lockPrefix + l.name
	var got int
	if err := tx.Raw("SELECT GET_LOCK(?, ?)", key, int(l.wait.Seconds())).Scan(&got).Error; err != nil {
		return err
	}
	if got != 1 {
		return fmt.Errorf("could not acquire lock %s within %s", key, l.wait)
	}
	defer tx.Exec("SELECT RELEASE_LOCK(?)", key)
	return fn()
}
