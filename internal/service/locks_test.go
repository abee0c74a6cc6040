package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moby/locker"
	"github.com/stretchr/testify/assert"
)

func TestPlaylistService_OwnerLockIsExclusive(t *testing.T) {
	svc, _ := newTestPlaylistService()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := svc.lockOwner("alice")
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load(), "max holders of one owner lock")
	assert.ErrorIs(t, svc.locks.Unlock("alice"), locker.ErrNoSuchLock, "entry must be dropped after the last unlock")
}

func TestPlaylistService_OwnersDoNotBlockEachOther(t *testing.T) {
	svc, _ := newTestPlaylistService()

	unlockAlice := svc.lockOwner("alice")
	defer unlockAlice()

	done := make(chan struct{})
	go func() {
		unlock := svc.lockOwner("bob")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking bob waited on alice")
	}
}

// A Create for one owner waits while that owner's lock is held elsewhere.
func TestPlaylistService_CreateWaitsForOwnerLock(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := t.Context()

	unlock := svc.lockOwner(owner)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Create(ctx, owner, "Mix")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Create ran while the owner lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Create did not resume after unlock")
	}
}
