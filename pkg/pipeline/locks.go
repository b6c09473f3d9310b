package pipeline

import "sync"

// lockTable hands out one mutex per project. Entries are never evicted, so
// the table grows with the number of projects the process has touched; a
// project's lock identity is stable for the process lifetime.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// forProject returns the mutex guarding a project, creating it on first use.
func (t *lockTable) forProject(projectID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[projectID] = l
	}
	return l
}
