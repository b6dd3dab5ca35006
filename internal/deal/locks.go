package deal

import (
	"sync"

	"github.com/pliu/easyrent/internal/models"
)

// propertyLocks hands out one mutex per property, dropping entries once no
// goroutine holds or waits on them.
type propertyLocks struct {
	mu    sync.Mutex
	locks map[models.ID]*propertyLock
}

type propertyLock struct {
	mu   sync.Mutex
	refs int
}

func newPropertyLocks() *propertyLocks {
	return &propertyLocks{locks: make(map[models.ID]*propertyLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (p *propertyLocks) lock(id models.ID) func() {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &propertyLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}

func (p *propertyLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
