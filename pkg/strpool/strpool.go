package strpool

import "sync"

type entry struct {
	s    string
	refs int
}

// Pool deduplicates strings that are held by many records at once (tag
// values, item keys, host names). Intern returns the canonical copy and
// takes a reference; Release drops one and frees the entry when the last
// holder is gone.
type Pool struct {
	sync.Mutex
	entries map[string]*entry
}

func New() *Pool {
	return &Pool{entries: make(map[string]*entry)}
}

func (p *Pool) Intern(s string) string {
	p.Lock()
	defer p.Unlock()

	e, has := p.entries[s]
	if !has {
		e = &entry{s: s}
		p.entries[s] = e
	}
	e.refs++
	return e.s
}

func (p *Pool) Release(s string) {
	p.Lock()
	defer p.Unlock()

	e, has := p.entries[s]
	if !has {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(p.entries, s)
	}
}

func (p *Pool) Refs(s string) int {
	p.Lock()
	defer p.Unlock()

	if e, has := p.entries[s]; has {
		return e.refs
	}
	return 0
}

func (p *Pool) Len() int {
	p.Lock()
	defer p.Unlock()
	return len(p.entries)
}
