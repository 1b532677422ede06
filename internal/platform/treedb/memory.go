package treedb

import (
	"context"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
)

const fanOutWorkers = 16

// Memory is the in-process Store used by tests and single-node deployments.
// A single mutex guards the whole tree, which makes every multi-path update
// trivially atomic.
type Memory struct {
	mu      sync.RWMutex
	root    map[string]any
	subs    map[uint64]*memorySub
	nextSub uint64
	closed  bool

	pool *ants.Pool
	push pushIDSource
}

func NewMemory() *Memory {
	pool, err := ants.NewPool(fanOutWorkers)
	if err != nil {
		pool = nil
	}
	return &Memory{
		root: make(map[string]any),
		subs: make(map[uint64]*memorySub),
		pool: pool,
	}
}

func (m *Memory) Get(_ context.Context, path string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, crerr.New("tree store is closed")
	}
	v, ok := valueAt(m.root, splitPath(path))
	if !ok {
		return nil, nil
	}
	return cloneValue(v), nil
}

func (m *Memory) Update(_ context.Context, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := validateUpdatePaths(updates); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return crerr.New("tree store is closed")
	}
	for path, value := range updates {
		segs := splitPath(path)
		if value == nil {
			deleteAt(m.root, segs)
			continue
		}
		setAt(m.root, segs, value)
	}
	pruneEmpty(m.root)

	var touched []*memorySub
	for _, sub := range m.subs {
		for path := range updates {
			if pathsOverlap(sub.path, path) {
				v, _ := valueAt(m.root, splitPath(sub.path))
				sub.stage(Snapshot{Path: sub.path, Value: cloneValue(v)})
				touched = append(touched, sub)
				break
			}
		}
	}
	m.mu.Unlock()

	for _, sub := range touched {
		m.dispatch(sub)
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	if value == nil {
		return m.Delete(ctx, path)
	}
	return m.Update(ctx, map[string]any{path: value})
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	return m.Update(ctx, map[string]any{path: nil})
}

func (m *Memory) PushID() string {
	return m.push.next(time.Now())
}

func (m *Memory) Watch(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	path = normalizePath(path)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, crerr.New("tree store is closed")
	}
	m.nextSub++
	subID := m.nextSub
	sub := &memorySub{path: path, ch: make(chan Snapshot, 1)}
	m.subs[subID] = sub

	v, _ := valueAt(m.root, splitPath(path))
	sub.stage(Snapshot{Path: path, Value: cloneValue(v)})
	m.mu.Unlock()

	m.dispatch(sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, subID)
			m.mu.Unlock()
			sub.close()
		})
	}
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		inner := cancel
		cancel = func() {
			stop()
			inner()
		}
	}
	return sub.ch, cancel, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := make([]*memorySub, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[uint64]*memorySub)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	if m.pool != nil {
		m.pool.Release()
	}
	return nil
}

func (m *Memory) dispatch(sub *memorySub) {
	if m.pool != nil && m.pool.Submit(sub.flush) == nil {
		return
	}
	go sub.flush()
}

// memorySub holds at most one pending snapshot; staging overwrites it so a
// slow consumer always observes the latest state rather than a backlog.
type memorySub struct {
	path string
	ch   chan Snapshot

	mu      sync.Mutex
	pending *Snapshot
	closed  bool
}

func (s *memorySub) stage(snap Snapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()
}

func (s *memorySub) flush() {
	// the mutex also fences the sends against close()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.pending
	s.pending = nil
	if snap == nil || s.closed {
		return
	}

	select {
	case s.ch <- *snap:
	default:
		// replace the undelivered snapshot with the fresher one
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- *snap:
		default:
		}
	}
}

func (s *memorySub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
