package treedb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/astalive/asta-api/internal/platform/logging"
)

const (
	changeChannel  = "treedb_changes"
	refreshTimeout = 5 * time.Second
	listenerPing   = 90 * time.Second
)

type treeRow struct {
	Path  string `db:"path"`
	Value []byte `db:"value"`
}

// Postgres stores the tree as one row per leaf in tree_nodes(path, value).
// Multi-path updates run in a single transaction; change notifications ride
// pg_notify so every process sharing the database observes writes.
type Postgres struct {
	db       *sqlx.DB
	listener *pq.Listener
	logger   *logging.Logger
	push     pushIDSource

	mu      sync.Mutex
	subs    map[uint64]*memorySub
	nextSub uint64
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewPostgres(db *sqlx.DB, dsn string, logger *logging.Logger) (*Postgres, error) {
	if db == nil {
		return nil, crerr.New("db handle is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	p := &Postgres{
		db:     db,
		logger: logger,
		subs:   make(map[uint64]*memorySub),
		done:   make(chan struct{}),
	}

	listener := pq.NewListener(dsn, 200*time.Millisecond, 30*time.Second, func(_ pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("tree store listener event", "error", err)
		}
	})
	if err := listener.Listen(changeChannel); err != nil {
		_ = listener.Close()
		return nil, crerr.Wrap(err, "listen for tree changes")
	}
	p.listener = listener

	p.wg.Add(1)
	go p.consumeNotifications()
	return p, nil
}

func (p *Postgres) Get(ctx context.Context, path string) (any, error) {
	path = normalizePath(path)

	var (
		rows []treeRow
		err  error
	)
	if path == "" {
		err = p.db.SelectContext(ctx, &rows, `SELECT path, value FROM tree_nodes ORDER BY path`)
	} else {
		err = p.db.SelectContext(ctx, &rows,
			`SELECT path, value FROM tree_nodes WHERE path = $1 OR path LIKE $2 ORDER BY path`,
			path, path+"/%")
	}
	if err != nil {
		return nil, crerr.Wrapf(err, "select subtree %s", path)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if len(rows) == 1 && rows[0].Path == path && path != "" {
		var v any
		if err := sonic.Unmarshal(rows[0].Value, &v); err != nil {
			return nil, crerr.Wrapf(err, "decode node %s", path)
		}
		return v, nil
	}

	tree := make(map[string]any)
	for _, row := range rows {
		rel := row.Path
		if path != "" {
			if row.Path == path {
				// stale scalar shadowed by deeper writes
				continue
			}
			rel = strings.TrimPrefix(row.Path, path+"/")
		}
		var v any
		if err := sonic.Unmarshal(row.Value, &v); err != nil {
			return nil, crerr.Wrapf(err, "decode node %s", row.Path)
		}
		setAt(tree, strings.Split(rel, "/"), v)
	}
	return tree, nil
}

func (p *Postgres) Update(ctx context.Context, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := validateUpdatePaths(updates); err != nil {
		return err
	}

	paths := make([]string, 0, len(updates))
	for path := range updates {
		paths = append(paths, path)
	}
	// deterministic write order keeps concurrent transactions deadlock-free
	sort.Strings(paths)

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return crerr.Wrap(err, "begin tree update")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, path := range paths {
		norm := normalizePath(path)
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tree_nodes WHERE path = $1 OR path LIKE $2`,
			norm, norm+"/%"); err != nil {
			return crerr.Wrapf(err, "clear subtree %s", norm)
		}

		value := updates[path]
		if value == nil {
			continue
		}
		leaves := make(map[string][]byte)
		if err := flattenLeaves(norm, value, leaves); err != nil {
			return err
		}
		for leafPath, raw := range leaves {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tree_nodes (path, value) VALUES ($1, $2)
				 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
				leafPath, raw); err != nil {
				return crerr.Wrapf(err, "write node %s", leafPath)
			}
		}
	}

	for _, path := range paths {
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, changeChannel, normalizePath(path)); err != nil {
			return crerr.Wrapf(err, "notify change %s", path)
		}
	}

	if err := tx.Commit(); err != nil {
		return crerr.Wrap(err, "commit tree update")
	}
	return nil
}

func (p *Postgres) Set(ctx context.Context, path string, value any) error {
	if value == nil {
		return p.Delete(ctx, path)
	}
	return p.Update(ctx, map[string]any{path: value})
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	return p.Update(ctx, map[string]any{path: nil})
}

func (p *Postgres) PushID() string {
	return p.push.next(time.Now())
}

func (p *Postgres) Watch(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	path = normalizePath(path)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, crerr.New("tree store is closed")
	}
	p.nextSub++
	subID := p.nextSub
	sub := &memorySub{path: path, ch: make(chan Snapshot, 1)}
	p.subs[subID] = sub
	p.mu.Unlock()

	initial, err := p.Get(ctx, path)
	if err != nil {
		p.mu.Lock()
		delete(p.subs, subID)
		p.mu.Unlock()
		return nil, nil, err
	}
	sub.stage(Snapshot{Path: path, Value: initial})
	sub.flush()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, subID)
			p.mu.Unlock()
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

func (p *Postgres) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	subs := make([]*memorySub, 0, len(p.subs))
	for _, sub := range p.subs {
		subs = append(subs, sub)
	}
	p.subs = make(map[uint64]*memorySub)
	p.mu.Unlock()

	close(p.done)
	err := p.listener.Close()
	p.wg.Wait()
	for _, sub := range subs {
		sub.close()
	}
	return err
}

func (p *Postgres) consumeNotifications() {
	defer p.wg.Done()
	ping := time.NewTicker(listenerPing)
	defer ping.Stop()

	for {
		select {
		case <-p.done:
			return
		case n := <-p.listener.Notify:
			if n == nil {
				// reconnect: notifications may have been lost, resync everyone
				p.refreshMatching("")
				continue
			}
			p.refreshMatching(n.Extra)
		case <-ping.C:
			if err := p.listener.Ping(); err != nil {
				p.logger.Warn("tree store listener ping failed", "error", err)
			}
		}
	}
}

// refreshMatching re-reads and re-delivers every subscription overlapping
// the changed path; an empty path matches all of them.
func (p *Postgres) refreshMatching(changed string) {
	p.mu.Lock()
	var touched []*memorySub
	for _, sub := range p.subs {
		if changed == "" || pathsOverlap(sub.path, changed) {
			touched = append(touched, sub)
		}
	}
	p.mu.Unlock()

	for _, sub := range touched {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		v, err := p.Get(ctx, sub.path)
		cancel()
		if err != nil {
			p.logger.Warn("tree store refresh failed", "path", sub.path, "error", err)
			continue
		}
		sub.stage(Snapshot{Path: sub.path, Value: v})
		sub.flush()
	}
}

func flattenLeaves(prefix string, v any, out map[string][]byte) error {
	if m, ok := v.(map[string]any); ok {
		// empty objects read back as absent, same as the in-memory store
		for k, child := range m {
			if normalizePath(k) == "" || strings.Contains(k, "/") {
				return crerr.Newf("invalid node key %q under %s", k, prefix)
			}
			if child == nil {
				continue
			}
			if err := flattenLeaves(prefix+"/"+k, child, out); err != nil {
				return err
			}
		}
		return nil
	}

	raw, err := sonic.Marshal(v)
	if err != nil {
		return crerr.Wrapf(err, "encode node %s", prefix)
	}
	out[prefix] = raw
	return nil
}
