package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"io"
	"sync"
)

// A minimal database/sql driver that records every native statement and
// transaction boundary, so tests can assert on exactly what reached the
// backend. Backends are shared by DSN.

type fakeBackend struct {
	mu       sync.Mutex
	log      []string
	failNext error
	insertID int64
}

func (b *fakeBackend) record(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, s)
}

func (b *fakeBackend) statements() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.log))
	copy(out, b.log)
	return out
}

func (b *fakeBackend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = nil
	b.failNext = nil
}

func (b *fakeBackend) failWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

func (b *fakeBackend) takeFailure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.failNext
	b.failNext = nil
	return err
}

var fakeBackends = struct {
	mu sync.Mutex
	m  map[string]*fakeBackend
}{m: make(map[string]*fakeBackend)}

func backendFor(dsn string) *fakeBackend {
	fakeBackends.mu.Lock()
	defer fakeBackends.mu.Unlock()
	b, ok := fakeBackends.m[dsn]
	if !ok {
		b = &fakeBackend{insertID: 1}
		fakeBackends.m[dsn] = b
	}
	return b
}

type fakeSQLDriver struct{}

func (fakeSQLDriver) Open(dsn string) (sqldriver.Conn, error) {
	return &fakeConn{b: backendFor(dsn)}, nil
}

func init() {
	sql.Register("dalfake", fakeSQLDriver{})
}

type fakeConn struct {
	b *fakeBackend
}

func (c *fakeConn) Prepare(query string) (sqldriver.Stmt, error) {
	return &fakeStmt{c: c, query: query}, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (sqldriver.Tx, error) {
	c.b.record("BEGIN")
	return &fakeTx{b: c.b}, nil
}

func (c *fakeConn) ExecContext(_ context.Context, query string, _ []sqldriver.NamedValue) (sqldriver.Result, error) {
	if err := c.b.takeFailure(); err != nil {
		return nil, err
	}
	c.b.record(query)
	return fakeResult{id: c.b.insertID}, nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, _ []sqldriver.NamedValue) (sqldriver.Rows, error) {
	if err := c.b.takeFailure(); err != nil {
		return nil, err
	}
	c.b.record(query)
	return &fakeRows{}, nil
}

var (
	_ sqldriver.ExecerContext  = (*fakeConn)(nil)
	_ sqldriver.QueryerContext = (*fakeConn)(nil)
)

type fakeStmt struct {
	c     *fakeConn
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(_ []sqldriver.Value) (sqldriver.Result, error) {
	if err := s.c.b.takeFailure(); err != nil {
		return nil, err
	}
	s.c.b.record(s.query)
	return fakeResult{id: s.c.b.insertID}, nil
}

func (s *fakeStmt) Query(_ []sqldriver.Value) (sqldriver.Rows, error) {
	if err := s.c.b.takeFailure(); err != nil {
		return nil, err
	}
	s.c.b.record(s.query)
	return &fakeRows{}, nil
}

type fakeTx struct {
	b *fakeBackend
}

func (t *fakeTx) Commit() error {
	t.b.record("COMMIT")
	return nil
}

func (t *fakeTx) Rollback() error {
	t.b.record("ROLLBACK")
	return nil
}

type fakeResult struct {
	id int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeRows struct{}

func (r *fakeRows) Columns() []string { return nil }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(_ []sqldriver.Value) error { return io.EOF }
