package core

import (
	"context"
	"path/filepath"
	"testing"
)

type storeFixture struct {
	ctx      context.Context
	dir      string
	t        *testing.T
	tearDown func()
}

func newStoreFixture(t *testing.T) *storeFixture {
	ctx, cancel := context.WithCancel(context.Background())
	return &storeFixture{
		ctx:      ctx,
		dir:      t.TempDir(),
		t:        t,
		tearDown: cancel,
	}
}

func (f *storeFixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

type authFixture struct {
	*storeFixture
	db        *SQLiteDB
	authStore *SQLiteAuthStore
}

func newAuthFixture(t *testing.T, opts ...AuthOption) *authFixture {
	base := newStoreFixture(t)

	db, err := NewSQLiteDB(base.path("sessions.db"), &SQLiteDBOption{Mode: "rwc", JournalMode: "WAL"})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	f := &authFixture{
		storeFixture: base,
		db:           db,
		authStore:    NewSQLiteAuthStore(db.DB, []byte("secret"), opts...),
	}
	baseTearDown := base.tearDown
	f.tearDown = func() {
		db.Close()
		baseTearDown()
	}
	return f
}
