package e2e_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/checkpoint"
	"github.com/julianstephens/redolog/internal/redolog/mailbox"
	"github.com/julianstephens/redolog/internal/redolog/mailbox/memstore"
	"github.com/julianstephens/redolog/internal/redolog/manager"
	"github.com/julianstephens/redolog/internal/redolog/op"
	"github.com/julianstephens/redolog/internal/redolog/txn"
)

// writer journals transactions through a manager and mirrors every
// committed transaction into a live store, the state recovery must rebuild.
type writer struct {
	t    *testing.T
	m    *manager.Manager
	live *memstore.Store
}

func openManager(t *testing.T, root string, opts redolog.Options, store mailbox.Store, cps checkpoint.Store) *manager.Manager {
	t.Helper()
	m, err := manager.Open(context.Background(), root, manager.Opts{Options: opts}, store, cps, nil)
	tst.RequireNoError(t, err)
	return m
}

func newWriter(t *testing.T, root string, opts redolog.Options) *writer {
	t.Helper()
	live := memstore.New(memstore.WithAutoCreate())
	return &writer{
		t:    t,
		m:    openManager(t, root, opts, live, checkpoint.NewMemStore()),
		live: live,
	}
}

// commit records ops as one transaction of mailboxID and applies them to
// the live store once the commit is durable.
func (w *writer) commit(mailboxID uint64, ops ...op.Op) uint64 {
	w.t.Helper()
	ctx := context.Background()
	j, err := w.m.Journal(mailboxID)
	tst.RequireNoError(w.t, err)

	var recorded []op.Op
	txnID, err := j.Run(ctx, func(tx *txn.Tx) error {
		for _, o := range ops {
			if _, err := tx.Record(ctx, o); err != nil {
				return err
			}
			recorded = append(recorded, o)
		}
		return nil
	})
	tst.RequireNoError(w.t, err)

	h, err := w.live.Lookup(ctx, mailboxID)
	tst.RequireNoError(w.t, err)
	for _, o := range recorded {
		tst.RequireNoError(w.t, op.Apply(ctx, o, h))
	}
	return txnID
}

// leaveOpen writes ops in a transaction that is never committed.
func (w *writer) leaveOpen(mailboxID uint64, ops ...op.Op) uint64 {
	w.t.Helper()
	ctx := context.Background()
	j, err := w.m.Journal(mailboxID)
	tst.RequireNoError(w.t, err)
	txnID, err := j.Begin(ctx)
	tst.RequireNoError(w.t, err)
	for _, o := range ops {
		_, err := j.Record(ctx, txnID, o)
		tst.RequireNoError(w.t, err)
	}
	return txnID
}

func (w *writer) close() {
	w.t.Helper()
	tst.RequireNoError(w.t, w.m.Close())
}

func snapshot(t *testing.T, s *memstore.Store, mailboxID uint64) memstore.Snapshot {
	t.Helper()
	box, err := s.Mailbox(mailboxID)
	tst.RequireNoError(t, err)
	return box.Snapshot()
}

// copyTree copies the regular files under src into dst, keeping the
// directory layout.
func copyTree(t *testing.T, src, dst string) {
	t.Helper()
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o600)
	})
	tst.RequireNoError(t, err)
}
