package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/georgepadayatti/signflow/field"
	"github.com/georgepadayatti/signflow/session"
)

// fakeDB emulates the two tables the store works with, enforcing the
// same version predicate the real UPDATE carries.
type fakeDB struct {
	mu        sync.Mutex
	records   map[string][]byte
	rowVers   map[string]int64
	templates map[string][]byte
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		records:   map[string][]byte{},
		rowVers:   map[string]int64{},
		templates: map[string][]byte{},
	}
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()

	if strings.Contains(sql, "FROM sessions") {
		id := args[0].(string)
		record, ok := db.records[id]
		version := db.rowVers[id]
		return fakeRow{scan: func(dest ...any) error {
			if !ok {
				return pgx.ErrNoRows
			}
			*dest[0].(*[]byte) = record
			*dest[1].(*int64) = version
			return nil
		}}
	}

	name := args[0].(string)
	record, ok := db.templates[name]
	return fakeRow{scan: func(dest ...any) error {
		if !ok {
			return pgx.ErrNoRows
		}
		*dest[0].(*[]byte) = record
		return nil
	}}
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch {
	case strings.HasPrefix(sql, "UPDATE sessions"):
		id := args[0].(string)
		record := args[1].([]byte)
		version := args[2].(int64)
		if db.rowVers[id] != version {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		db.records[id] = record
		db.rowVers[id] = version + 1
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.HasPrefix(sql, "INSERT INTO sessions"):
		id := args[0].(string)
		if _, exists := db.records[id]; exists {
			return pgconn.CommandTag{}, errors.New("duplicate key value violates unique constraint")
		}
		db.records[id] = args[1].([]byte)
		db.rowVers[id] = 1
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.HasPrefix(sql, "INSERT INTO templates"):
		name := args[0].(string)
		if _, exists := db.templates[name]; exists {
			return pgconn.CommandTag{}, errors.New("duplicate key value violates unique constraint")
		}
		db.templates[name] = args[1].([]byte)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected statement: %s", sql)
}

type fakeRows struct {
	names []string
	i     int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { r.i++; return r.i <= len(r.names) }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.names[r.i-1]
	return nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.templates))
	for name := range db.templates {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return &fakeRows{names: names}, nil
}

func pgTestSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New("doc.pdf", []field.Field{
		{Kind: field.Text, Step: 1, Email: "a@x"},
	}, 800, 1035, "", time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return s
}

func TestPGStoreCreateLoadSave(t *testing.T) {
	ctx := context.Background()
	st := NewPGStore(newFakeDB())

	if err := st.Create(ctx, "s1", pgTestSession(t)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, err := st.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.PDF != "doc.pdf" {
		t.Errorf("PDF = %q", loaded.PDF)
	}

	loaded.Fields[0].Signed = true
	if err := st.Save(ctx, "s1", loaded); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := st.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !again.Fields[0].Signed {
		t.Error("saved change not visible on reload")
	}

	// The bumped version carries forward: a second save succeeds.
	if err := st.Save(ctx, "s1", again); err != nil {
		t.Errorf("save after reload: %v", err)
	}
}

func TestPGStoreLoadNotFound(t *testing.T) {
	st := NewPGStore(newFakeDB())
	if _, err := st.Load(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreSaveWithoutLoad(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	st := NewPGStore(db)
	if err := st.Create(ctx, "s1", pgTestSession(t)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A second store instance never observed the row version.
	other := NewPGStore(db)
	if err := other.Save(ctx, "s1", pgTestSession(t)); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPGStoreSaveConflict(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	first := NewPGStore(db)
	second := NewPGStore(db)

	if err := first.Create(ctx, "s1", pgTestSession(t)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Both instances observe version 1; the second save loses.
	a, err := first.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load a: %v", err)
	}
	b, err := second.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load b: %v", err)
	}

	if err := first.Save(ctx, "s1", a); err != nil {
		t.Fatalf("winning save: %v", err)
	}
	if err := second.Save(ctx, "s1", b); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for stale save, got %v", err)
	}

	// The loser recovers by reloading.
	b, err = second.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("reload b: %v", err)
	}
	if err := second.Save(ctx, "s1", b); err != nil {
		t.Errorf("save after reload: %v", err)
	}
}

func TestPGStoreConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	st := NewPGStore(newFakeDB())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("s%d", i)
		if err := st.Create(ctx, id, pgTestSession(t)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s, err := st.Load(ctx, id)
				if err != nil {
					t.Errorf("Load %s: %v", id, err)
					return
				}
				if err := st.Save(ctx, id, s); err != nil {
					t.Errorf("Save %s: %v", id, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestPGStoreTemplates(t *testing.T) {
	ctx := context.Background()
	st := NewPGStore(newFakeDB())

	tpl := session.NewTemplate("doc.pdf", []field.Field{
		{Kind: field.Text, Step: 1, Email: "a@x"},
	}, 800, 1035)

	if err := st.SaveTemplate(ctx, "nda", tpl); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if err := st.SaveTemplate(ctx, "nda", tpl); err == nil {
		t.Error("re-saving an existing template should fail")
	}

	got, err := st.LoadTemplate(ctx, "nda")
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if got.PDF != "doc.pdf" {
		t.Errorf("PDF = %q", got.PDF)
	}
	if _, err := st.LoadTemplate(ctx, "missing"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}

	if err := st.SaveTemplate(ctx, "msa", tpl); err != nil {
		t.Fatalf("SaveTemplate msa: %v", err)
	}
	names, err := st.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(names) != 2 || names[0] != "msa" || names[1] != "nda" {
		t.Errorf("ListTemplates = %v", names)
	}
}
