// Package novasql is the top-level facade for the NovaSQL engine: it wires
// the storage manager and the shared buffer pool together and exposes the
// table/database/index operations the SQL layer drives.
package novasql

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/heap"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/storage"
)

var (
	ErrDatabaseClosed = errors.New("novasql: database is closed")
	ErrInvalidPageID  = errors.New("novasql: invalid page ID")

	ErrDatabaseExists   = errors.New("novasql: database already exists")
	ErrDatabaseNotExist = errors.New("novasql: database does not exist")
	ErrTableExists      = errors.New("novasql: table already exists")
	ErrTableNotFound    = errors.New("novasql: table not found")
	ErrBadIdentifier    = errors.New("novasql: invalid identifier")
)

// TableMeta is the persisted description of a table: schema, page count,
// and the indexes registered on it.
type TableMeta struct {
	Name      string        `json:"name"`
	Schema    record.Schema `json:"schema"`
	PageCount uint32        `json:"page_count"`
	Indexes   []IndexMeta   `json:"indexes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Database is a directory-backed collection of named sub-databases, each
// holding tables/indexes, all sharing one StorageManager and one
// GlobalPool so pages of every relation compete for the same frames.
type Database struct {
	mu     sync.RWMutex
	closed bool

	RootDir    string
	currentDB  string
	SM         *storage.StorageManager
	GlobalPool *bufferpool.GlobalPool
}

const defaultDatabaseName = "default"

// NewDatabase opens (without yet touching disk beyond the root dir) a
// Database rooted at dataDir, with "default" selected as the active
// sub-database.
func NewDatabase(dataDir string) *Database {
	sm := storage.NewStorageManager()
	db := &Database{
		RootDir:    dataDir,
		currentDB:  defaultDatabaseName,
		SM:         sm,
		GlobalPool: bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity),
	}
	_ = os.MkdirAll(db.TableDir(), 0o755)
	return db
}

func (db *Database) ensureOpen() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

// Close flushes every dirty page in the shared pool and marks the
// Database unusable for further operations.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	err := db.GlobalPool.FlushAll()
	db.closed = true
	return err
}

func validateIdent(s string) error {
	if s == "" {
		return ErrBadIdentifier
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			return ErrBadIdentifier
		}
	}
	return nil
}

// TableDir returns the directory holding table/index segment files for
// the currently selected sub-database.
func (db *Database) TableDir() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return filepath.Join(db.RootDir, db.currentDB, "tables")
}

func (db *Database) tableMetaPath(name string) string {
	return filepath.Join(db.TableDir(), name+".meta.json")
}

func (db *Database) tableFileSet(name string) storage.LocalFileSet {
	return storage.LocalFileSet{Dir: db.TableDir(), Base: name}
}

func (db *Database) overflowFileSet(name string) storage.LocalFileSet {
	return storage.LocalFileSet{Dir: db.TableDir(), Base: name + "_ovf"}
}

// viewFor binds the shared GlobalPool to a single relation's FileSet.
func (db *Database) viewFor(fs storage.FileSet) bufferpool.Manager {
	return db.GlobalPool.View(fs)
}

// BufferView exposes viewFor to callers outside the package (the SQL
// executor needs a Manager scoped to an index's FileSet).
func (db *Database) BufferView(fs storage.FileSet) bufferpool.Manager {
	return db.viewFor(fs)
}

// flushAndDropFileSet flushes then evicts every page of fs from the
// shared pool; callers must do this before deleting or renaming the
// underlying segment files.
func (db *Database) flushAndDropFileSet(fs storage.FileSet) error {
	if err := db.GlobalPool.FlushFileSet(fs); err != nil {
		return err
	}
	return db.GlobalPool.DropFileSet(fs)
}

func (db *Database) fmtIndexBase(table, index string) string {
	return fmt.Sprintf("%s__idx__%s", table, index)
}

func (db *Database) writeTableMeta(meta *TableMeta) error {
	path := db.tableMetaPath(meta.Name)
	if err := os.MkdirAll(db.TableDir(), 0o755); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (db *Database) readTableMeta(name string) (*TableMeta, error) {
	path := db.tableMetaPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// CreateDatabase creates a new, empty sub-database directory. It does
// not select it.
func (db *Database) CreateDatabase(name string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return err
	}
	dir := filepath.Join(db.RootDir, name)
	if _, err := os.Stat(dir); err == nil {
		return ErrDatabaseExists
	}
	return os.MkdirAll(filepath.Join(dir, "tables"), 0o755)
}

// DropDatabase removes a sub-database directory and everything under it.
// The caller is responsible for not dropping the currently selected
// sub-database out from under live handles.
func (db *Database) DropDatabase(name string) (any, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(name); err != nil {
		return nil, err
	}
	dir := filepath.Join(db.RootDir, name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, ErrDatabaseNotExist
	}
	return nil, os.RemoveAll(dir)
}

// SelectDatabase switches the active sub-database for subsequent table
// operations (the "USE <db>" statement).
func (db *Database) SelectDatabase(name string) (any, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(name); err != nil {
		return nil, err
	}
	dir := filepath.Join(db.RootDir, name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, ErrDatabaseNotExist
	}
	db.mu.Lock()
	db.currentDB = name
	db.mu.Unlock()
	return nil, nil
}

// CreateTable writes fresh table metadata and returns a heap.Table bound
// to the shared buffer pool.
func (db *Database) CreateTable(name string, schema record.Schema) (*heap.Table, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(name); err != nil {
		return nil, err
	}
	if _, err := db.readTableMeta(name); err == nil {
		return nil, ErrTableExists
	}

	fs := db.tableFileSet(name)
	bp := db.viewFor(fs)

	meta := &TableMeta{
		Name:      name,
		Schema:    schema,
		PageCount: 0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.writeTableMeta(meta); err != nil {
		return nil, err
	}

	ovf := storage.NewOverflowManager(db.SM, db.overflowFileSet(name))
	return heap.NewTable(name, schema, db.SM, fs, bp, ovf, 0), nil
}

// OpenTable reloads a table's metadata, refreshes its page count from
// disk, and returns a heap.Table bound to the shared buffer pool.
func (db *Database) OpenTable(name string) (*heap.Table, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateIdent(name); err != nil {
		return nil, err
	}

	meta, err := db.readTableMeta(name)
	if err != nil {
		return nil, err
	}

	fs := db.tableFileSet(name)
	pageCount, err := db.SM.CountPages(fs)
	if err != nil {
		return nil, err
	}
	meta.PageCount = pageCount
	_ = db.writeTableMeta(meta)

	bp := db.viewFor(fs)
	ovf := storage.NewOverflowManager(db.SM, db.overflowFileSet(name))
	return heap.NewTable(name, meta.Schema, db.SM, fs, bp, ovf, pageCount), nil
}

// DropTable drops every index registered on name, flushes and evicts its
// pages, removes its segment files, and removes its meta file.
func (db *Database) DropTable(name string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return err
	}
	meta, err := db.readTableMeta(name)
	if err != nil {
		return err
	}

	for len(meta.Indexes) > 0 {
		im := meta.Indexes[0]
		if err := db.DropIndex(name, im.Name); err != nil {
			return err
		}
		meta, err = db.readTableMeta(name)
		if err != nil {
			return err
		}
	}

	fs := db.tableFileSet(name)
	if err := db.flushAndDropFileSet(fs); err != nil {
		return err
	}
	if err := storage.RemoveAllSegments(fs); err != nil {
		return err
	}
	ovfFS := db.overflowFileSet(name)
	if err := db.flushAndDropFileSet(ovfFS); err != nil {
		return err
	}
	if err := storage.RemoveAllSegments(ovfFS); err != nil {
		return err
	}

	return os.Remove(db.tableMetaPath(name))
}

// ListTables returns the metadata of every table in the current
// sub-database.
func (db *Database) ListTables() ([]*TableMeta, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(db.TableDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	const suffix = ".meta.json"
	var out []*TableMeta
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		tableName := name[:len(name)-len(suffix)]
		meta, err := db.readTableMeta(tableName)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// UpdateTableSchema rewrites a table's schema in its meta file. There is
// no online ALTER TABLE that rewrites existing rows.
func (db *Database) UpdateTableSchema(name string, newSchema record.Schema) error {
	meta, err := db.readTableMeta(name)
	if err != nil {
		return err
	}
	meta.Schema = newSchema
	return db.writeTableMeta(meta)
}

// SyncTableMetaPageCount persists tbl's current page count.
func (db *Database) SyncTableMetaPageCount(tbl *heap.Table) error {
	meta, err := db.readTableMeta(tbl.Name)
	if err != nil {
		return err
	}
	meta.PageCount = tbl.PageCount
	return db.writeTableMeta(meta)
}
