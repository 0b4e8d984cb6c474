// Package catalog implements the persistent registry of tables and
// indexes described by the storage core: on-open bootstrap (init/load),
// create/drop of tables and indexes, and lookup by name or id. It uses
// internal/buffer's BufferPoolManager exclusively to persist its own
// metadata page and per-object meta pages, and delegates table/index data
// storage to the external collaborators internal/heap.Table and
// internal/btree.Tree.
package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tuannm99/novasql/internal/btree"
	"github.com/tuannm99/novasql/internal/buffer"
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/diskmgr"
	"github.com/tuannm99/novasql/internal/heap"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/storage"
)

const logPrefix = "catalog: "

// CatalogMetaPageID is the well-known logical page id holding the
// serialized catalogMeta, in the catalog's own diskmgr page space.
const CatalogMetaPageID int32 = 0

// HeapPool resolves a data-path FileSet into the shared buffer-pool
// Manager that TableHeap/Btree use for their own pages. Satisfied by
// (*bufferpool.GlobalPool).View.
type HeapPool interface {
	View(fs storage.FileSet) bufferpool.Manager
}

// TableInfo groups a table's persisted metadata with its runtime heap
// handle.
type TableInfo struct {
	ID         uint32
	Name       string
	Schema     record.Schema
	MetaPageID int32
	Heap       *heap.Table
}

// IndexInfo groups an index's persisted metadata with its runtime B-tree
// handle.
type IndexInfo struct {
	ID         uint32
	Name       string
	TableName  string
	KeyColumn  string
	MetaPageID int32
	Tree       *btree.Tree
}

// Manager is the in-memory catalog, backed by a dedicated diskmgr/buffer
// pool pair for its own metadata pages, and by sm/heapPool/dataDir for the
// table heap and B-tree data paths it bootstraps.
type Manager struct {
	mu sync.Mutex

	disk *diskmgr.Manager
	bpm  *buffer.Manager

	sm       *storage.StorageManager
	heapPool HeapPool
	dataDir  string

	meta *catalogMeta

	tables      map[uint32]*TableInfo
	tableNames  map[string]uint32
	indexes     map[uint32]*IndexInfo
	indexNames  map[string]map[string]uint32 // table name -> index name -> index id
	nextTableID uint32
	nextIndexID uint32
}

// Init bootstraps a brand-new catalog: an empty catalogMeta is serialized
// into the well-known catalog page and flushed.
func Init(disk *diskmgr.Manager, bpm *buffer.Manager, sm *storage.StorageManager, heapPool HeapPool, dataDir string) (*Manager, error) {
	m := newManager(disk, bpm, sm, heapPool, dataDir)
	m.meta = newCatalogMeta()

	frame, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("catalog: init: allocate meta page: %w", err)
	}
	if frame.PageID != CatalogMetaPageID {
		// The catalog meta page must be the very first page allocated in a
		// fresh file; any other id means this is not truly empty.
		bpm.UnpinPage(frame.PageID, false)
		return nil, fmt.Errorf("catalog: init: unexpected meta page id %d", frame.PageID)
	}
	if err := m.meta.serializeTo(frame.Data); err != nil {
		bpm.UnpinPage(frame.PageID, false)
		return nil, err
	}
	bpm.UnpinPage(frame.PageID, true)

	if err := m.flushCatalogMetaPage(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reconstructs a catalog from an existing catalog page: deserialize
// it, seed id counters, then load every registered table and index meta
// page into the in-memory maps.
func Load(disk *diskmgr.Manager, bpm *buffer.Manager, sm *storage.StorageManager, heapPool HeapPool, dataDir string) (*Manager, error) {
	m := newManager(disk, bpm, sm, heapPool, dataDir)

	frame, err := bpm.FetchPage(CatalogMetaPageID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: fetch meta page: %w", err)
	}
	cm, err := deserializeCatalogMeta(frame.Data)
	bpm.UnpinPage(frame.PageID, false)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	m.meta = cm

	for tableID, pageID := range cm.tablePages {
		if err := m.loadTable(tableID, pageID); err != nil {
			return nil, err
		}
		if tableID >= m.nextTableID {
			m.nextTableID = tableID + 1
		}
	}
	for indexID, pageID := range cm.indexPages {
		if err := m.loadIndex(indexID, pageID); err != nil {
			return nil, err
		}
		if indexID >= m.nextIndexID {
			m.nextIndexID = indexID + 1
		}
	}
	return m, nil
}

func newManager(disk *diskmgr.Manager, bpm *buffer.Manager, sm *storage.StorageManager, heapPool HeapPool, dataDir string) *Manager {
	return &Manager{
		disk:       disk,
		bpm:        bpm,
		sm:         sm,
		heapPool:   heapPool,
		dataDir:    dataDir,
		tables:     make(map[uint32]*TableInfo),
		tableNames: make(map[string]uint32),
		indexes:    make(map[uint32]*IndexInfo),
		indexNames: make(map[string]map[string]uint32),
	}
}

func (m *Manager) loadTable(tableID uint32, metaPageID int32) error {
	frame, err := m.bpm.FetchPage(metaPageID)
	if err != nil {
		return fmt.Errorf("catalog: load table %d: %w", tableID, err)
	}
	tm, err := deserializeTableMetadata(frame.Data)
	m.bpm.UnpinPage(metaPageID, false)
	if err != nil {
		return fmt.Errorf("catalog: load table %d: %w", tableID, err)
	}

	fs := storage.LocalFileSet{Dir: m.dataDir, Base: tm.FileBase}
	tbl := heap.NewTable(tm.Name, tm.Schema, m.sm, fs, m.heapPool.View(fs), nil, tm.PageCount)

	info := &TableInfo{ID: tableID, Name: tm.Name, Schema: tm.Schema, MetaPageID: metaPageID, Heap: tbl}
	m.tables[tableID] = info
	m.tableNames[tm.Name] = tableID
	if _, ok := m.indexNames[tm.Name]; !ok {
		m.indexNames[tm.Name] = make(map[string]uint32)
	}
	return nil
}

func (m *Manager) loadIndex(indexID uint32, metaPageID int32) error {
	frame, err := m.bpm.FetchPage(metaPageID)
	if err != nil {
		return fmt.Errorf("catalog: load index %d: %w", indexID, err)
	}
	im, err := deserializeIndexMetadata(frame.Data)
	m.bpm.UnpinPage(metaPageID, false)
	if err != nil {
		return fmt.Errorf("catalog: load index %d: %w", indexID, err)
	}

	fs := storage.LocalFileSet{Dir: m.dataDir, Base: im.FileBase}
	tree, err := btree.OpenTree(m.sm, fs, m.heapPool.View(fs))
	if err != nil {
		return fmt.Errorf("catalog: load index %d: open tree: %w", indexID, err)
	}

	info := &IndexInfo{
		ID: indexID, Name: im.Name, TableName: im.TableName,
		KeyColumn: im.KeyColumn, MetaPageID: metaPageID, Tree: tree,
	}
	m.indexes[indexID] = info
	if _, ok := m.indexNames[im.TableName]; !ok {
		m.indexNames[im.TableName] = make(map[string]uint32)
	}
	m.indexNames[im.TableName][im.Name] = indexID
	return nil
}

// CreateTable rejects a duplicate name, allocates a table id and meta
// page, deep-copies the schema, builds a TableHeap, serializes metadata,
// installs it in the in-memory maps, records it in catalog_meta, and
// flushes. Any mid-flow failure rolls back the allocated meta page.
func (m *Manager) CreateTable(name string, schema record.Schema) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tableNames[name]; exists {
		return nil, ErrTableAlreadyExist
	}

	frame, err := m.bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("catalog: create table %q: allocate meta page: %w", name, err)
	}
	metaPageID := frame.PageID

	rollback := func() {
		m.bpm.UnpinPage(metaPageID, false)
		if _, derr := m.bpm.DeletePage(metaPageID); derr != nil {
			slog.Error(logPrefix+"rollback failed to delete meta page", "pageID", metaPageID, "err", derr)
		}
	}

	tableID := m.nextTableID
	schemaCopy := schema.DeepCopy()
	fileBase := name

	tm := &tableMetadata{TableID: tableID, Name: name, FileBase: fileBase, PageCount: 0, Schema: schemaCopy}
	if err := tm.serializeTo(frame.Data); err != nil {
		rollback()
		return nil, err
	}
	m.bpm.UnpinPage(metaPageID, true)
	if _, err := m.bpm.FlushPage(metaPageID); err != nil {
		rollback()
		return nil, fmt.Errorf("catalog: create table %q: flush meta page: %w", name, err)
	}

	fs := storage.LocalFileSet{Dir: m.dataDir, Base: fileBase}
	ovf := storage.NewOverflowManager(m.sm, storage.LocalFileSet{Dir: m.dataDir, Base: fileBase + "_ovf"})
	tbl := heap.NewTable(name, schemaCopy, m.sm, fs, m.heapPool.View(fs), ovf, 0)

	info := &TableInfo{ID: tableID, Name: name, Schema: schemaCopy, MetaPageID: metaPageID, Heap: tbl}
	m.tables[tableID] = info
	m.tableNames[name] = tableID
	m.indexNames[name] = make(map[string]uint32)
	m.meta.tablePages[tableID] = metaPageID
	m.nextTableID++

	if err := m.flushCatalogMetaPage(); err != nil {
		delete(m.tables, tableID)
		delete(m.tableNames, name)
		delete(m.indexNames, name)
		delete(m.meta.tablePages, tableID)
		rollback()
		return nil, err
	}

	slog.Debug(logPrefix+"created table", "name", name, "tableID", tableID, "metaPageID", metaPageID)
	return info, nil
}

// DropTable drops all of the table's indexes (in sorted name order, so
// the iteration does not mutate the map it ranges over), frees the
// table's on-disk segments, removes the catalog-meta entry, deletes the
// meta page, and flushes.
func (m *Manager) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableID, ok := m.tableNames[name]
	if !ok {
		return ErrTableNotExist
	}
	info := m.tables[tableID]

	indexNames := make([]string, 0, len(m.indexNames[name]))
	for idxName := range m.indexNames[name] {
		indexNames = append(indexNames, idxName)
	}
	sort.Strings(indexNames)
	for _, idxName := range indexNames {
		if err := m.dropIndexLocked(name, idxName); err != nil {
			return err
		}
	}

	fs := storage.LocalFileSet{Dir: m.dataDir, Base: name}
	if err := storage.RemoveAllSegments(fs); err != nil {
		slog.Error(logPrefix+"drop table: remove segments failed", "table", name, "err", err)
	}
	ovfFS := storage.LocalFileSet{Dir: m.dataDir, Base: name + "_ovf"}
	_ = storage.RemoveAllSegments(ovfFS)

	delete(m.meta.tablePages, tableID)
	m.bpm.UnpinPage(info.MetaPageID, false)
	if _, err := m.bpm.DeletePage(info.MetaPageID); err != nil {
		return fmt.Errorf("catalog: drop table %q: delete meta page: %w", name, err)
	}

	delete(m.tables, tableID)
	delete(m.tableNames, name)
	delete(m.indexNames, name)

	return m.flushCatalogMetaPage()
}

// GetTable returns the TableInfo registered under name.
func (m *Manager) GetTable(name string) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tableNames[name]
	if !ok {
		return nil, ErrTableNotExist
	}
	return m.tables[id], nil
}

// GetTableByID returns the TableInfo registered under id.
func (m *Manager) GetTableByID(id uint32) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tables[id]
	if !ok {
		return nil, ErrTableNotExist
	}
	return info, nil
}

// GetTables returns every registered table, in ascending table-id order.
func (m *Manager) GetTables() []*TableInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint32, 0, len(m.tables))
	for id := range m.tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*TableInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.tables[id])
	}
	return out
}

// CreateIndex validates the table and key column, rejects a duplicate
// index name, allocates an index id and meta page, opens a fresh B-tree,
// serializes metadata, installs it, and flushes the catalog.
func (m *Manager) CreateIndex(tableName, indexName, keyColumn string) (*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableID, ok := m.tableNames[tableName]
	if !ok {
		return nil, ErrTableNotExist
	}
	tinfo := m.tables[tableID]
	if _, ok := tinfo.Schema.GetColumnIndex(keyColumn); !ok {
		return nil, ErrColumnNotExist
	}
	if _, exists := m.indexNames[tableName][indexName]; exists {
		return nil, ErrIndexAlreadyExist
	}

	frame, err := m.bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("catalog: create index %q: allocate meta page: %w", indexName, err)
	}
	metaPageID := frame.PageID
	rollback := func() {
		m.bpm.UnpinPage(metaPageID, false)
		if _, derr := m.bpm.DeletePage(metaPageID); derr != nil {
			slog.Error(logPrefix+"rollback failed to delete index meta page", "pageID", metaPageID, "err", derr)
		}
	}

	indexID := m.nextIndexID
	fileBase := fmt.Sprintf("%s_idx_%s", tableName, indexName)

	im := &indexMetadata{IndexID: indexID, Name: indexName, TableName: tableName, KeyColumn: keyColumn, FileBase: fileBase}
	if err := im.serializeTo(frame.Data); err != nil {
		rollback()
		return nil, err
	}
	m.bpm.UnpinPage(metaPageID, true)
	if _, err := m.bpm.FlushPage(metaPageID); err != nil {
		rollback()
		return nil, fmt.Errorf("catalog: create index %q: flush meta page: %w", indexName, err)
	}

	fs := storage.LocalFileSet{Dir: m.dataDir, Base: fileBase}
	tree := btree.NewTree(m.sm, fs, m.heapPool.View(fs))

	info := &IndexInfo{ID: indexID, Name: indexName, TableName: tableName, KeyColumn: keyColumn, MetaPageID: metaPageID, Tree: tree}
	m.indexes[indexID] = info
	m.indexNames[tableName][indexName] = indexID
	m.meta.indexPages[indexID] = metaPageID
	m.nextIndexID++

	if err := m.flushCatalogMetaPage(); err != nil {
		delete(m.indexes, indexID)
		delete(m.indexNames[tableName], indexName)
		delete(m.meta.indexPages, indexID)
		rollback()
		return nil, err
	}

	slog.Debug(logPrefix+"created index", "table", tableName, "index", indexName, "indexID", indexID)
	return info, nil
}

// DropIndex removes an index's on-disk segments, catalog-meta entry, and
// meta page, then flushes.
func (m *Manager) DropIndex(tableName, indexName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dropIndexLocked(tableName, indexName); err != nil {
		return err
	}
	return m.flushCatalogMetaPage()
}

func (m *Manager) dropIndexLocked(tableName, indexName string) error {
	indexID, ok := m.indexNames[tableName][indexName]
	if !ok {
		return ErrIndexNotFound
	}
	info := m.indexes[indexID]

	if info.Tree != nil {
		_ = info.Tree.Close()
	}
	fs := storage.LocalFileSet{Dir: m.dataDir, Base: fmt.Sprintf("%s_idx_%s", tableName, indexName)}
	if err := btree.DropIndex(fs); err != nil {
		slog.Error(logPrefix+"drop index: remove segments failed", "table", tableName, "index", indexName, "err", err)
	}

	delete(m.meta.indexPages, indexID)
	m.bpm.UnpinPage(info.MetaPageID, false)
	if _, err := m.bpm.DeletePage(info.MetaPageID); err != nil {
		return fmt.Errorf("catalog: drop index %q: delete meta page: %w", indexName, err)
	}

	delete(m.indexes, indexID)
	delete(m.indexNames[tableName], indexName)
	return nil
}

// GetIndex returns the IndexInfo registered for (tableName, indexName).
func (m *Manager) GetIndex(tableName, indexName string) (*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	indexID, ok := m.indexNames[tableName][indexName]
	if !ok {
		return nil, ErrIndexNotFound
	}
	return m.indexes[indexID], nil
}

// GetTableIndexes returns every index registered on tableName.
func (m *Manager) GetTableIndexes(tableName string) []*IndexInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.indexNames[tableName]))
	for n := range m.indexNames[tableName] {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*IndexInfo, 0, len(names))
	for _, n := range names {
		out = append(out, m.indexes[m.indexNames[tableName][n]])
	}
	return out
}

// flushCatalogMetaPage serializes catalog_meta into the well-known page
// and flushes it, so that recovery on restart observes at most
// "committed schema".
func (m *Manager) flushCatalogMetaPage() error {
	frame, err := m.bpm.FetchPage(CatalogMetaPageID)
	if err != nil {
		return fmt.Errorf("catalog: flush meta page: %w", err)
	}
	if err := m.meta.serializeTo(frame.Data); err != nil {
		m.bpm.UnpinPage(CatalogMetaPageID, false)
		return err
	}
	m.bpm.UnpinPage(CatalogMetaPageID, true)
	ok, err := m.bpm.FlushPage(CatalogMetaPageID)
	if err != nil {
		return fmt.Errorf("catalog: flush meta page: %w", err)
	}
	if !ok {
		return ErrGenericFailure
	}
	return nil
}

// FlushCatalogMetaPage exposes flushCatalogMetaPage for callers (e.g. on a
// clean shutdown path) that want to force a durability point outside a
// mutating operation.
func (m *Manager) FlushCatalogMetaPage() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushCatalogMetaPage()
}
