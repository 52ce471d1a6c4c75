package pagestore

import (
	"sync"
	"sync/atomic"
)

// BTreeMap is a sorted key/value map backed by a copy-on-write B-tree of
// pages. One map owns one root page per version; mutations run under a
// single writer lock while readers traverse the last published root without
// locking.
type BTreeMap struct {
	mu sync.Mutex // the single writer

	store     *Store
	id        int
	name      string
	keyType   DataType
	valueType DataType

	root atomic.Pointer[Page]

	// childPageCountHook lets a map hide trailing auxiliary children from
	// recursive removal (spatial indexes keep a bounding child there).
	childPageCountHook func(*Page) int
}

// MapOption configures a BTreeMap at open time.
type MapOption func(*BTreeMap)

// WithChildPageCount overrides how many children of an internal page
// recursive removal (Clear) visits. Lookups and writes do not consult it.
func WithChildPageCount(fn func(*Page) int) MapOption {
	return func(m *BTreeMap) {
		m.childPageCountHook = fn
	}
}

// Name returns the map name.
func (m *BTreeMap) Name() string { return m.name }

// ID returns the store-assigned map id, embedded in every page this map
// writes.
func (m *BTreeMap) ID() int { return m.id }

// KeyType returns the key codec.
func (m *BTreeMap) KeyType() DataType { return m.keyType }

// ValueType returns the value codec.
func (m *BTreeMap) ValueType() DataType { return m.valueType }

// Root returns the last published root page.
func (m *BTreeMap) Root() *Page { return m.root.Load() }

// Len returns the number of entries.
func (m *BTreeMap) Len() int64 { return m.root.Load().TotalCount() }

func (m *BTreeMap) compare(a, b any) int { return m.keyType.Compare(a, b) }

func (m *BTreeMap) childPageCount(p *Page) int {
	if m.childPageCountHook != nil {
		return m.childPageCountHook(p)
	}
	return p.RawChildPageCount()
}

func (m *BTreeMap) readPage(pos uint64) (*Page, error) {
	return m.store.readPage(m, pos)
}

func (m *BTreeMap) removePage(pos uint64, memory int) {
	m.store.accountRemovedPage(pos, memory)
}

// Get returns the value stored under key.
func (m *BTreeMap) Get(key any) (any, bool, error) {
	p := m.root.Load()
	for {
		index := p.binarySearch(key)
		if p.IsLeaf() {
			if index < 0 {
				return nil, false, nil
			}
			return p.Value(index), true, nil
		}
		if index < 0 {
			index = -index - 1
		} else {
			index++
		}
		var err error
		p, err = p.ChildPage(index)
		if err != nil {
			return nil, false, err
		}
	}
}

// Has reports whether key is present.
func (m *BTreeMap) Has(key any) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// Put stores value under key and returns the previous value, if any.
func (m *BTreeMap) Put(key, value any) (any, error) {
	m.mu.Lock()
	old, err := m.putLocked(key, value)
	m.mu.Unlock()
	if err == nil {
		m.store.maybeAutoCommit()
	}
	return old, err
}

func (m *BTreeMap) putLocked(key, value any) (any, error) {
	if m.store.readOnly {
		return nil, ErrReadOnly
	}
	v := m.store.nextVersion()
	p := m.root.Load().copy(v)
	if p.Memory() > m.store.pageSplitSize && p.KeyCount() > 1 {
		// grow the tree upward: split the root and hang both halves under
		// a fresh internal page
		at := p.KeyCount() / 2
		k := p.Key(at)
		split := p.split(at)
		keys := []any{k}
		children := []PageReference{
			{Page: p, Pos: p.Pos(), Count: p.TotalCount()},
			{Page: split, Pos: split.Pos(), Count: split.TotalCount()},
		}
		p = createPage(m, v, keys, nil, children, p.TotalCount()+split.TotalCount(), 0)
	}
	old, err := m.put(p, v, key, value)
	if err != nil {
		return nil, err
	}
	m.root.Store(p)
	return old, nil
}

// put descends into p, splitting oversized children on the way down so the
// ascent never has to propagate splits.
func (m *BTreeMap) put(p *Page, v uint64, key, value any) (any, error) {
	if p.IsLeaf() {
		index := p.binarySearch(key)
		if index < 0 {
			p.InsertLeaf(-index-1, key, value)
			return nil, nil
		}
		return p.SetValue(index, value), nil
	}
	index := p.binarySearch(key)
	if index < 0 {
		index = -index - 1
	} else {
		index++
	}
	cOld, err := p.ChildPage(index)
	if err != nil {
		return nil, err
	}
	c := cOld.copy(v)
	if c.Memory() > m.store.pageSplitSize && c.KeyCount() > 1 {
		at := c.KeyCount() / 2
		k := c.Key(at)
		split := c.split(at)
		p.SetChild(index, split)
		p.InsertNode(index, k, c)
		// the key may now belong to either half; search again from p
		return m.put(p, v, key, value)
	}
	old, err := m.put(c, v, key, value)
	if err != nil {
		return nil, err
	}
	p.SetChild(index, c)
	return old, nil
}

// Remove deletes key and returns the removed value, if any.
func (m *BTreeMap) Remove(key any) (any, error) {
	m.mu.Lock()
	old, err := m.removeLocked(key)
	m.mu.Unlock()
	if err == nil {
		m.store.maybeAutoCommit()
	}
	return old, err
}

func (m *BTreeMap) removeLocked(key any) (any, error) {
	if m.store.readOnly {
		return nil, ErrReadOnly
	}
	root := m.root.Load()
	// probe first so a miss does not churn page copies
	if _, found, err := m.Get(key); err != nil {
		return nil, err
	} else if !found {
		return nil, nil
	}
	v := m.store.nextVersion()
	p := root.copy(v)
	old, err := m.remove(p, v, key)
	if err != nil {
		return nil, err
	}
	if !p.IsLeaf() {
		if p.TotalCount() == 0 {
			// the descent already released p when its last child emptied
			p = createEmpty(m, v)
		} else if p.KeyCount() == 0 {
			// internal root with a single child: collapse one level
			child, err := p.ChildPage(0)
			if err != nil {
				return nil, err
			}
			p.removePage()
			p = child
		}
	}
	m.root.Store(p)
	return old, nil
}

func (m *BTreeMap) remove(p *Page, v uint64, key any) (any, error) {
	if p.IsLeaf() {
		index := p.binarySearch(key)
		if index < 0 {
			return nil, nil
		}
		old := p.Value(index)
		p.Remove(index)
		return old, nil
	}
	index := p.binarySearch(key)
	if index < 0 {
		index = -index - 1
	} else {
		index++
	}
	cOld, err := p.ChildPage(index)
	if err != nil {
		return nil, err
	}
	c := cOld.copy(v)
	old, err := m.remove(c, v, key)
	if err != nil {
		return nil, err
	}
	if c.TotalCount() == 0 {
		// this child is now empty
		if p.KeyCount() == 0 {
			p.SetChild(index, c)
			p.removePage()
		} else {
			p.Remove(index)
		}
		if c.IsLeaf() {
			c.removePage()
		}
	} else {
		p.SetChild(index, c)
	}
	return old, nil
}

// Clear removes every entry, releasing the whole subtree's live bytes, and
// installs a fresh empty root.
func (m *BTreeMap) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.readOnly {
		return ErrReadOnly
	}
	if err := m.root.Load().removeAllRecursive(); err != nil {
		return err
	}
	m.root.Store(createEmpty(m, m.store.nextVersion()))
	return nil
}
