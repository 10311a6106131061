package context

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cuemby/ledgerd/pkg/capability"
	"github.com/cuemby/ledgerd/pkg/metrics"
	"github.com/cuemby/ledgerd/pkg/record"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/storage"
)

// MaxChildContexts is the size of the child context pool.
const MaxChildContexts = 1024

// heightCacheSize bounds the in-memory block-height -> block UUID cache
// sitting in front of the height bucket. Sized generously above any
// realistic working set of recently-queried heights.
const heightCacheSize = 4096

// RootContext owns the storage environment and the full capability set
// for one connection to the data service.
type RootContext struct {
	mu    sync.Mutex
	caps  capability.Set
	store *storage.Store

	children [MaxChildContexts]ChildContext
	freeHead int // index of the first free slot, or -1 if the pool is exhausted

	heightCache *lru.Cache
}

// ChildContext is a per-request handle carrying a reduced capability mask.
// It is a value embedded in the root's fixed pool; Index identifies its
// slot for the wire protocol's child_index field.
type ChildContext struct {
	root  *RootContext
	caps  capability.Set
	index int
	live  bool
	next  int // free-list link when not live
}

// NewRootContext creates the root context. caps must have
// capability.RootContextCreate set. On success the root's capabilities
// are every bit except RootContextCreate, and the environment at dataDir
// is opened.
func NewRootContext(caps capability.Set, dataDir string) (rc *RootContext, err error) {
	if !caps.IsSet(capability.RootContextCreate) {
		return nil, statuscode.Wrap(statuscode.NotAuthorized, fmt.Errorf("root_context_create not set"))
	}

	store, err := storage.Open(dataDir)
	if err != nil {
		return nil, statuscode.Wrap(statuscode.EnvOpenFailure, err)
	}
	defer func() {
		if err != nil {
			store.Close()
		}
	}()

	heightCache, lerr := lru.New(heightCacheSize)
	if lerr != nil {
		return nil, statuscode.Wrap(statuscode.EnvOpenFailure, lerr)
	}

	rc = &RootContext{
		caps:        capability.InitTrue(),
		store:       store,
		heightCache: heightCache,
	}
	rc.caps.Clear(capability.RootContextCreate)

	rc.freeHead = 0
	for i := range rc.children {
		rc.children[i] = ChildContext{root: rc, index: i, next: i + 1}
	}
	rc.children[MaxChildContexts-1].next = -1

	return rc, nil
}

// Close syncs and closes the owned environment. It is the root context's
// scoped release.
func (rc *RootContext) Close() error {
	return rc.store.Close()
}

// Store returns the environment handle owned by this root.
func (rc *RootContext) Store() *storage.Store { return rc.store }

// CachedBlockIDForHeight returns a previously resolved block UUID for
// height, if one is still cached. The height bucket remains the
// authority; a cache miss is not an error.
func (rc *RootContext) CachedBlockIDForHeight(height uint64) (record.UUID, bool) {
	v, ok := rc.heightCache.Get(height)
	if !ok {
		return record.UUID{}, false
	}
	return v.(record.UUID), true
}

// CacheBlockIDForHeight records the resolved block UUID for height.
func (rc *RootContext) CacheBlockIDForHeight(height uint64, id record.UUID) {
	rc.heightCache.Add(height, id)
}

// Caps returns the root's current capability set.
func (rc *RootContext) Caps() capability.Set {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.caps
}

// ReduceCaps bitwise-ANDs the root's capabilities with mask, then clears
// RootContextReduceCaps on the root so no further reduction is possible.
func (rc *RootContext) ReduceCaps(mask capability.Set) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.caps.IsSet(capability.RootContextReduceCaps) {
		return statuscode.Wrap(statuscode.NotAuthorized, fmt.Errorf("root_context_reduce_caps not set"))
	}

	rc.caps = rc.caps.And(mask)
	rc.caps.Clear(capability.RootContextReduceCaps)
	return nil
}

// CreateChild allocates a child context from the free-list pool with
// capabilities equal to the root's current caps ANDed with mask. It fails
// with OutOfChildInstances if the pool is exhausted.
func (rc *RootContext) CreateChild(mask capability.Set) (*ChildContext, uint32, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.caps.IsSet(capability.ChildContextCreate) {
		return nil, 0, statuscode.Wrap(statuscode.NotAuthorized, fmt.Errorf("child_context_create not set"))
	}
	if rc.freeHead == -1 {
		metrics.OutOfChildInstancesTotal.Inc()
		return nil, 0, statuscode.Wrap(statuscode.OutOfChildInstances, fmt.Errorf("child context pool exhausted"))
	}

	idx := rc.freeHead
	slot := &rc.children[idx]
	rc.freeHead = slot.next

	slot.caps = rc.caps.And(mask)
	slot.live = true
	slot.next = -1
	metrics.ChildContextsInUse.Inc()

	return slot, uint32(idx), nil
}

// Child returns the live child at index, or nil if the index is out of
// range or the slot is not currently allocated.
func (rc *RootContext) Child(index uint32) *ChildContext {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if index >= MaxChildContexts {
		return nil
	}
	slot := &rc.children[index]
	if !slot.live {
		return nil
	}
	return slot
}

// Close requires capability.ChildContextClose on the child, then returns
// its slot to the root's free-list. Slots are pushed onto the free-list
// head (child.next = head; head = child), never re-derived from a stale
// pointer.
func (c *ChildContext) Close() error {
	if !c.caps.IsSet(capability.ChildContextClose) {
		return statuscode.Wrap(statuscode.NotAuthorized, fmt.Errorf("child_context_close not set"))
	}

	rc := c.root
	rc.mu.Lock()
	defer rc.mu.Unlock()

	c.live = false
	c.caps = capability.InitFalse()
	c.next = rc.freeHead
	rc.freeHead = c.index
	metrics.ChildContextsInUse.Dec()

	return nil
}

// Caps returns the child's current capability set.
func (c *ChildContext) Caps() capability.Set { return c.caps }

// Index returns the child's pool slot index.
func (c *ChildContext) Index() uint32 { return uint32(c.index) }

// Root returns the owning root context.
func (c *ChildContext) Root() *RootContext { return c.root }
