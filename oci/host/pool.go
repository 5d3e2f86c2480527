package host

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/tomyedwab/ocidb/oci"
)

// pool keeps a set of sessions for one user and hands them out under a busy
// slot semaphore sized to max.
type pool struct {
	host   *Host
	id     string
	db     string
	user   string
	pwd    string
	kind   oci.PoolKind
	mode   oci.SessionMode
	min    uint32
	max    uint32
	incr   uint32
	sem    *semaphore.Weighted
	closed atomic.Bool

	opened    atomic.Uint32
	busy      atomic.Uint32
	timeout   atomic.Uint32 // seconds
	noWait    atomic.Bool
	stmtCache atomic.Uint32

	mu   sync.Mutex // guards idle and all
	idle []*session
	all  map[*session]struct{}
}

func (h *Host) PoolCreate(db, user, pwd string, kind oci.PoolKind, mode oci.SessionMode, min, max, incr uint32) (oci.Pool, error) {
	if !h.initialized.Load() {
		return "", driverError(drvNotInitialized, "environment not initialized")
	}
	if max == 0 || min > max {
		return "", driverError(drvTypeMismatch, "invalid pool sizing min=%d max=%d", min, max)
	}
	if incr == 0 {
		incr = 1
	}
	if kind == oci.PoolConnection {
		mode &^= oci.SessionSysDBA
	}

	p := &pool{
		host: h,
		db:   db,
		user: user,
		pwd:  pwd,
		kind: kind,
		mode: mode,
		min:  min,
		max:  max,
		incr: incr,
		sem:  semaphore.NewWeighted(int64(max)),
		all:  make(map[*session]struct{}),
	}
	p.stmtCache.Store(h.cacheSize)

	if err := p.grow(min); err != nil {
		p.free()
		return "", err
	}

	p.id = h.register(p)
	h.mu.Lock()
	h.pools[p] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Pool created", "handle", p.id, "user", user, "min", min, "max", max, "increment", incr)
	return oci.Pool(p.id), nil
}

// reserve claims one of the max session slots, reporting false when every
// slot is already open or being opened.
func (p *pool) reserve() bool {
	for {
		opened := p.opened.Load()
		if opened >= p.max {
			return false
		}
		if p.opened.CompareAndSwap(opened, opened+1) {
			return true
		}
	}
}

// open logs on a session for a slot claimed with reserve. The slot is
// given back when the logon fails.
func (p *pool) open() (*session, error) {
	s, err := p.host.logon(p.db, p.user, p.pwd, p.mode, p.stmtCache.Load())
	if err != nil {
		p.opened.Dec()
		return nil, err
	}
	s.pool = p
	p.mu.Lock()
	p.all[s] = struct{}{}
	p.mu.Unlock()
	return s, nil
}

// grow opens up to n new idle sessions, bounded by max. Must not hold p.mu.
func (p *pool) grow(n uint32) error {
	for i := uint32(0); i < n; i++ {
		if !p.reserve() {
			return nil
		}
		s, err := p.open()
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.idle = append(p.idle, s)
		p.mu.Unlock()
	}
	return nil
}

// take removes an idle session, preferring one carrying tag.
func (p *pool) take(tag string) *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		return nil
	}
	pick := len(p.idle) - 1
	if tag != "" {
		for i, s := range p.idle {
			if s.tag == tag {
				pick = i
				break
			}
		}
	}
	s := p.idle[pick]
	p.idle = append(p.idle[:pick], p.idle[pick+1:]...)
	return s
}

func (p *pool) get(tag string) (*session, error) {
	if p.closed.Load() {
		return nil, driverError(drvPoolClosed, "pool is closed")
	}
	if p.noWait.Load() {
		if !p.sem.TryAcquire(1) {
			return nil, serverError(oci.CodePoolExhausted, "No available sessions in the pool")
		}
	} else {
		ctx := context.Background()
		if t := p.timeout.Load(); t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
			defer cancel()
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, serverError(oci.CodePoolTimeout, "Session pool get operation timed out")
		}
	}

	p.reap()
	s, err := p.acquire(tag)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	s.tag = tag
	s.lastUsed = time.Now()
	s.cache.resize(p.stmtCache.Load())
	p.busy.Inc()
	return s, nil
}

// acquire takes an idle session or opens a new one in a free slot, growing
// the pool by its increment. The caller holds a busy slot, so when every
// session slot is open one of them is idle or about to become idle.
func (p *pool) acquire(tag string) (*session, error) {
	for {
		if s := p.take(tag); s != nil {
			return s, nil
		}
		if p.closed.Load() {
			return nil, driverError(drvPoolClosed, "pool is closed")
		}
		if p.reserve() {
			s, err := p.open()
			if err != nil {
				return nil, err
			}
			if err := p.grow(p.incr - 1); err != nil {
				p.host.logger.Warn("Failed to grow pool", "handle", p.id, "error", err)
			}
			return s, nil
		}
		// A concurrent grow holds the remaining slots.
		time.Sleep(time.Millisecond)
	}
}

func (p *pool) release(s *session) error {
	s.reset()
	p.host.unregister(s.id)
	s.id = ""
	s.lastUsed = time.Now()
	p.busy.Dec()

	if p.closed.Load() {
		p.sem.Release(1)
		return nil
	}
	p.mu.Lock()
	p.idle = append(p.idle, s)
	p.mu.Unlock()
	p.sem.Release(1)
	return nil
}

// reap closes idle sessions above min that exceeded the pool timeout.
func (p *pool) reap() {
	t := p.timeout.Load()
	if t == 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(t) * time.Second)

	var expired []*session
	p.mu.Lock()
	kept := p.idle[:0]
	for _, s := range p.idle {
		if s.lastUsed.Before(cutoff) && p.opened.Load()-uint32(len(expired)) > p.min {
			expired = append(expired, s)
			delete(p.all, s)
			continue
		}
		kept = append(kept, s)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, s := range expired {
		s.close()
		p.opened.Dec()
	}
	if len(expired) > 0 {
		p.host.logger.Debug("Reaped idle pool sessions", "handle", p.id, "count", len(expired))
	}
}

func (p *pool) free() {
	p.closed.Store(true)
	p.mu.Lock()
	sessions := make([]*session, 0, len(p.all))
	for s := range p.all {
		sessions = append(sessions, s)
	}
	clear(p.all)
	p.idle = nil
	p.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	p.opened.Store(0)
	p.busy.Store(0)

	if p.id != "" {
		p.host.unregister(p.id)
		p.host.mu.Lock()
		delete(p.host.pools, p)
		p.host.mu.Unlock()
		p.host.logger.Info("Pool closed", "handle", p.id)
		p.id = ""
	}
}

func (h *Host) PoolFree(ph oci.Pool) error {
	p, err := lookup[*pool](h, string(ph), "pool")
	if err != nil {
		return err
	}
	p.free()
	return nil
}

func (h *Host) PoolGetConnection(ph oci.Pool, tag string) (oci.Conn, error) {
	p, err := lookup[*pool](h, string(ph), "pool")
	if err != nil {
		return "", err
	}
	s, err := p.get(tag)
	if err != nil {
		return "", err
	}
	s.id = h.register(s)
	return oci.Conn(s.id), nil
}

func (h *Host) poolAttr(ph oci.Pool, get func(*pool) uint32) uint32 {
	p, err := lookup[*pool](h, string(ph), "pool")
	if err != nil {
		return 0
	}
	return get(p)
}

func (h *Host) PoolMin(p oci.Pool) uint32 {
	return h.poolAttr(p, func(p *pool) uint32 { return p.min })
}

func (h *Host) PoolMax(p oci.Pool) uint32 {
	return h.poolAttr(p, func(p *pool) uint32 { return p.max })
}

func (h *Host) PoolIncrement(p oci.Pool) uint32 {
	return h.poolAttr(p, func(p *pool) uint32 { return p.incr })
}

func (h *Host) PoolOpenedCount(p oci.Pool) uint32 {
	return h.poolAttr(p, func(p *pool) uint32 { return p.opened.Load() })
}

func (h *Host) PoolBusyCount(p oci.Pool) uint32 {
	return h.poolAttr(p, func(p *pool) uint32 { return p.busy.Load() })
}

func (h *Host) PoolTimeout(p oci.Pool) uint32 {
	return h.poolAttr(p, func(p *pool) uint32 { return p.timeout.Load() })
}

func (h *Host) PoolStatementCacheSize(p oci.Pool) uint32 {
	return h.poolAttr(p, func(p *pool) uint32 { return p.stmtCache.Load() })
}

func (h *Host) PoolSetTimeout(ph oci.Pool, seconds uint32) error {
	p, err := lookup[*pool](h, string(ph), "pool")
	if err != nil {
		return err
	}
	p.timeout.Store(seconds)
	return nil
}

func (h *Host) PoolNoWait(ph oci.Pool) bool {
	p, err := lookup[*pool](h, string(ph), "pool")
	return err == nil && p.noWait.Load()
}

func (h *Host) PoolSetNoWait(ph oci.Pool, enable bool) error {
	p, err := lookup[*pool](h, string(ph), "pool")
	if err != nil {
		return err
	}
	p.noWait.Store(enable)
	return nil
}

func (h *Host) PoolSetStatementCacheSize(ph oci.Pool, size uint32) error {
	p, err := lookup[*pool](h, string(ph), "pool")
	if err != nil {
		return err
	}
	p.stmtCache.Store(size)
	return nil
}
