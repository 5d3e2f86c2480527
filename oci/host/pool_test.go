package host

import (
	"sync"
	"testing"
	"time"

	"github.com/tomyedwab/ocidb/oci"
)

func TestPoolLifecycle(t *testing.T) {
	h := setupTestHost(t)

	p, err := h.PoolCreate("orcl", "scott", "tiger", oci.PoolSession, oci.SessionDefault, 1, 3, 1)
	if err != nil {
		t.Fatalf("PoolCreate failed: %v", err)
	}
	if h.PoolMin(p) != 1 || h.PoolMax(p) != 3 || h.PoolIncrement(p) != 1 {
		t.Errorf("Unexpected sizing min=%d max=%d incr=%d", h.PoolMin(p), h.PoolMax(p), h.PoolIncrement(p))
	}
	if n := h.PoolOpenedCount(p); n != 1 {
		t.Errorf("Expected 1 opened session, got %d", n)
	}

	c1, err := h.PoolGetConnection(p, "")
	if err != nil {
		t.Fatalf("PoolGetConnection failed: %v", err)
	}
	c2, err := h.PoolGetConnection(p, "")
	if err != nil {
		t.Fatalf("PoolGetConnection failed: %v", err)
	}
	if h.PoolBusyCount(p) != 2 || h.PoolOpenedCount(p) != 2 {
		t.Errorf("Expected busy=2 opened=2, got busy=%d opened=%d", h.PoolBusyCount(p), h.PoolOpenedCount(p))
	}

	run(t, h, c1, "SELECT 1 FROM dual")

	if err := h.ConnectionFree(c1); err != nil {
		t.Fatalf("ConnectionFree failed: %v", err)
	}
	if h.IsConnected(c1) {
		t.Error("Released connection handle should be invalid")
	}
	if h.PoolBusyCount(p) != 1 || h.PoolOpenedCount(p) != 2 {
		t.Errorf("Expected busy=1 opened=2, got busy=%d opened=%d", h.PoolBusyCount(p), h.PoolOpenedCount(p))
	}

	h.ConnectionFree(c2)
	if err := h.PoolFree(p); err != nil {
		t.Fatalf("PoolFree failed: %v", err)
	}
	if _, err := h.PoolGetConnection(p, ""); err == nil {
		t.Error("PoolGetConnection should fail on a freed pool")
	}
}

func TestPoolExhaustion(t *testing.T) {
	h := setupTestHost(t)

	p, err := h.PoolCreate("orcl", "scott", "tiger", oci.PoolConnection, oci.SessionDefault, 1, 2, 1)
	if err != nil {
		t.Fatalf("PoolCreate failed: %v", err)
	}
	h.PoolGetConnection(p, "")
	h.PoolGetConnection(p, "")

	// No-wait fails immediately
	h.PoolSetNoWait(p, true)
	if !h.PoolNoWait(p) {
		t.Fatal("PoolNoWait should report true")
	}
	_, err = h.PoolGetConnection(p, "")
	if code := nativeCode(t, err); code != oci.CodePoolExhausted {
		t.Errorf("Expected ORA-24418, got %d", code)
	}

	// Waiting gives up after the pool timeout
	h.PoolSetNoWait(p, false)
	h.PoolSetTimeout(p, 1)
	start := time.Now()
	_, err = h.PoolGetConnection(p, "")
	if code := nativeCode(t, err); code != oci.CodePoolTimeout {
		t.Errorf("Expected ORA-24496, got %d", code)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("Expected the call to wait for the timeout, returned after %v", elapsed)
	}
	if h.PoolBusyCount(p) > h.PoolOpenedCount(p) || h.PoolOpenedCount(p) > h.PoolMax(p) {
		t.Error("Pool counters out of bounds")
	}
}

func TestPoolConcurrentGrowth(t *testing.T) {
	h := setupTestHost(t)

	for round := 0; round < 20; round++ {
		p, err := h.PoolCreate("orcl", "scott", "tiger", oci.PoolConnection, oci.SessionDefault, 1, 4, 4)
		if err != nil {
			t.Fatalf("PoolCreate failed: %v", err)
		}

		conns := make([]oci.Conn, 4)
		var wg sync.WaitGroup
		for i := range conns {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, err := h.PoolGetConnection(p, "")
				if err != nil {
					t.Errorf("Round %d: PoolGetConnection failed: %v", round, err)
					return
				}
				conns[i] = c
			}()
		}
		wg.Wait()

		busy, opened, max := h.PoolBusyCount(p), h.PoolOpenedCount(p), h.PoolMax(p)
		if busy != 4 || opened != max {
			t.Errorf("Round %d: expected busy=4 opened=%d, got busy=%d opened=%d", round, max, busy, opened)
		}
		if opened > max {
			t.Fatalf("Round %d: opened=%d exceeds max=%d", round, opened, max)
		}
		for _, c := range conns {
			if c != "" {
				h.ConnectionFree(c)
			}
		}
		h.PoolFree(p)
	}
}

func TestPoolTagAffinity(t *testing.T) {
	h := setupTestHost(t)

	p, _ := h.PoolCreate("orcl", "scott", "tiger", oci.PoolSession, oci.SessionDefault, 2, 2, 1)
	c, err := h.PoolGetConnection(p, "reports")
	if err != nil {
		t.Fatalf("PoolGetConnection failed: %v", err)
	}
	tagged, _ := lookup[*session](h, string(c), "connection")
	h.ConnectionFree(c)

	for i := 0; i < 3; i++ {
		c, err = h.PoolGetConnection(p, "reports")
		if err != nil {
			t.Fatalf("PoolGetConnection failed: %v", err)
		}
		got, _ := lookup[*session](h, string(c), "connection")
		if got != tagged {
			t.Errorf("Attempt %d: expected the session carrying the tag", i)
		}
		h.ConnectionFree(c)
	}
}

func TestPoolReleaseRollsBack(t *testing.T) {
	h := setupTestHost(t)
	admin := connect(t, h)
	run(t, h, admin, "CREATE TABLE pooled (id INTEGER)")

	p, _ := h.PoolCreate("orcl", "scott", "tiger", oci.PoolSession, oci.SessionDefault, 1, 1, 1)
	c, _ := h.PoolGetConnection(p, "")
	run(t, h, c, "INSERT INTO pooled VALUES (1)")
	h.ConnectionFree(c)

	c, _ = h.PoolGetConnection(p, "")
	s := run(t, h, c, "SELECT COUNT(*) FROM pooled")
	rs, _ := h.Resultset(s)
	h.FetchNext(rs)
	if n, _ := h.GetInt(rs, 1); n != 0 {
		t.Errorf("Expected uncommitted insert to be rolled back, got %d rows", n)
	}
	if h.AutoCommit(c) {
		t.Error("Autocommit should be reset on release")
	}
}

func TestPoolReapsIdleSessions(t *testing.T) {
	h := setupTestHost(t)

	p, _ := h.PoolCreate("orcl", "scott", "tiger", oci.PoolSession, oci.SessionDefault, 1, 3, 1)
	c1, _ := h.PoolGetConnection(p, "")
	c2, _ := h.PoolGetConnection(p, "")
	h.ConnectionFree(c1)
	h.ConnectionFree(c2)
	if n := h.PoolOpenedCount(p); n != 2 {
		t.Fatalf("Expected 2 opened sessions, got %d", n)
	}

	h.PoolSetTimeout(p, 1)
	time.Sleep(1100 * time.Millisecond)
	c, err := h.PoolGetConnection(p, "")
	if err != nil {
		t.Fatalf("PoolGetConnection failed: %v", err)
	}
	defer h.ConnectionFree(c)
	if n := h.PoolOpenedCount(p); n != 1 {
		t.Errorf("Expected idle sessions above min to be reaped, got %d opened", n)
	}
}

func TestPoolStatementCacheSize(t *testing.T) {
	h := setupTestHost(t)
	p, _ := h.PoolCreate("orcl", "scott", "tiger", oci.PoolSession, oci.SessionDefault, 1, 1, 1)

	if n := h.PoolStatementCacheSize(p); n != defaultStatementCacheSize {
		t.Errorf("Expected default cache size, got %d", n)
	}
	h.PoolSetStatementCacheSize(p, 5)
	c, _ := h.PoolGetConnection(p, "")
	s, _ := lookup[*session](h, string(c), "connection")
	if s.cache.size != 5 {
		t.Errorf("Expected session cache size 5, got %d", s.cache.size)
	}
}
