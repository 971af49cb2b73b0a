package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc, mutate func(*VendorOptions)) (*VendorResolver, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	opts := DefaultVendorOptions()
	opts.LookupURL = srv.URL
	opts.Registry = false
	opts.Timeout = time.Second
	if mutate != nil {
		mutate(&opts)
	}
	resolver, err := NewVendorResolver(opts)
	require.NoError(t, err)
	return resolver, &hits
}

func TestVendorResolverRemoteAnswer(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AA:BB:CC:00:11:22", r.URL.Path)
		_, _ = w.Write([]byte("  Acme Networks\n"))
	}, nil)

	assert.Equal(t, "Acme Networks", resolver.Resolve(context.Background(), "aa-bb-cc-00-11-22"))
}

func TestVendorResolverFallsBackToTable(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}, nil)

	assert.Equal(t, "Mikrotik", resolver.Resolve(context.Background(), "00:0C:42:11:22:33"))
	assert.Equal(t, "Apple", resolver.Resolve(context.Background(), "00:1D:E1:00:00:01"))
}

func TestVendorResolverEmptyBodyFallsBack(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, nil)

	assert.Equal(t, "Intelbras", resolver.Resolve(context.Background(), "B4:02:47:AA:BB:CC"))
}

func TestVendorResolverTimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(o *VendorOptions) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	assert.Equal(t, "Mikrotik", resolver.Resolve(context.Background(), "00:0C:42:11:22:33"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestVendorResolverUnknownAddress(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}, nil)

	assert.Equal(t, UnknownVendor, resolver.Resolve(context.Background(), "02:11:22:33:44:55"))
	assert.Equal(t, UnknownVendor, resolver.Resolve(context.Background(), "not-a-mac"))
	assert.Equal(t, UnknownVendor, resolver.Resolve(context.Background(), ""))
}

func TestVendorResolverOfflineNeverCallsRemote(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Remote Vendor"))
	}, func(o *VendorOptions) { o.Remote = false })

	assert.Equal(t, "Ubiquiti Networks", resolver.Resolve(context.Background(), "24:5A:4C:01:02:03"))
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestVendorResolverMemoises(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Acme Networks"))
	}, nil)

	ctx := context.Background()
	assert.Equal(t, "Acme Networks", resolver.Resolve(ctx, "AA:BB:CC:00:11:22"))
	assert.Equal(t, "Acme Networks", resolver.Resolve(ctx, "aa:bb:cc:00:11:22"))
	assert.Equal(t, "Acme Networks", resolver.Resolve(ctx, "AABBCC001122"))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestVendorResolverWithoutCache(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Acme Networks"))
	}, func(o *VendorOptions) { o.CacheSize = 0 })

	ctx := context.Background()
	resolver.Resolve(ctx, "AA:BB:CC:00:11:22")
	resolver.Resolve(ctx, "AA:BB:CC:00:11:22")
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestVendorResolverRejectsBadURL(t *testing.T) {
	opts := DefaultVendorOptions()
	opts.LookupURL = "http://[::1"
	_, err := NewVendorResolver(opts)
	require.Error(t, err)
}

func TestVendorTableLongestPrefixWins(t *testing.T) {
	table := NewVendorTable(map[string]string{
		"70B3D5":    "IEEE Registration Authority",
		"70B3D5123": "Sensor Co",
		"zz":        "ignored",
		"AABB":      "",
	})

	assert.Equal(t, 2, table.Len())

	vendor, ok := table.Lookup("70:B3:D5:12:34:56")
	require.True(t, ok)
	assert.Equal(t, "Sensor Co", vendor)

	vendor, ok = table.Lookup("70:B3:D5:99:00:00")
	require.True(t, ok)
	assert.Equal(t, "IEEE Registration Authority", vendor)

	_, ok = table.Lookup("11:22:33:44:55:66")
	assert.False(t, ok)

	var empty *VendorTable
	_, ok = empty.Lookup("70B3D5")
	assert.False(t, ok)
	assert.Zero(t, empty.Len())
}

func TestDefaultVendorTableEntries(t *testing.T) {
	table := DefaultVendorTable()
	for key, want := range map[string]string{
		"000C42": "Mikrotik",
		"8C8813": "TP-Link Technologies",
		"D46AA8": "Xiaomi Communications",
		"606BBD": "Samsung Electronics",
		"9C431E": "NET/Claro",
	} {
		got, ok := table.Lookup(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got)
	}
}

func TestVendorKey(t *testing.T) {
	assert.Equal(t, "000C42", VendorKey("00:0c:42:11:22:33"))
	assert.Equal(t, "000C42", VendorKey("00-0C-42-11-22-33"))
	assert.Equal(t, "000C42", VendorKey("000c.4211.2233"))
	assert.Equal(t, "", VendorKey("00:0C"))
	assert.Equal(t, "", VendorKey("gg:hh:ii:jj:kk:ll"))
	assert.Equal(t, strings.Repeat("A", 6), VendorKey("AA:AA:AA:00:00:00"))
}

func TestVendorResolverRetriesAfterTransientFailure(t *testing.T) {
	var calls int32
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("Routerboard.com"))
	}, nil)

	ctx := context.Background()
	assert.Equal(t, "Mikrotik", resolver.Resolve(ctx, "00:0C:42:11:22:33"))
	assert.Equal(t, "Routerboard.com", resolver.Resolve(ctx, "00:0C:42:11:22:33"))
	assert.Equal(t, "Routerboard.com", resolver.Resolve(ctx, "00:0C:42:11:22:33"))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestVendorResolverMemoisesNotFound(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}, nil)

	ctx := context.Background()
	assert.Equal(t, "Mikrotik", resolver.Resolve(ctx, "00:0C:42:11:22:33"))
	assert.Equal(t, "Mikrotik", resolver.Resolve(ctx, "00:0C:42:11:22:33"))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestVendorResolverRetriesAfterTimeout(t *testing.T) {
	var calls int32
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte("Acme Networks"))
	}, func(o *VendorOptions) { o.Timeout = 50 * time.Millisecond })

	ctx := context.Background()
	assert.Equal(t, "Intelbras", resolver.Resolve(ctx, "AA:BB:CC:00:11:22"))
	assert.Equal(t, "Acme Networks", resolver.Resolve(ctx, "AA:BB:CC:00:11:22"))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}
