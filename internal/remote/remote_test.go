package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

// fakeRTDB is a tiny Realtime Database REST emulator
type fakeRTDB struct {
	mu     sync.Mutex
	values map[string]string
	fail   bool
}

func (f *fakeRTDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		v, ok := f.values[r.URL.Path]
		if !ok {
			io.WriteString(w, "null")
			return
		}
		io.WriteString(w, v)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.values[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestFirebaseGetSet(t *testing.T) {
	db := &fakeRTDB{values: map[string]string{"/sensorValue/sensor1.json": "45"}}
	srv := httptest.NewServer(db)
	defer srv.Close()

	store, err := NewFirebase(srv.URL+"/", WithTimeout(time.Second))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	raw, err := store.Get(ctx, "sensorValue/sensor1")
	require.NoError(t, err)
	require.Equal(t, "45", string(raw))

	_, err = store.Get(ctx, "sensorValue/sensor9")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, PathThreshold, 60))
	raw, err = store.Get(ctx, PathThreshold)
	require.NoError(t, err)
	require.Equal(t, "60", string(raw))

	require.NoError(t, store.Set(ctx, PathBuzzerTest, true))
	raw, err = store.Get(ctx, PathBuzzerTest)
	require.NoError(t, err)
	require.Equal(t, "true", string(raw))
}

func TestFirebaseKeepsAuthQuery(t *testing.T) {
	var (
		mu      sync.Mutex
		queries = map[string]url.Values{}
	)
	db := &fakeRTDB{values: map[string]string{"/userInput/smokeThreshold.json": "70"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries[r.Method] = r.URL.Query()
		mu.Unlock()
		db.ServeHTTP(w, r)
	}))
	defer srv.Close()

	store, err := NewFirebase(srv.URL + "/?auth=secret-token")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	raw, err := store.Get(ctx, PathThreshold)
	require.NoError(t, err)
	require.Equal(t, "70", string(raw))
	require.NoError(t, store.Set(ctx, PathThreshold, 65))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "secret-token", queries[http.MethodGet].Get("auth"))
	require.Empty(t, queries[http.MethodGet].Get("print"))
	require.Equal(t, "secret-token", queries[http.MethodPut].Get("auth"))
	require.Equal(t, "silent", queries[http.MethodPut].Get("print"))

	db.mu.Lock()
	defer db.mu.Unlock()
	require.Equal(t, "65", db.values["/userInput/smokeThreshold.json"])
}

func TestFirebaseTransportFailure(t *testing.T) {
	db := &fakeRTDB{values: map[string]string{}, fail: true}
	srv := httptest.NewServer(db)
	defer srv.Close()

	store, err := NewFirebase(srv.URL)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), PathLastSeen)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound), "transport failure must not look like an absent path")

	require.Error(t, store.Set(context.Background(), PathThreshold, 10))

	require.NoError(t, store.Close())
	_, err = store.Get(context.Background(), PathLastSeen)
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewFirebaseRejectsBadURL(t *testing.T) {
	_, err := NewFirebase("")
	require.Error(t, err)

	_, err = NewFirebase("ftp://example.com")
	require.Error(t, err)
}

func TestRedisGetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("sensorValue/sensor2", "92"))

	store := NewRedis(mr.Addr(), WithTimeout(time.Second))
	defer store.Close()

	ctx := context.Background()

	raw, err := store.Get(ctx, "sensorValue/sensor2")
	require.NoError(t, err)
	require.Equal(t, "92", string(raw))

	_, err = store.Get(ctx, "sensorValue/sensor3")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, PathThreshold, 80))
	got, err := mr.Get(PathThreshold)
	require.NoError(t, err)
	require.Equal(t, "80", got)
}

func TestRedisTransportFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedis(mr.Addr(), WithTimeout(200*time.Millisecond))
	defer store.Close()

	mr.Close()

	_, err := store.Get(context.Background(), PathLastSeen)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestMemoryHooks(t *testing.T) {
	store := NewMemory()
	store.Put("sensorValue/sensor1", 45)

	boom := errors.New("boom")
	store.OnGet(func(ctx context.Context, path string) error {
		if path == "sensorValue/sensor1" {
			return boom
		}
		return nil
	})

	_, err := store.Get(context.Background(), "sensorValue/sensor1")
	require.ErrorIs(t, err, boom)

	_, err = store.Get(context.Background(), "sensorValue/sensor2")
	require.ErrorIs(t, err, ErrNotFound)

	store.OnSet(func(ctx context.Context, path string) error { return boom })
	require.ErrorIs(t, store.Set(context.Background(), PathThreshold, 60), boom)
	require.Equal(t, 1, store.SetCount(PathThreshold))
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New("memory", "", "")
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)

	_, err = New("firebase", "", "")
	require.Error(t, err)

	_, err = New("etcd", "", "")
	require.Error(t, err)
}
