package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	serializer "github.com/always-cache/autocache/pkg/response-serializer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, backend Backend, partition string) Store {
	t.Helper()
	store, err := BackendOpener{Backend: backend, Logger: zerolog.Nop()}.Open(context.Background(), partition)
	require.NoError(t, err)
	return store
}

func response(body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return serializer.RecordedToResponse(http.StatusOK, header, []byte(body), nil)
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, NewMemoryBackend(), "p")
	req := httptest.NewRequest("GET", "/page", nil)
	header := http.Header{"Content-Type": {"text/test"}, "X-Autocache-Lib-Cache-Until": {"123"}}

	require.NoError(t, store.Put(ctx, req, response("Hello world", header)))

	res, err := store.Match(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/test", res.Header.Get("Content-Type"))
	assert.Equal(t, "123", res.Header.Get("X-Autocache-Lib-Cache-Until"))
	assert.Equal(t, "Hello world", readBody(t, res))

	// every match has its own body
	again, err := store.Match(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", readBody(t, again))
}

func TestStoreMiss(t *testing.T) {
	store := openStore(t, NewMemoryBackend(), "p")
	res, err := store.Match(context.Background(), httptest.NewRequest("GET", "/nothing", nil))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := openStore(t, backend, "p")
	req := httptest.NewRequest("GET", "/page", nil)

	require.NoError(t, store.Put(ctx, req, response("first", nil)))
	require.NoError(t, store.Put(ctx, req, response("second", nil)))

	assert.Equal(t, 1, backend.Len())
	res, err := store.Match(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "second", readBody(t, res))
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := openStore(t, backend, "p")
	req := httptest.NewRequest("GET", "/page", nil)

	require.NoError(t, store.Put(ctx, req, response("gone", nil)))
	require.NoError(t, store.Delete(ctx, req))
	require.NoError(t, store.Delete(ctx, req))

	res, err := store.Match(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, backend.Len())
}

func TestStoreVary(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := openStore(t, backend, "p")
	fi := httptest.NewRequest("GET", "/page", nil)
	fi.Header.Set("Accept-Language", "fi")
	sv := httptest.NewRequest("GET", "/page", nil)
	sv.Header.Set("Accept-Language", "sv")
	vary := http.Header{"Vary": {"Accept-Language"}}

	require.NoError(t, store.Put(ctx, fi, response("moi", vary)))
	res, err := store.Match(ctx, sv)
	require.NoError(t, err)
	assert.Nil(t, res)

	require.NoError(t, store.Put(ctx, sv, response("hej", vary)))
	res, err = store.Match(ctx, fi)
	require.NoError(t, err)
	assert.Equal(t, "moi", readBody(t, res))

	// only the matching variant is deleted
	require.NoError(t, store.Delete(ctx, sv))
	assert.Equal(t, 1, backend.Len())
}

func TestStorePartitions(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	a := openStore(t, backend, "a")
	b := openStore(t, backend, "b")
	req := httptest.NewRequest("GET", "/page", nil)

	require.NoError(t, a.Put(ctx, req, response("a", nil)))
	res, err := b.Match(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestStoreCorruptEntryIsDeleted(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := openStore(t, backend, "p").(*ResponseStore)
	req := httptest.NewRequest("GET", "/page", nil)
	prefix := store.keyer.GetKeyPrefix(req)
	require.NoError(t, backend.Put(ctx, prefix, prefix, []byte("not a response")))

	res, err := store.Match(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, backend.Len())
}

type failingBackend struct {
	MemoryBackend
}

var errBackend = errors.New("backend down")

func (*failingBackend) Variants(context.Context, string) ([]Entry, error) {
	return nil, errBackend
}

func TestStoreBackendErrors(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, &failingBackend{}, "p")
	req := httptest.NewRequest("GET", "/page", nil)

	_, err := store.Match(ctx, req)
	assert.ErrorIs(t, err, errBackend)
	assert.ErrorIs(t, store.Delete(ctx, req), errBackend)
	assert.ErrorIs(t, store.Purge(ctx, req), errBackend)
}

func TestOpenWithoutBackend(t *testing.T) {
	_, err := BackendOpener{}.Open(context.Background(), "p")
	assert.Error(t, err)
}

func TestStoreOnlyGet(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := openStore(t, backend, "p")
	post := httptest.NewRequest("POST", "/page", nil)

	assert.ErrorIs(t, store.Put(ctx, post, response("posted", nil)), ErrMethodNotCacheable)
	assert.Equal(t, 0, backend.Len())

	require.NoError(t, store.Put(ctx, httptest.NewRequest("GET", "/page", nil), response("got", nil)))
	res, err := store.Match(ctx, post)
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NoError(t, store.Delete(ctx, post))
	assert.Equal(t, 1, backend.Len())
}

func TestStoreMostSpecificVariantWins(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, NewMemoryBackend(), "p")
	fi := httptest.NewRequest("GET", "/page", nil)
	fi.Header.Set("Accept-Language", "fi")

	require.NoError(t, store.Put(ctx, fi, response("moi", http.Header{"Vary": {"Accept-Language"}})))
	require.NoError(t, store.Put(ctx, fi, response("any", nil)))

	// both variants match, always the same one is served
	for i := 0; i < 20; i++ {
		res, err := store.Match(ctx, fi)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "moi", readBody(t, res))
	}
}

func TestStoreDeleteKeepsOtherVariants(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := openStore(t, backend, "p")
	fi := httptest.NewRequest("GET", "/page", nil)
	fi.Header.Set("Accept-Language", "fi")

	require.NoError(t, store.Put(ctx, fi, response("moi", http.Header{"Vary": {"Accept-Language"}})))
	require.NoError(t, store.Put(ctx, fi, response("any", nil)))

	require.NoError(t, store.Delete(ctx, fi))
	assert.Equal(t, 1, backend.Len())
	res, err := store.Match(ctx, fi)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "any", readBody(t, res))
}

func TestStorePurge(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := openStore(t, backend, "p")
	vary := http.Header{"Vary": {"Accept-Language"}}
	for _, lang := range []string{"fi", "sv"} {
		req := httptest.NewRequest("GET", "/page", nil)
		req.Header.Set("Accept-Language", lang)
		require.NoError(t, store.Put(ctx, req, response(lang, vary)))
	}
	require.NoError(t, store.Put(ctx, httptest.NewRequest("GET", "/other", nil), response("other", nil)))

	require.NoError(t, store.Purge(ctx, httptest.NewRequest("GET", "/page", nil)))
	assert.Equal(t, 1, backend.Len())
}

func TestStoreHosts(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, NewMemoryBackend(), "p")

	require.NoError(t, store.Put(ctx, httptest.NewRequest("GET", "http://a.example/page", nil), response("a", nil)))
	res, err := store.Match(ctx, httptest.NewRequest("GET", "http://b.example/page", nil))
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = store.Match(ctx, httptest.NewRequest("GET", "http://a.example/page", nil))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "a", readBody(t, res))
}
