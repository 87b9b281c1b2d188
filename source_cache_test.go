package pkgforge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestSourceCachePathCanonicity(t *testing.T) {
	cache := NewSourceCache("/cache-root")
	entry := SourceEntry{
		Package: PackageKey{Name: "pkg", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: "deadbeef"},
	}

	want := filepath.Join("/cache-root", "pkg-1", "src-deadbeef.source")
	assert.Equal(t, cache.Path(entry), want)
	assert.Equal(t, cache.Path(entry), cache.Path(entry))
}

func TestSourceCacheVerifyHashRoundTrip(t *testing.T) {
	root := t.TempDir()
	cache := NewSourceCache(root)

	body := []byte("hello\n")
	entry := SourceEntry{
		Package: PackageKey{Name: "pkg", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: sha256Hex(body)},
	}

	f, err := cache.Create(entry)
	assert.NilError(t, err)
	_, err = f.Write(body)
	assert.NilError(t, err)
	assert.NilError(t, f.Close())

	assert.Check(t, cache.Exists(entry))
	assert.NilError(t, cache.VerifyHash(entry))

	// flip a byte
	assert.NilError(t, os.WriteFile(cache.Path(entry), []byte("Hello\n"), 0o644))
	err = cache.VerifyHash(entry)
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestSourceCacheVerifyHashMissing(t *testing.T) {
	cache := NewSourceCache(t.TempDir())
	entry := SourceEntry{
		Package: PackageKey{Name: "pkg", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: "deadbeef"},
	}
	err := cache.VerifyHash(entry)
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestSourceCacheCreateExclusive(t *testing.T) {
	cache := NewSourceCache(t.TempDir())
	entry := SourceEntry{
		Package: PackageKey{Name: "pkg", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: "deadbeef"},
	}

	f, err := cache.Create(entry)
	assert.NilError(t, err)
	assert.NilError(t, f.Close())

	_, err = cache.Create(entry)
	assert.Check(t, err != nil)
}

func TestSourceCacheRemoveFileFailSoft(t *testing.T) {
	cache := NewSourceCache(t.TempDir())
	entry := SourceEntry{
		Package: PackageKey{Name: "pkg", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: "deadbeef"},
	}
	assert.NilError(t, cache.RemoveFile(entry))
}

func TestSourcesForOnePerNamedSource(t *testing.T) {
	cache := NewSourceCache(t.TempDir())
	p := pkg("pkg", "1")
	p.Sources = map[string]Source{
		"a": {URL: "https://example.test/a", Hash: SourceHash{Type: HashSha256, Value: "aa"}},
		"b": {URL: "https://example.test/b", Hash: SourceHash{Type: HashSha256, Value: "bb"}},
	}
	entries := cache.SourcesFor(p)
	assert.Equal(t, len(entries), 2)
}

func TestVerifySourcesLenientCollecting(t *testing.T) {
	root := t.TempDir()
	cache := NewSourceCache(root)

	good := SourceEntry{Package: PackageKey{Name: "p", Version: "1"}, Name: "good", Hash: SourceHash{Type: HashSha256, Value: sha256Hex([]byte("ok"))}}
	bad := SourceEntry{Package: PackageKey{Name: "p", Version: "1"}, Name: "bad", Hash: SourceHash{Type: HashSha256, Value: "deadbeef"}}

	f, err := cache.Create(good)
	assert.NilError(t, err)
	_, err = f.Write([]byte("ok"))
	assert.NilError(t, err)
	assert.NilError(t, f.Close())

	results, err := VerifySources(context.Background(), cache, []SourceEntry{good, bad}, 4, io.Discard)
	assert.ErrorIs(t, err, ErrAtLeastOneFailed)
	assert.Equal(t, len(results), 2)

	var sawGood, sawBad bool
	for _, r := range results {
		if r.Entry.Name == "good" {
			sawGood = r.Err == nil
		}
		if r.Entry.Name == "bad" {
			sawBad = r.Err != nil
		}
	}
	assert.Check(t, sawGood)
	assert.Check(t, sawBad)
}

func TestDownloadSourcesWritesAndVerifies(t *testing.T) {
	body := []byte("downloaded content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	cache := NewSourceCache(t.TempDir())
	entry := SourceEntry{
		Package: PackageKey{Name: "p", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: sha256Hex(body)},
		source:  Source{URL: srv.URL, Hash: SourceHash{Type: HashSha256, Value: sha256Hex(body)}},
	}

	results, err := DownloadSources(context.Background(), cache, srv.Client(), []SourceEntry{entry}, 2, 5*time.Second, io.Discard)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 1)
	assert.NilError(t, results[0].Err)
	assert.Check(t, cache.Exists(entry))
}

func TestDownloadSourcesSkipsDownloadManually(t *testing.T) {
	cache := NewSourceCache(t.TempDir())
	entry := SourceEntry{
		Package: PackageKey{Name: "p", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: "deadbeef"},
		source:  Source{URL: "https://example.invalid/should-not-be-fetched", DownloadManually: true},
	}

	results, err := DownloadSources(context.Background(), cache, http.DefaultClient, []SourceEntry{entry}, 1, time.Second, io.Discard)
	assert.NilError(t, err)
	assert.NilError(t, results[0].Err)
	assert.Check(t, !cache.Exists(entry))
}

func TestDownloadHashMismatchRemovesPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("wrong content"))
	}))
	defer srv.Close()

	cache := NewSourceCache(t.TempDir())
	entry := SourceEntry{
		Package: PackageKey{Name: "p", Version: "1"},
		Name:    "src",
		Hash:    SourceHash{Type: HashSha256, Value: sha256Hex([]byte("expected content"))},
		source:  Source{URL: srv.URL},
	}

	err := cache.Download(context.Background(), srv.Client(), entry, 5*time.Second)
	assert.ErrorIs(t, err, ErrHashMismatch)
	assert.Check(t, !cache.Exists(entry))
}
