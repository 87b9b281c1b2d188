package pkgforge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// SourceEntry is one (package, named-source) pair resolved to a concrete
// on-disk path under a SourceCache root. SourceEntry values are ephemeral;
// the files they name are owned by the cache root, not by the entry.
type SourceEntry struct {
	Package PackageKey
	Name    string
	Hash    SourceHash
	source  Source
}

// Source returns the underlying Source this entry was derived from.
func (e SourceEntry) Source() Source { return e.source }

// SourceCache is a deterministic on-disk layout rooted at a single
// directory. For every (package-name, package-version, source-name,
// hash-value) tuple it defines exactly one canonical file path:
//
//	<root>/<pkg-name>-<pkg-version>/<source-name>-<hash-value>.source
//
// This layout is part of the external contract; other processes index
// into the cache by path, so it must never change shape.
type SourceCache struct {
	root string
}

// NewSourceCache returns a SourceCache rooted at root. The root directory
// itself is created lazily by Create; NewSourceCache does not touch disk.
func NewSourceCache(root string) *SourceCache {
	return &SourceCache{root: filepath.Clean(root)}
}

// Root returns the cache's root directory.
func (c *SourceCache) Root() string { return c.root }

// SourcesFor returns one SourceEntry per named source on pkg. Order is
// unspecified since Package.Sources is keyed by name.
func (c *SourceCache) SourcesFor(pkg Package) []SourceEntry {
	out := make([]SourceEntry, 0, len(pkg.Sources))
	for name, src := range pkg.Sources {
		out = append(out, SourceEntry{
			Package: pkg.Key(),
			Name:    name,
			Hash:    src.Hash,
			source:  src,
		})
	}
	return out
}

func (c *SourceCache) packageDir(key PackageKey) string {
	return filepath.Join(c.root, fmt.Sprintf("%s-%s", key.Name, key.Version))
}

// Path is a pure function of the cache root and the entry's four
// identifying strings: it does not touch the filesystem.
func (c *SourceCache) Path(entry SourceEntry) string {
	filename := fmt.Sprintf("%s-%s.source", entry.Name, entry.Hash.Value)
	return filepath.Join(c.packageDir(entry.Package), filename)
}

// Exists probes the filesystem for entry's file.
func (c *SourceCache) Exists(entry SourceEntry) bool {
	_, err := os.Stat(c.Path(entry))
	return err == nil
}

// VerifyHash opens entry's file, streams it through the hash algorithm
// named by entry.Hash.Type, and compares the resulting lowercase hex
// digest against entry.Hash.Value. A missing file is ErrMissingSource; a
// digest mismatch is ErrHashMismatch; any other I/O failure is
// ErrSourceIoError.
func (c *SourceCache) VerifyHash(entry SourceEntry) error {
	f, err := os.Open(c.Path(entry))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrMissingSource, "%s/%s", entry.Package, entry.Name)
		}
		return errors.Wrapf(ErrSourceIoError, "opening %s/%s: %s", entry.Package, entry.Name, err)
	}
	defer f.Close()

	if err := entry.Hash.VerifyReader(f); err != nil {
		if errors.Is(err, ErrHashMismatch) {
			return errors.Wrapf(err, "%s/%s", entry.Package, entry.Name)
		}
		return errors.Wrapf(ErrSourceIoError, "%s/%s: %s", entry.Package, entry.Name, err)
	}
	return nil
}

// Create ensures entry's per-package directory exists, then opens entry's
// file for exclusive creation: it fails if the file already exists. The
// caller streams bytes into the returned handle and is responsible for
// calling VerifyHash afterward; on a failed verification the caller MUST
// remove the partially written file (RemoveFile does this).
func (c *SourceCache) Create(entry SourceEntry) (*os.File, error) {
	dir := c.packageDir(entry.Package)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(ErrSourceIoError, "creating %s: %s", dir, err)
	}

	f, err := os.OpenFile(c.Path(entry), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceIoError, "creating %s/%s: %s", entry.Package, entry.Name, err)
	}
	return f, nil
}

// RemoveFile unlinks entry's file. It is fail-soft: removing an
// already-absent file is not an error.
func (c *SourceCache) RemoveFile(entry SourceEntry) error {
	if err := os.Remove(c.Path(entry)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(ErrSourceIoError, "removing %s/%s: %s", entry.Package, entry.Name, err)
	}
	return nil
}

// Download fetches entry's source URL with the given HTTP client and
// per-request timeout, writing the response body to entry's file under
// exclusive-create semantics and verifying its hash once the write
// completes. Entries marked DownloadManually are skipped (nil, no error):
// automated download is suppressed for those, though they still
// participate in verification once present. On any failure, including
// context cancellation mid-write, the partially written file is removed
// before returning.
func (c *SourceCache) Download(ctx context.Context, client *http.Client, entry SourceEntry, timeout time.Duration) error {
	if entry.source.DownloadManually {
		return nil
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, entry.source.URL, nil)
	if err != nil {
		return errors.Wrapf(ErrSourceIoError, "building request for %s/%s: %s", entry.Package, entry.Name, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return errors.Wrapf(ErrTimeout, "%s/%s", entry.Package, entry.Name)
		}
		return errors.Wrapf(ErrSourceIoError, "fetching %s/%s: %s", entry.Package, entry.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrSourceIoError, "fetching %s/%s: unexpected status %s", entry.Package, entry.Name, resp.Status)
	}

	f, err := c.Create(entry)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil || reqCtx.Err() != nil {
		_ = c.RemoveFile(entry)
		if reqCtx.Err() == context.Canceled {
			return errors.Wrapf(reqCtx.Err(), "downloading %s/%s", entry.Package, entry.Name)
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return errors.Wrapf(ErrTimeout, "%s/%s", entry.Package, entry.Name)
		}
		if copyErr != nil {
			return errors.Wrapf(ErrSourceIoError, "writing %s/%s: %s", entry.Package, entry.Name, copyErr)
		}
		return errors.Wrapf(ErrSourceIoError, "closing %s/%s: %s", entry.Package, entry.Name, closeErr)
	}

	if err := c.VerifyHash(entry); err != nil {
		_ = c.RemoveFile(entry)
		return err
	}
	return nil
}

// EntryResult pairs a SourceEntry with the outcome of an operation applied
// to it (verify or download). Err is nil on success.
type EntryResult struct {
	Entry SourceEntry
	Err   error
}

// VerifySources verifies every entry concurrently, bounded by fanOut
// simultaneous operations. It never short-circuits: every entry is
// processed and its outcome returned in the result slice, in completion
// order; each failed entry's error is also written to sink.
// Callers that need stable ordering must sort the result themselves. If
// any entry failed, the returned error wraps ErrAtLeastOneFailed; the
// per-entry causes are available via the returned results.
func VerifySources(ctx context.Context, cache *SourceCache, entries []SourceEntry, fanOut int, sink io.Writer) ([]EntryResult, error) {
	return fanOutEntries(ctx, entries, fanOut, func(ctx context.Context, entry SourceEntry) error {
		return cache.VerifyHash(entry)
	}, sink)
}

// DownloadSources downloads every entry concurrently, bounded by fanOut
// simultaneous operations, using client and a per-request timeout.
// Entries already present and passing verification are left untouched;
// otherwise the entry is (re)downloaded. Failure semantics mirror
// VerifySources: lenient-collecting, never short-circuiting.
func DownloadSources(ctx context.Context, cache *SourceCache, client *http.Client, entries []SourceEntry, fanOut int, timeout time.Duration, sink io.Writer) ([]EntryResult, error) {
	return fanOutEntries(ctx, entries, fanOut, func(ctx context.Context, entry SourceEntry) error {
		if cache.Exists(entry) {
			if err := cache.VerifyHash(entry); err == nil {
				return nil
			}
			if !entry.source.DownloadManually {
				if err := cache.RemoveFile(entry); err != nil {
					return err
				}
			}
		}
		return cache.Download(ctx, client, entry, timeout)
	}, sink)
}

// fanOutEntries runs op over entries with at most fanOut concurrent
// goroutines, using a weighted semaphore for backpressure. Every entry is
// processed regardless of earlier failures (lenient-collecting); each
// failure is written to sink as it is collected.
func fanOutEntries(ctx context.Context, entries []SourceEntry, fanOut int, op func(context.Context, SourceEntry) error, sink io.Writer) ([]EntryResult, error) {
	if fanOut <= 0 {
		fanOut = 1
	}
	sem := semaphore.NewWeighted(int64(fanOut))

	results := make(chan EntryResult, len(entries))
	for _, entry := range entries {
		entry := entry
		if err := sem.Acquire(ctx, 1); err != nil {
			results <- EntryResult{Entry: entry, Err: errors.Wrap(err, "acquiring fan-out permit")}
			continue
		}
		go func() {
			defer sem.Release(1)
			err := op(ctx, entry)
			results <- EntryResult{Entry: entry, Err: err}
		}()
	}

	out := make([]EntryResult, 0, len(entries))
	failed := false
	for range entries {
		r := <-results
		if r.Err != nil {
			failed = true
			if sink != nil {
				fmt.Fprintf(sink, "%s/%s: %s\n", r.Entry.Package, r.Entry.Name, r.Err)
			}
		}
		out = append(out, r)
	}

	if failed {
		return out, errors.WithStack(ErrAtLeastOneFailed)
	}
	return out, nil
}
