package fetch

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

const (
	// DefaultTimeout is the default per-attempt HTTP timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the default number of retries after the first attempt
	DefaultRetries = 3
	// DefaultBackoff is the default initial retry interval
	DefaultBackoff = time.Second
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "keg/1.0"

	// maxRetryAfter caps server supplied Retry-After hints.
	maxRetryAfter = 60
)

// Options configures a Fetcher.
type Options struct {
	CacheDir    string
	Retries     int
	Timeout     time.Duration
	Backoff     time.Duration
	KeyringPath string // armored or binary OpenPGP keyring; empty disables signature checks
	UserAgent   string
	Logger      *slog.Logger
	Client      *http.Client // optional; overrides Timeout
}

// Fetcher downloads and verifies release archives.
type Fetcher struct {
	client      *http.Client
	cacheDir    string
	userAgent   string
	retries     int
	backoff     time.Duration
	keyringPath string
	logger      *slog.Logger
}

// Archive is a verified archive in the download cache.
type Archive struct {
	Path   string
	URL    string
	SHA256 string
	Size   int64
	Cached bool // served from cache after re-hashing
}

// New creates a fetcher. Zero durations and an empty user agent take the
// package defaults. Retries is used as given; zero disables retrying.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		client:      opts.Client,
		cacheDir:    opts.CacheDir,
		userAgent:   opts.UserAgent,
		retries:     opts.Retries,
		backoff:     opts.Backoff,
		keyringPath: opts.KeyringPath,
		logger:      opts.Logger,
	}
	if f.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		f.client = newHTTPClient(timeout)
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.retries < 0 {
		f.retries = 0
	}
	if f.backoff <= 0 {
		f.backoff = DefaultBackoff
	}
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}
	return f
}

// newHTTPClient builds a client that also serves file:// URLs, so mirrors
// and local release directories work with the same code path.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Allow up to 10 redirects
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// FetchAndVerify downloads the archive of variant v and verifies it against
// the variant's digest. DRAFT manifests fail with ErrNotReleasable before any
// network activity.
func (f *Fetcher) FetchAndVerify(ctx context.Context, m *manifest.Manifest, v *manifest.Variant) (*Archive, error) {
	if m == nil || v == nil {
		return nil, fmt.Errorf("manifest and variant are required")
	}
	if m.IsDraft() || v.IsDraft() {
		return nil, &NotReleasableError{Package: m.Name, Missing: m.DraftVariants()}
	}

	expected, err := hex.DecodeString(v.SHA256)
	if err != nil || len(expected) != sha256.Size {
		return nil, fmt.Errorf("%s: malformed sha256 %q", m.Name, v.SHA256)
	}

	rawURL := v.URL(m.Version)
	cachePath := filepath.Join(f.cacheDir, m.Name, m.Version, archiveName(rawURL))

	if archive, ok := f.cached(cachePath, rawURL, expected); ok {
		f.logger.Debug("using cached archive", "package", m.Name, "path", cachePath)
		if err := f.checkSignature(ctx, m, v, archive.Path); err != nil {
			return nil, err
		}
		return archive, nil
	}

	partial := cachePath + ".partial"
	f.logger.Debug("downloading archive", "package", m.Name, "url", rawURL)
	size, actual, err := f.download(ctx, rawURL, partial)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(actual, expected) != 1 {
		os.Remove(partial)
		return nil, &IntegrityError{
			Package:  m.Name,
			URL:      rawURL,
			Expected: hex.EncodeToString(expected),
			Actual:   hex.EncodeToString(actual),
		}
	}

	if err := os.Rename(partial, cachePath); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("move archive into cache: %w", err)
	}

	if err := f.checkSignature(ctx, m, v, cachePath); err != nil {
		os.Remove(cachePath)
		return nil, err
	}

	return &Archive{
		Path:   cachePath,
		URL:    rawURL,
		SHA256: hex.EncodeToString(actual),
		Size:   size,
	}, nil
}

// Measure downloads rawURL without an expected digest and reports its
// SHA-256. It is used to populate digests when promoting a DRAFT manifest.
// The download is not kept.
func (f *Fetcher) Measure(ctx context.Context, rawURL string) (*Archive, error) {
	dir, err := os.MkdirTemp("", "keg-measure-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	size, sum, err := f.download(ctx, rawURL, filepath.Join(dir, archiveName(rawURL)))
	if err != nil {
		return nil, err
	}
	return &Archive{URL: rawURL, SHA256: hex.EncodeToString(sum), Size: size}, nil
}

// cached re-hashes an existing cache entry. Corrupt entries are deleted.
func (f *Fetcher) cached(cachePath, rawURL string, expected []byte) (*Archive, bool) {
	info, err := os.Stat(cachePath)
	if err != nil || info.IsDir() {
		return nil, false
	}

	sum, err := hashFile(cachePath)
	if err != nil || subtle.ConstantTimeCompare(sum, expected) != 1 {
		f.logger.Warn("discarding corrupt cache entry", "path", cachePath)
		os.Remove(cachePath)
		return nil, false
	}

	return &Archive{
		Path:   cachePath,
		URL:    rawURL,
		SHA256: hex.EncodeToString(sum),
		Size:   info.Size(),
		Cached: true,
	}, true
}

type downloadResult struct {
	size int64
	sum  []byte
}

// download fetches rawURL into dest with retries, returning the size and
// SHA-256 of the bytes written.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) (int64, []byte, error) {
	attempts := 0
	operation := func() (downloadResult, error) {
		attempts++
		size, sum, err := f.downloadOnce(ctx, rawURL, dest)
		if err != nil {
			return downloadResult{}, err
		}
		return downloadResult{size: size, sum: sum}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.backoff

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(f.retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.logger.Debug("retrying download", "url", rawURL, "attempt", attempts, "next", next, "error", err)
		}),
	)
	if err != nil {
		return 0, nil, &NetworkError{URL: rawURL, Attempts: attempts, Err: err}
	}
	return res.size, res.sum, nil
}

// downloadOnce performs a single attempt. Errors that retrying cannot fix are
// marked permanent.
func (f *Fetcher) downloadOnce(ctx context.Context, rawURL, dest string) (int64, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, backoff.Permanent(ctx.Err())
		}
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		if !statusErr.Transient() {
			return 0, nil, backoff.Permanent(statusErr)
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			statusErr.retryAfter = backoff.RetryAfter(min(secs, maxRetryAfter))
		}
		return 0, nil, statusErr
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("create cache dir: %w", err))
	}

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("create partial file: %w", err))
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hasher), resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		if ctx.Err() != nil {
			return 0, nil, backoff.Permanent(ctx.Err())
		}
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}

	return size, hasher.Sum(nil), nil
}

func isTransientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code <= 599:
		return true
	default:
		return false
	}
}

// archiveName derives the cache file name from a URL.
func archiveName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "archive"
}

func hashFile(p string) ([]byte, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

// IsNetwork reports whether err is a download failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
