// Package loader reads files to import from local paths or http(s) URLs.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/guadaltel/vectors/internal/convert"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

// ErrSuperseded reports a read whose result was discarded because another
// file was requested while it was in flight.
var ErrSuperseded = errors.New("file superseded by a newer request")

// File is a file read into memory. Name keeps the extension, which selects
// the import format.
type File struct {
	Name string
	Data []byte
}

// Loader reads one file at a time. A new ChangeFile call supersedes the
// pending one: the older read is left to finish but its result is dropped.
type Loader struct {
	client *http.Client
	retry  func() backoff.BackOff

	mu      sync.Mutex
	gen     uint64
	pending string
}

// Option configures a Loader.
type Option func(*Loader)

// WithBackOff sets the retry policy for downloads failing with a network
// error or a server error status.
func WithBackOff(policy func() backoff.BackOff) Option {
	return func(l *Loader) { l.retry = policy }
}

// New returns a loader fetching URLs with client. A nil client gets a
// default one with a 15 second timeout.
func New(client *http.Client, opts ...Option) *Loader {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{MaxIdleConnsPerHost: 4},
			Timeout:   15 * time.Second,
		}
	}
	l := &Loader{
		client: client,
		retry: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Pending returns the source currently being read, if any.
func (l *Loader) Pending() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// ChangeFile makes source the pending file and reads it. Files over
// convert.MaxFileSize are refused before their content is read.
func (l *Loader) ChangeFile(ctx context.Context, source string) (*File, error) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.pending = source
	l.mu.Unlock()

	log.Debug().Str("source", source).Msg("Reading file")
	f, err := l.read(ctx, source)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		log.Debug().Str("source", source).Msg("Discarding superseded file")
		return nil, fmt.Errorf("%w: %s", ErrSuperseded, source)
	}
	l.pending = ""

	if err != nil {
		return nil, err
	}
	log.Debug().Str("file", f.Name).Int("bytes", len(f.Data)).Msg("File read")
	return f, nil
}

func (l *Loader) read(ctx context.Context, source string) (*File, error) {
	if isURL(source) {
		return l.download(ctx, source)
	}
	return readLocal(source)
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func readLocal(p string) (*File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", p)
	}
	if err := convert.CheckSize(info.Size()); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return &File{Name: filepath.Base(p), Data: data}, nil
}

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.url, e.code)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, convert.ErrFileTooLarge)
}

// download fetches a URL, retrying transient failures.
func (l *Loader) download(ctx context.Context, rawURL string) (*File, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	var (
		f     *File
		final error
	)
	err = backoff.RetryNotify(
		func() error {
			var err error
			f, err = l.fetch(ctx, u)
			if err != nil && (!retryable(err) || ctx.Err() != nil) {
				final = err
				return nil
			}
			return err
		},
		l.retry(),
		func(err error, d time.Duration) {
			log.Warn().Err(err).Dur("retry_in", d).Msg("Download failed, retrying")
		},
	)
	if err != nil {
		return nil, err
	}
	if final != nil {
		return nil, final
	}
	return f, nil
}

// fetch downloads a file once. The declared length is checked before
// reading, and the body is read through a limit in case it was not declared.
func (l *Loader) fetch(ctx context.Context, u *url.URL) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	// Explicitly ignore close error as it's a read-only operation
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: u.String(), code: resp.StatusCode}
	}
	if err := convert.CheckSize(resp.ContentLength); err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, convert.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if err := convert.CheckSize(int64(len(data))); err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = u.Hostname()
	}
	return &File{Name: name, Data: data}, nil
}
