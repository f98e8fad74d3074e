package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aravindthiru29/flipbook/pkg/logger"
)

// ErrUnavailable means the document bytes could not be obtained from the
// book's source locator.
var ErrUnavailable = errors.New("source unavailable")

// Resolver turns a book's source locator into a path to local bytes.
// Local paths pass through untouched. Remote URLs are downloaded once per
// book id into the work directory and reused for the process lifetime.
type Resolver struct {
	workDir string
	client  *http.Client
	group   singleflight.Group
	log     *logger.Logger
}

func NewResolver(workDir string, log *logger.Logger) (*Resolver, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &Resolver{
		workDir: workDir,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     log,
	}, nil
}

func (r *Resolver) Resolve(ctx context.Context, bookID, locator string) (string, error) {
	if !isRemote(locator) {
		if _, err := os.Stat(locator); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, locator, err)
		}
		return locator, nil
	}

	local := r.localPath(bookID)
	if fileNonEmpty(local) {
		return local, nil
	}

	// Concurrent first fetches for one book collapse into a single download.
	_, err, _ := r.group.Do(bookID, func() (interface{}, error) {
		if fileNonEmpty(local) {
			return local, nil
		}
		return local, r.download(ctx, locator, local)
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

// Forget drops the locally cached copy for a book. Used on book deletion;
// absence is not an error.
func (r *Resolver) Forget(bookID string) {
	if err := os.Remove(r.localPath(bookID)); err != nil && !os.IsNotExist(err) {
		r.log.Warn("could not remove cached source for book %s: %v", bookID, err)
	}
}

func (r *Resolver) localPath(bookID string) string {
	return filepath.Join(r.workDir, "book_"+bookID+".pdf")
}

// download fetches the document into a temporary file and publishes it with
// a rename, so a failed transfer never leaves a usable stale copy behind.
func (r *Resolver) download(ctx context.Context, url, dest string) error {
	r.log.Info("Downloading source: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetching %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetching %s: status %d", ErrUnavailable, url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(r.workDir, "fetch-*.pdf")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: fetching %s: %v", ErrUnavailable, url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.log.Debug("Cached source at %s", dest)
	return nil
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
