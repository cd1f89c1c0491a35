package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"SigHunter/internal/engine"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const userAgent = "sighunter"

// Release is the remote's latest rule publication.
type Release struct {
	PublishedAt time.Time
	ZipballURL  string
}

type releaseJSON struct {
	PublishedAt string `json:"published_at"`
	ZipballURL  string `json:"zipball_url"`
}

// Updater fetches, compiles and publishes rule bundles into the cache directory.
// It is the only writer of that directory.
type Updater struct {
	remoteURL string
	cacheDir  string
	engine    engine.Engine
	client    *http.Client
	retries   int

	// newBackOff builds the retry policy for one network operation.
	newBackOff func() backoff.BackOff
}

func NewUpdater(cfg *Config, eng engine.Engine) *Updater {
	return &Updater{
		remoteURL: cfg.RemoteURL,
		cacheDir:  cfg.CacheDir,
		engine:    eng,
		client:    &http.Client{Timeout: cfg.UpdateTimeout},
		retries:   cfg.UpdateRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
}

// Update publishes a new ruleset when the remote is newer than local. It
// returns the published version, or ErrRemoteAlreadyUpdated when there is
// nothing to do.
func (u *Updater) Update(ctx context.Context, local time.Time, haveLocal bool) (time.Time, error) {
	rel, err := u.CheckRemote(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if haveLocal && !rel.PublishedAt.After(local) {
		logrus.WithFields(logrus.Fields{"local": local, "remote": rel.PublishedAt}).Debug("Remote is not newer")
		return local, ErrRemoteAlreadyUpdated
	}

	logrus.WithField("published_at", rel.PublishedAt).Info("Downloading rule bundle")
	bundle, err := u.download(ctx, rel.ZipballURL)
	if err != nil {
		return time.Time{}, err
	}
	defer os.Remove(bundle)

	if _, err := u.build(ctx, bundle, rel.PublishedAt); err != nil {
		return time.Time{}, err
	}
	return rel.PublishedAt, nil
}

// CheckRemote fetches the remote publication timestamp and bundle location.
func (u *Updater) CheckRemote(ctx context.Context) (*Release, error) {
	var raw releaseJSON
	err := u.retry(ctx, func() error {
		resp, err := u.get(ctx, u.remoteURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw = releaseJSON{}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrRemoteSerialize, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A body without these fields is typically an API rate-limit response.
	if raw.PublishedAt == "" || raw.ZipballURL == "" {
		return nil, fmt.Errorf("%w: missing published_at or zipball_url", ErrRemoteSerialize)
	}
	published, err := time.Parse(time.RFC3339, raw.PublishedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteTime, err)
	}
	return &Release{PublishedAt: published.UTC(), ZipballURL: raw.ZipballURL}, nil
}

// download stores the bundle in a temporary file inside the cache directory.
func (u *Updater) download(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(u.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuilderIO, err)
	}
	tmp, err := os.CreateTemp(u.cacheDir, ".bundle-*.zip")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuilderIO, err)
	}
	name := tmp.Name()

	err = u.retry(ctx, func() error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrBuilderIO, err))
		}
		if err := tmp.Truncate(0); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrBuilderIO, err))
		}
		resp, err := u.get(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if _, err := io.Copy(tmp, resp.Body); err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteOffline, err)
		}
		return nil
	})
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %w", ErrBuilderIO, cerr)
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// get issues one GET. Server errors and transport failures are retryable,
// client errors are not.
func (u *Updater) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %w", ErrRemoteClientBuild, err))
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteOffline, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err := fmt.Errorf("%w: %s returned %s", ErrRemoteOffline, url, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return resp, nil
}

func (u *Updater) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(u.newBackOff(), uint64(u.retries)), ctx)
	attempt := 0
	return backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		attempt++
		logrus.WithError(err).Warnf("Remote request failed on try %d; retrying in %s", attempt, next)
	})
}

// IsOffline reports whether err came from the network rather than the data.
func IsOffline(err error) bool {
	return errors.Is(err, ErrRemoteOffline) || errors.Is(err, context.DeadlineExceeded)
}
