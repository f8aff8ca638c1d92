package tlsroots

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader serves a certificate key pair and reloads it when either file
// is rewritten. A failed reload keeps the previous pair.
type Reloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDebounce sets how long to wait for a burst of writes to settle.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		r.debounce = d
	}
}

// NewReloader loads the key pair once and returns a Reloader serving it.
func NewReloader(certFile, keyFile string, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the key pair from disk.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// ServerConfig returns a TLS configuration backed by the reloader.
func (r *Reloader) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Watch reloads the pair on file changes until ctx is done.
func (r *Reloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer w.Close()

	// Watch directories so editor renames and symlink swaps are seen.
	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}

	certBase, keyBase := filepath.Base(r.certFile), filepath.Base(r.keyFile)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(ev.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := r.Reload(); err != nil {
				r.logger.Error("certificate reload failed", "error", err, "cert_file", r.certFile)
				continue
			}
			r.logger.Info("certificate reloaded", "cert_file", r.certFile)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("certificate watcher error", "error", err)
		}
	}
}
