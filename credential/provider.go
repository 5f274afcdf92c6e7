// Package credential supplies the session token to the channel and the rest client.
package credential

import (
	"chat-link/domain"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Static always returns the same credential.
type Static struct {
	credential domain.Credential
}

func NewStatic(credential domain.Credential) *Static {
	return &Static{credential: credential}
}

func (s *Static) Credential(_ context.Context) (domain.Credential, error) {
	return s.credential, nil
}

// File reads the token from a file and follows its changes.
// A missing or empty file means logged out.
type File struct {
	log      *slog.Logger
	path     string
	onChange func(domain.Credential)

	mu      sync.RWMutex
	current domain.Credential
}

func NewFile(log *slog.Logger, path string, onChange func(domain.Credential)) (*File, error) {
	f := &File{
		log:      log.With("component", "credential", "path", path),
		path:     filepath.Clean(path),
		onChange: onChange,
	}
	current, err := f.read()
	if err != nil {
		return nil, err
	}
	f.current = current
	return f, nil
}

func (f *File) Credential(_ context.Context) (domain.Credential, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current, nil
}

// Run watches the token file until ctx is done. The directory is watched rather
// than the file so that editors replacing the file are followed.
func (f *File) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err = watcher.Add(filepath.Dir(f.path)); err != nil {
		return err
	}
	f.log.Info("Watching credential file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != f.path {
				continue
			}
			if evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) ||
				evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
				f.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Warn("Credential watcher error", "error", err)
		}
	}
}

func (f *File) reload() {
	next, err := f.read()
	if err != nil {
		f.log.Warn("Credential file unreadable", "error", err)
		return
	}

	f.mu.Lock()
	changed := next != f.current
	f.current = next
	f.mu.Unlock()

	if !changed {
		return
	}
	f.log.Info("Credential changed", "logged_in", !next.Empty())
	if f.onChange != nil {
		f.onChange(next)
	}
}

func (f *File) read() (domain.Credential, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain.Credential(strings.TrimSpace(string(data))), nil
}
