// Package truststore maintains the set of certificates a user trusts as
// roots when validating signer chains. Anchors come from a bundled
// read-only collection, a per-user directory that persists additions, and
// optionally the operating system store.
package truststore

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/digitorus/pdftrust/certs"
	"github.com/digitorus/pdftrust/log"
)

// Source identifies where an anchor was loaded from.
type Source int

const (
	SourceBundled Source = iota
	SourceUser
	SourceOS
)

func (s Source) String() string {
	switch s {
	case SourceBundled:
		return "bundled"
	case SourceUser:
		return "user"
	case SourceOS:
		return "os"
	}
	return "unknown"
}

// Anchor is a trusted certificate and the alias it is known by.
type Anchor struct {
	Alias       string
	Source      Source
	Certificate *x509.Certificate

	file string
}

// ErrInvalidAlias is returned when an alias would escape the user
// directory.
var ErrInvalidAlias = errors.New("alias must be a plain file name")

var subAlias = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// Options configures where a Store looks for anchors.
type Options struct {
	// Bundled holds the read-only anchors shipped with the application.
	Bundled fs.FS
	// UserDir persists anchors added with AddAnchor.
	UserDir string
	// UseOSStore merges the operating system anchors.
	UseOSStore bool
}

// Store is safe for concurrent use. Readers receive immutable snapshots;
// writers rebuild and swap the snapshot under a mutex.
type Store struct {
	opts Options

	mu          sync.Mutex
	initialized bool
	bundled     []Anchor
	user        []Anchor
	system      []Anchor

	snapshot atomic.Pointer[certs.Set]

	loadOS func() ([]*x509.Certificate, error)
}

// New returns an uninitialized Store.
func New(opts Options) *Store {
	return &Store{opts: opts, loadOS: loadOSAnchors}
}

// Initialize loads every source once. Files that fail to parse are logged
// and skipped. Calling it again has no effect until Reload.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Store) initLocked(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	logger := log.GetLogger(ctx)
	var errs []error

	if s.opts.Bundled != nil {
		anchors, err := loadFS(ctx, s.opts.Bundled, certs.Extensions, SourceBundled)
		if err != nil {
			errs = append(errs, fmt.Errorf("bundled anchors: %w", err))
		}
		s.bundled = anchors
	}

	if s.opts.UserDir != "" {
		anchors, err := loadFS(ctx, os.DirFS(s.opts.UserDir), certs.UserExtensions, SourceUser)
		if err != nil {
			errs = append(errs, fmt.Errorf("user anchors in %s: %w", s.opts.UserDir, err))
		}
		s.user = anchors
	}

	if s.opts.UseOSStore {
		list, err := s.loadOS()
		if err != nil {
			logger.Warnf("operating system trust store unavailable: %v", err)
		}
		for i, c := range list {
			s.system = append(s.system, Anchor{Alias: fmt.Sprintf("os[%d]", i), Source: SourceOS, Certificate: c})
		}
	}

	s.initialized = true
	s.publishLocked()
	logger.Infof("trust store loaded: %d bundled, %d user, %d os anchors", len(s.bundled), len(s.user), len(s.system))
	return errors.Join(errs...)
}

// Reload discards every loaded anchor and reads all sources again.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.bundled, s.user, s.system = nil, nil, nil
	return s.initLocked(ctx)
}

// AllAnchors returns the current snapshot, initializing the store first
// when needed.
func (s *Store) AllAnchors(ctx context.Context) *certs.Set {
	if set := s.snapshot.Load(); set != nil {
		return set
	}
	if err := s.Initialize(ctx); err != nil {
		log.GetLogger(ctx).Warnf("trust store initialized with errors: %v", err)
	}
	return s.snapshot.Load()
}

// Anchors lists every anchor with its alias and source.
func (s *Store) Anchors(ctx context.Context) []Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.initLocked(ctx)
	out := make([]Anchor, 0, len(s.bundled)+len(s.user)+len(s.system))
	out = append(out, s.bundled...)
	out = append(out, s.user...)
	return append(out, s.system...)
}

// UserAnchors lists the anchors persisted in the user directory.
func (s *Store) UserAnchors(ctx context.Context) []Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.initLocked(ctx)
	return append([]Anchor{}, s.user...)
}

// BundledAnchors lists the anchors shipped with the application.
func (s *Store) BundledAnchors(ctx context.Context) []Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.initLocked(ctx)
	return append([]Anchor{}, s.bundled...)
}

// AddAnchor copies the certificate file at srcPath into the user directory
// under alias and registers the certificates it holds. When alias has no
// recognized extension, the source extension is appended, or ".pem" when
// the source has none. It returns the aliases registered.
func (s *Store) AddAnchor(ctx context.Context, srcPath, alias string) ([]string, error) {
	if s.opts.UserDir == "" {
		return nil, errors.New("no user trust directory configured")
	}
	if alias == "" || alias == "." || alias == ".." || filepath.Base(alias) != alias || strings.ContainsAny(alias, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, err
	}
	parsed, err := certs.Parse(data)
	if err != nil {
		var pe *certs.ParseError
		if errors.As(err, &pe) {
			pe.Source = srcPath
		}
		return nil, err
	}

	fileName := alias
	if !certs.HasExtension(alias, certs.UserExtensions) {
		ext := strings.ToLower(filepath.Ext(srcPath))
		if !certs.HasExtension(srcPath, certs.UserExtensions) {
			ext = ".pem"
		}
		fileName = alias + ext
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.initLocked(ctx)

	if err := os.MkdirAll(s.opts.UserDir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.opts.UserDir, fileName), data, 0o600); err != nil {
		return nil, err
	}

	added := anchorsFor(fileName, parsed, SourceUser)
	kept := s.user[:0:0]
	for _, a := range s.user {
		if a.file != fileName {
			kept = append(kept, a)
		}
	}
	s.user = append(kept, added...)
	s.publishLocked()

	aliases := make([]string, len(added))
	for i, a := range added {
		aliases[i] = a.Alias
	}
	log.GetLogger(ctx).Infof("added %d trust anchor(s) as %s", len(added), fileName)
	return aliases, nil
}

// RemoveAnchor deletes the user file behind alias. Removing one alias of a
// multi-certificate file removes the whole file. It reports whether
// anything was removed; bundled and operating system anchors cannot be.
func (s *Store) RemoveAnchor(ctx context.Context, alias string) (bool, error) {
	fileName := alias
	if m := subAlias.FindStringSubmatch(alias); m != nil {
		fileName = m[1]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.initLocked(ctx)

	kept := s.user[:0:0]
	for _, a := range s.user {
		if a.file != fileName {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(s.user) {
		return false, nil
	}

	if err := os.Remove(filepath.Join(s.opts.UserDir, fileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	s.user = kept
	s.publishLocked()
	log.GetLogger(ctx).Infof("removed trust anchor file %s", fileName)
	return true, nil
}

func (s *Store) publishLocked() {
	var list []*x509.Certificate
	for _, group := range [][]Anchor{s.bundled, s.user, s.system} {
		for _, a := range group {
			list = append(list, a.Certificate)
		}
	}
	s.snapshot.Store(certs.NewSet(list))
}

func anchorsFor(file string, list []*x509.Certificate, source Source) []Anchor {
	if len(list) == 1 {
		return []Anchor{{Alias: file, Source: source, Certificate: list[0], file: file}}
	}
	out := make([]Anchor, len(list))
	for i, c := range list {
		out[i] = Anchor{Alias: fmt.Sprintf("%s[%d]", file, i), Source: source, Certificate: c, file: file}
	}
	return out
}

// loadFS reads every regular file with a recognized extension at the root
// of fsys. A missing directory yields no anchors and no error.
func loadFS(ctx context.Context, fsys fs.FS, exts []string, source Source) ([]Anchor, error) {
	logger := log.GetLogger(ctx)
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var anchors []Anchor
	for _, e := range entries {
		if !e.Type().IsRegular() || !certs.HasExtension(e.Name(), exts) {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			logger.Warnf("skipping trust anchor %s: %v", e.Name(), err)
			continue
		}
		parsed, err := certs.Parse(data)
		if err != nil {
			logger.Warnf("skipping trust anchor %s: %v", e.Name(), err)
			continue
		}
		anchors = append(anchors, anchorsFor(e.Name(), parsed, source)...)
	}
	return anchors, nil
}
