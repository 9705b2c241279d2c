// Package schemastore loads schema documents from a directory, falling
// back to a bundled set, validates them and caches them by name.
package schemastore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/artpar/schemaql/adapters/metrics"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/ports"
)

//go:embed bundled
var bundledFS embed.FS

//go:embed document.schema.json
var documentSchema string

// Bundled returns the schema documents shipped with the binary.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundledFS, "bundled")
	if err != nil {
		panic(err)
	}
	return sub
}

// Config configures a Store.
type Config struct {
	// Dir is searched first for <name>.json, <name>.yaml and <name>.yml.
	Dir string

	// Bundled is searched when Dir has no document. Nil disables it.
	Bundled fs.FS

	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

// Store is a name-keyed schema cache backed by documents.
type Store struct {
	dir       string
	bundled   fs.FS
	validator *gojsonschema.Schema
	logger    zerolog.Logger
	metrics   *metrics.Collector

	mu    sync.RWMutex
	cache map[string]*schema.Schema

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a store.
func New(cfg Config) (*Store, error) {
	validator, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	return &Store{
		dir:       cfg.Dir,
		bundled:   cfg.Bundled,
		validator: validator,
		logger:    cfg.Logger.With().Str("service", "schemas").Logger(),
		metrics:   cfg.Metrics,
		cache:     make(map[string]*schema.Schema),
		stopCh:    make(chan struct{}),
	}, nil
}

// Load reads the named schema fresh from its document, validates it and
// replaces the cached instance.
func (s *Store) Load(ctx context.Context, name string) (*schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, format, source, err := s.read(name)
	if err != nil {
		return nil, err
	}

	if err := s.validateDocument(data, format); err != nil {
		return nil, query.Wrap(query.CodeInvalidSchema, err, "schema %q", name)
	}

	sc, err := schema.Parse(data, format)
	if err != nil {
		return nil, query.Wrap(query.CodeInvalidSchema, err, "schema %q", name)
	}

	s.mu.Lock()
	s.cache[name] = sc
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SchemaLoads.WithLabelValues(source).Inc()
	}
	s.logger.Info().
		Str("schema", name).
		Str("source", source).
		Str("kind", string(sc.Source.Kind())).
		Msg("schema loaded")

	return sc, nil
}

// read finds the document for name in the directory, then the bundle.
func (s *Store) read(name string) (data []byte, format schema.Format, source string, err error) {
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return nil, "", "", query.Errorf(query.CodeSchemaNotFound, "schema %q not found", name)
	}

	if s.dir != "" {
		for _, ext := range schema.Extensions {
			p := filepath.Join(s.dir, name+ext)
			data, err := os.ReadFile(p)
			if err == nil {
				format, _ := schema.FormatFromPath(p)
				return data, format, "dir", nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, "", "", query.Wrap(query.CodeSchemaNotFound, err, "read schema %q", name)
			}
		}
	}

	if s.bundled != nil {
		for _, ext := range schema.Extensions {
			data, err := fs.ReadFile(s.bundled, name+ext)
			if err == nil {
				format, _ := schema.FormatFromPath(name + ext)
				return data, format, "bundled", nil
			}
		}
	}

	return nil, "", "", query.Errorf(query.CodeSchemaNotFound, "schema %q not found", name)
}

func (s *Store) validateDocument(data []byte, format schema.Format) error {
	var doc any
	switch format {
	case schema.FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	case schema.FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	}

	result, err := s.validator.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("document errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// IsCached reports whether name is loaded.
func (s *Store) IsCached(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[name]
	return ok
}

// GetCached returns the loaded schema.
func (s *Store) GetCached(name string) (*schema.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.cache[name]
	return sc, ok
}

// Exists reports whether name is cached or has a document.
func (s *Store) Exists(name string) bool {
	if s.IsCached(name) {
		return true
	}
	_, _, _, err := s.read(name)
	return err == nil
}

// Register caches an in-memory schema under its own name.
func (s *Store) Register(sc *schema.Schema) {
	s.mu.Lock()
	s.cache[sc.Name] = sc
	s.mu.Unlock()
	s.logger.Info().Str("schema", sc.Name).Msg("schema registered")
}

// Evict drops one cached schema.
func (s *Store) Evict(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

// Clear drops every cached schema.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cache = make(map[string]*schema.Schema)
	s.mu.Unlock()
	s.logger.Info().Msg("schema cache cleared")
}

// Names lists schema names found in the directory, the bundle and the
// cache, sorted and de-duplicated.
func (s *Store) Names() ([]string, error) {
	seen := make(map[string]bool)

	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read dir %s: %w", s.dir, err)
		}
		for _, e := range entries {
			if n, ok := documentName(e); ok {
				seen[n] = true
			}
		}
	}

	if s.bundled != nil {
		entries, err := fs.ReadDir(s.bundled, ".")
		if err != nil {
			return nil, fmt.Errorf("read bundled schemas: %w", err)
		}
		for _, e := range entries {
			if n, ok := documentName(e); ok {
				seen[n] = true
			}
		}
	}

	s.mu.RLock()
	for n := range s.cache {
		seen[n] = true
	}
	s.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func documentName(e fs.DirEntry) (string, bool) {
	if e.IsDir() {
		return "", false
	}
	if _, ok := schema.FormatFromPath(e.Name()); !ok {
		return "", false
	}
	return strings.TrimSuffix(e.Name(), path.Ext(e.Name())), true
}

// Watch evicts a cached schema whenever its document in the directory is
// written, created, removed or renamed, so the next use reloads it.
func (s *Store) Watch() error {
	if s.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	s.watcher = watcher

	go s.watchLoop()

	s.logger.Info().Str("dir", s.dir).Msg("watching schema documents for changes")
	return nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			if _, ok := schema.FormatFromPath(base); !ok {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			name := strings.TrimSuffix(base, filepath.Ext(base))
			s.Evict(name)
			s.logger.Debug().
				Str("event", event.Op.String()).
				Str("schema", name).
				Msg("schema document changed")

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("schema watcher error")

		case <-s.stopCh:
			return
		}
	}
}

// Stop stops watching the directory.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

// Ensure interface compliance.
var _ ports.SchemaStore = (*Store)(nil)
