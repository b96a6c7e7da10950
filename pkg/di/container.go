// Package di wires the per-session object graph: one shared lookup
// cache and key serializer, plus a repository per entity type. A
// Session is constructed at login and closed at logout; Close tears
// down every repository it built, clearing all cached state.
package di

import (
	"log/slog"
	"sync"

	"github.com/orchidarium/go-taxon-repository/cache"
	"github.com/orchidarium/go-taxon-repository/gateway"
	"github.com/orchidarium/go-taxon-repository/taxon"
	"github.com/orchidarium/go-taxon-repository/taxonrepo"
)

// Config collects the knobs for one session.
type Config struct {
	// Cache configures the shared read-through lookup cache.
	Cache cache.Config

	// Repository configures every repository the session builds
	// (snapshot TTL, name bounds, refresh backoff).
	Repository taxonrepo.Config

	// Logger receives structured warnings from offline degradation and
	// reconciliation. Nil uses slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cache:      cache.DefaultConfig(),
		Repository: taxonrepo.DefaultConfig(),
	}
}

// Session holds the singletons shared by every repository built within
// one login session.
type Session struct {
	config        Config
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	auth          gateway.AuthProvider
	probe         gateway.ConnectivityProbe

	mu      sync.Mutex
	closers []func()
}

// NewSession creates a session container. auth and probe are the
// external collaborators the caller owns; everything else is built
// here.
func NewSession(cfg Config, auth gateway.AuthProvider, probe gateway.ConnectivityProbe) (*Session, error) {
	cacheService, err := cache.NewCacheService(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if err := cfg.Repository.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		config:        cfg,
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
		auth:          auth,
		probe:         probe,
	}, nil
}

// NewSessionWithDefaults creates a session with default configuration.
func NewSessionWithDefaults(auth gateway.AuthProvider, probe gateway.ConnectivityProbe) (*Session, error) {
	return NewSession(DefaultConfig(), auth, probe)
}

// CacheService returns the shared lookup cache instance.
func (s *Session) CacheService() cache.CacheService {
	return s.cacheService
}

// KeySerializer returns the shared key serializer instance.
func (s *Session) KeySerializer() cache.KeySerializer {
	return s.keySerializer
}

// Config returns a copy of the session configuration.
func (s *Session) Config() Config {
	return s.config
}

// Close tears down every repository built through this session. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for _, closer := range closers {
		closer()
	}
}

func (s *Session) register(closer func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, closer)
}

// NewRepository builds a session-bound repository for one entity type,
// wired to the shared lookup cache and registered for teardown on
// Session.Close.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function:
//
//	families, err := di.NewRepository[*taxon.Family](session, familyGW)
//	genera, err := di.NewRepository[*taxon.Genus](session, genusGW,
//		taxonrepo.WithParentLookup[*taxon.Genus](families))
func NewRepository[T taxon.Record[T]](s *Session, gw gateway.RemoteGateway[T], opts ...taxonrepo.Option[T]) (*taxonrepo.Repository[T], error) {
	wired := []taxonrepo.Option[T]{
		taxonrepo.WithLogger[T](s.config.Logger),
		taxonrepo.WithLookupCache[T](s.cacheService, s.keySerializer),
	}
	wired = append(wired, opts...)

	repo, err := taxonrepo.New(s.config.Repository, gw, s.probe, s.auth, wired...)
	if err != nil {
		return nil, err
	}

	s.register(repo.Close)
	return repo, nil
}
