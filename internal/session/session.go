// Package session serializes access to one artifact.Manager.
//
// The manager is single-writer and does no locking. Every inbound caller
// (MCP tool, HTTP handler, resource read) goes through a Session, which
// holds a mutex for the duration of each call.
package session

import (
	"log/slog"
	"sync"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/deps"
	"github.com/HendryAvila/specgate/internal/detector"
)

// Options configures Build.
type Options struct {
	CycleCap     int
	CascadeDepth int
	Logger       *slog.Logger
}

// Session owns one manager and the collaborators it was built from.
type Session struct {
	mu       sync.Mutex
	cat      *catalogue.Catalogue
	detector *detector.Detector
	resolver *deps.Resolver
	mgr      *artifact.Manager
}

// Build wires detector, resolver and manager over a loaded catalogue.
func Build(cat *catalogue.Catalogue, opts Options) (*Session, error) {
	det := detector.New(cat, detector.WithMaxDepth(opts.CascadeDepth))
	res := deps.New(cat, det)
	mgr, err := artifact.New(cat, det, res,
		artifact.WithCycleCap(opts.CycleCap),
		artifact.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, err
	}
	return &Session{cat: cat, detector: det, resolver: res, mgr: mgr}, nil
}

// Do runs fn with exclusive access to the manager. fn must not retain the
// manager after it returns.
func (s *Session) Do(fn func(m *artifact.Manager) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.mgr)
}

// Snapshot returns the manager state under the lock.
func (s *Session) Snapshot() artifact.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.State()
}

// Subscribe registers an event subscriber. Subscribers run while the
// session lock is held and must not call back into the session.
func (s *Session) Subscribe(fn artifact.Subscriber, types ...artifact.EventType) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.Subscribe(fn, types...)
}

// Catalogue returns the immutable catalogue. It needs no locking.
func (s *Session) Catalogue() *catalogue.Catalogue {
	return s.cat
}

// Resolver returns the dependency resolver. It needs no locking.
func (s *Session) Resolver() *deps.Resolver {
	return s.resolver
}

// Detector returns the conflict detector. It needs no locking.
func (s *Session) Detector() *detector.Detector {
	return s.detector
}
