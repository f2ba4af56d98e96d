// Package engine orchestrates scenario conversations: the turn append
// pipeline, checkpoint analysis, final reports, capsules, and the
// suggested-questions advisor. All state lives in the store; the engine
// holds only the per-session locks and the backend client.
package engine

import (
	"golang.org/x/sync/singleflight"

	db "github.com/parley-labs/parley/internal/db/gorm"
	"github.com/parley-labs/parley/internal/llm"
)

const defaultCapsuleExpiryDays = 30

// Options configures an Engine.
type Options struct {
	Store   *db.Store
	Backend llm.Generator
	// PublicBaseURL is the externally reachable base for capsule share
	// URLs, e.g. "https://parley.example.com".
	PublicBaseURL string
}

// Engine drives the conversation lifecycle against the store and the
// generation backend.
type Engine struct {
	store    *db.Store
	sessions *db.SessionStore
	turns    *db.TurnStore
	analysis *db.AnalysisStore
	capsules *db.CapsuleStore
	backend  llm.Generator

	locks         *sessionLocks
	suggestGroup  singleflight.Group
	publicBaseURL string
}

// New creates an Engine over an open store and backend.
func New(opts Options) *Engine {
	return &Engine{
		store:         opts.Store,
		sessions:      db.NewSessionStore(opts.Store),
		turns:         db.NewTurnStore(opts.Store),
		analysis:      db.NewAnalysisStore(opts.Store),
		capsules:      db.NewCapsuleStore(opts.Store),
		backend:       opts.Backend,
		locks:         newSessionLocks(),
		publicBaseURL: opts.PublicBaseURL,
	}
}

// Sessions exposes the session store for the read surface.
func (e *Engine) Sessions() *db.SessionStore { return e.sessions }

// Turns exposes the turn store for the read surface.
func (e *Engine) Turns() *db.TurnStore { return e.turns }
