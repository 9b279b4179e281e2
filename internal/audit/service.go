// Package audit implements the run lifecycle: admission control, the stage
// pipeline runner, the dispatcher that feeds it, the staleness supervisor, and
// the read model behind the status endpoint.
package audit

import (
	"github.com/actualfyi/audit-service/internal/audit/stages"
	"github.com/actualfyi/audit-service/internal/config"
)

// Service owns the audit run lifecycle against a Store.
type Service struct {
	store    Store
	cfg      config.Config
	registry *stages.Registry

	// notify wakes the dispatcher after a run is enqueued. Nil means no
	// dispatcher is attached (one-shot CLI modes).
	notify func()
}

// NewService wires the orchestration layer.
func NewService(store Store, cfg config.Config, registry *stages.Registry) *Service {
	return &Service{store: store, cfg: cfg, registry: registry}
}

// SetNotify attaches the dispatcher wake-up hook.
func (s *Service) SetNotify(fn func()) {
	s.notify = fn
}

func (s *Service) wake() {
	if s.notify != nil {
		s.notify()
	}
}
