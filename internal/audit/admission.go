package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/actualfyi/audit-service/internal/db"
)

// staleRunMessage is the diagnostic written onto runs presumed dead, by both
// admission control and the reaper.
const staleRunMessage = "stale run detected by supervisor"

// forceRefreshMessage is the diagnostic written onto a healthy run superseded
// because the caller asked for a fresh audit.
const forceRefreshMessage = "superseded by force refresh"

// AdmitRequest identifies the product to audit. ProductID takes precedence;
// Slug is the fallback lookup. ForceRefresh supersedes a healthy active run
// and starts over instead of returning it.
type AdmitRequest struct {
	ProductID    string
	Slug         string
	ForceRefresh bool
}

// AdmitResult is what the caller polls with.
type AdmitResult struct {
	Run     *db.AuditRun
	Created bool
}

// Admit returns a run for the product such that at most one live run exists
// per product. A healthy active run is returned as-is (the idempotence
// guarantee); a stale one is superseded before a fresh run is inserted, as is
// a healthy one when the caller sets ForceRefresh. A pending run owned by the
// per-stage endpoint is handed to the dispatcher instead of being returned
// idle. The unique partial index is the authoritative lock: if a concurrent
// request wins the insert race, both callers converge on the winner's run id.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*AdmitResult, error) {
	product, err := s.resolveProduct(ctx, req)
	if err != nil {
		return nil, err
	}

	// Lookup errors fail open toward creating a new run; only the final
	// insert's error is surfaced.
	active, err := s.store.GetActiveRun(ctx, product.ID)
	if err != nil {
		log.Printf("[admission] active-run lookup failed for product %s: %v", product.ID, err)
		active = nil
	}

	if active != nil {
		switch {
		case s.isStale(active, time.Now()):
			log.Printf("[admission] superseding stale run %s (status=%s)", active.ID, active.Status)
			if err := s.store.SupersedeRun(ctx, active.ID, staleRunMessage); err != nil {
				return nil, fmt.Errorf("failed to supersede stale run: %w", err)
			}
		case req.ForceRefresh:
			log.Printf("[admission] force refresh supersedes run %s (status=%s)", active.ID, active.Status)
			if err := s.store.SupersedeRun(ctx, active.ID, forceRefreshMessage); err != nil {
				return nil, fmt.Errorf("failed to supersede run for refresh: %w", err)
			}
		default:
			if active.Status == db.RunStatusPending && active.Driver == db.DriverManual {
				if err := s.store.RequeueRun(ctx, active.ID); err != nil {
					return nil, fmt.Errorf("failed to requeue run: %w", err)
				}
				s.wake()
			}
			return &AdmitResult{Run: active}, nil
		}
	}

	run, err := s.store.CreateRun(ctx, product.ID, db.DriverQueue)
	if err != nil {
		if errors.Is(err, db.ErrActiveRunExists) {
			// A concurrent request won the race; converge on its run.
			winner, qerr := s.store.GetActiveRun(ctx, product.ID)
			if qerr == nil && winner != nil {
				return &AdmitResult{Run: winner}, nil
			}
			return nil, fmt.Errorf("lost admission race but no active run found: %w", err)
		}
		return nil, err
	}

	s.wake()
	return &AdmitResult{Run: run, Created: true}, nil
}

// isStale applies the staleness policy: a running run with no heartbeat for
// RunningStaleAfter, or a pending run older than PendingStaleAfter, is
// presumed dead.
func (s *Service) isStale(run *db.AuditRun, now time.Time) bool {
	switch run.Status {
	case db.RunStatusRunning:
		hb := run.CreatedAt
		if run.LastHeartbeat != nil {
			hb = *run.LastHeartbeat
		}
		return now.Sub(hb) > s.cfg.RunningStaleAfter
	case db.RunStatusPending:
		return now.Sub(run.CreatedAt) > s.cfg.PendingStaleAfter
	}
	return false
}

func (s *Service) resolveProduct(ctx context.Context, req AdmitRequest) (*db.Product, error) {
	if req.ProductID != "" {
		id, err := uuid.Parse(req.ProductID)
		if err == nil {
			product, err := s.store.GetProduct(ctx, id)
			if err != nil {
				return nil, err
			}
			if product != nil {
				return product, nil
			}
		}
		// Fall through: some callers send the slug in the id field.
		if req.Slug == "" {
			req.Slug = req.ProductID
		}
	}
	if req.Slug != "" {
		product, err := s.store.GetProductBySlug(ctx, req.Slug)
		if err != nil {
			return nil, err
		}
		if product != nil {
			return product, nil
		}
	}
	return nil, ErrProductNotFound
}
