// Package syncer refreshes the on-device reference working set from the
// remote data service.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/metrics"
)

const (
	modeBootstrap = "bootstrap"
	modeResync    = "resync"

	defaultFetchTimeout = 2 * time.Minute
)

// Request carries what the caller knows about the session.
type Request struct {
	RepID      string
	Credential string
	Online     bool
}

// Counts is what the replaced working set now holds.
type Counts struct {
	Clients           int
	Products          int
	PaymentTables     int
	DuplicatesRemoved int
	ExcludedClients   int
}

// Result is the outcome of one sync. Error mirrors the returned error.
type Result struct {
	Success bool
	Counts  Counts
	Error   error
}

// ServiceParams configure the sync service.
type ServiceParams struct {
	Store        store.LocalStore
	Remote       remote.Service
	Lock         Lock
	Metrics      *metrics.SyncMetrics
	Logger       *logger.Logger
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Service runs bootstrap and forced resyncs.
type Service struct {
	store        store.LocalStore
	remote       remote.Service
	lock         Lock
	metrics      *metrics.SyncMetrics
	logg         *logger.Logger
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewService builds a sync service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("local store required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote service required")
	}
	lock := params.Lock
	if lock == nil {
		lock = NewMemoryLock()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:        params.Store,
		remote:       params.Remote,
		lock:         lock,
		metrics:      params.Metrics,
		logg:         logg,
		fetchTimeout: timeout,
		now:          now,
	}, nil
}

// Bootstrap fetches every reference collection and replaces the local
// working set in one atomic step. Orders are never touched.
func (s *Service) Bootstrap(ctx context.Context, req Request) (Result, error) {
	return s.run(ctx, modeBootstrap, req)
}

// ForceResync fetches like Bootstrap, then clears the reference data before
// replacing it. A failed fetch leaves the store untouched.
func (s *Service) ForceResync(ctx context.Context, req Request) (Result, error) {
	return s.run(ctx, modeResync, req)
}

func (s *Service) run(ctx context.Context, mode string, req Request) (Result, error) {
	ctx = s.logg.WithOperation(s.logg.WithRepID(ctx, req.RepID), "sync."+mode)

	if err := s.checkPreconditions(req); err != nil {
		s.metrics.IncFailure(mode, string(pkgerrors.CodeOf(err)))
		return Result{Error: err}, err
	}

	locked, err := s.lock.Acquire(ctx, req.RepID)
	if err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "acquire sync lock")
		s.metrics.IncFailure(mode, string(pkgerrors.CodeOf(err)))
		return Result{Error: err}, err
	}
	if !locked {
		err := pkgerrors.New(pkgerrors.CodePreconditionFailed, "a sync is already running for this rep").
			WithDetails(map[string]any{"precondition": "sync_in_progress"})
		s.metrics.IncFailure(mode, string(pkgerrors.CodeOf(err)))
		return Result{Error: err}, err
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), req.RepID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to release sync lock")
		}
	}()

	start := s.now()
	counts, err := s.execute(ctx, mode, req)
	s.metrics.ObserveDuration(mode, s.now().Sub(start))
	if err != nil {
		s.metrics.IncFailure(mode, string(pkgerrors.CodeOf(err)))
		s.logg.Error(ctx, "sync failed", err)
		return Result{Error: err}, err
	}

	s.metrics.IncSuccess(mode)
	s.metrics.SetRecords("clients", counts.Clients)
	s.metrics.SetRecords("products", counts.Products)
	s.metrics.SetRecords("payment_tables", counts.PaymentTables)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"clients":            counts.Clients,
		"products":           counts.Products,
		"payment_tables":     counts.PaymentTables,
		"duplicates_removed": counts.DuplicatesRemoved,
	}), "sync completed")
	return Result{Success: true, Counts: counts}, nil
}

func (s *Service) checkPreconditions(req Request) error {
	missing := func(name, msg string) error {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, msg).
			WithDetails(map[string]any{"precondition": name})
	}
	switch {
	case strings.TrimSpace(req.Credential) == "":
		return missing("credential", "no session credential; sign in first")
	case !req.Online:
		return missing("online", "device is offline")
	case strings.TrimSpace(req.RepID) == "":
		return missing("rep_id", "sales rep is not identified")
	}
	if err := auth.CheckExpiry(req.Credential, s.now()); errors.Is(err, auth.ErrTokenExpired) {
		return missing("session_expired", "session expired; sign in again")
	}
	return nil
}

// execute fetches before touching the store, so a failed or canceled fetch
// leaves the working set as it was, also on a force resync.
func (s *Service) execute(ctx context.Context, mode string, req Request) (Counts, error) {
	data, err := s.fetch(ctx, req)
	if err != nil {
		return Counts{}, err
	}

	if mode == modeResync {
		if err := s.clear(ctx); err != nil {
			return Counts{}, err
		}
	}

	clients, excluded := ownedBy(data.Clients, req.RepID)
	data.Clients = clients
	if excluded > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "excluded_clients", excluded), "remote returned clients assigned to other reps")
	}

	res, err := s.store.ReplaceReferenceData(ctx, data)
	if err != nil {
		return Counts{}, err
	}
	if err := s.store.SetLastSyncAt(ctx, s.now().UTC()); err != nil {
		return Counts{}, err
	}

	return Counts{
		Clients:           res.Clients.Saved,
		Products:          res.Products.Saved,
		PaymentTables:     res.PaymentTables.Saved,
		DuplicatesRemoved: res.DuplicatesFound(),
		ExcludedClients:   excluded,
	}, nil
}

func (s *Service) clear(ctx context.Context) error {
	if err := s.store.ClearReferenceData(ctx); err != nil {
		return err
	}
	residual, err := s.store.CountReferenceData(ctx)
	if err != nil {
		return err
	}
	if residual.Total() > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"clients":        residual.Clients,
			"products":       residual.Products,
			"payment_tables": residual.PaymentTables,
		}), "reference data still present after clear")
	}
	return nil
}

// fetch pulls all three collections concurrently. Nothing is written unless
// every call succeeds.
func (s *Service) fetch(ctx context.Context, req Request) (store.ReferenceData, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	var data store.ReferenceData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.remote.FetchClients(gctx, req.RepID, req.Credential)
		data.Clients = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.remote.FetchProducts(gctx, req.Credential)
		data.Products = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.remote.FetchPaymentTables(gctx, req.Credential)
		data.PaymentTables = rows
		return err
	})
	if err := g.Wait(); err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeRemoteUnreachable, err, "fetch reference data")
		}
		return store.ReferenceData{}, err
	}
	return data, nil
}

func ownedBy(clients []models.Client, repID string) ([]models.Client, int) {
	out := clients[:0:0]
	for _, c := range clients {
		if c.SalesRepID == repID {
			out = append(out, c)
		}
	}
	return out, len(clients) - len(out)
}
