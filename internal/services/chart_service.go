package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasku/internal/amqp"
	"kasku/internal/cache"
	"kasku/internal/charts"
	"kasku/internal/core"
	"kasku/internal/log"
	"kasku/internal/storage"
)

// MsgNotVisible is the denial message for charts that are missing or
// not visible to the caller. The two cases deliberately read the same
// so callers cannot probe which chart ids exist.
const MsgNotVisible = "chart not found or not visible"

// SpecStore is the persistence surface the service needs.
type SpecStore interface {
	FindSpec(ctx context.Context, id string) (core.ChartSpec, error)
	SaveSpec(ctx context.Context, spec core.ChartSpec) error
	ListSpecs(ctx context.Context, caller core.Caller) ([]storage.SpecSummary, error)
}

// ChartService mediates between the HTTP layer and the chart engine:
// it loads specs (through a small cache), enforces visibility, runs
// the engine, and emits an audit record per data request.
type ChartService struct {
	specs  SpecStore
	engine *charts.Engine
	cache  *cache.LRU[core.ChartSpec]
	audit  *amqp.Client
	logger *log.Logger
}

// NewChartService creates the service. audit may be nil, in which case
// no audit records are published.
func NewChartService(specs SpecStore, engine *charts.Engine, specCache *cache.LRU[core.ChartSpec], audit *amqp.Client, logger *log.Logger) *ChartService {
	if logger == nil {
		logger = log.New(log.ComponentCharts, log.Config{})
	}
	return &ChartService{
		specs:  specs,
		engine: engine,
		cache:  specCache,
		audit:  audit,
		logger: logger,
	}
}

// ChartData loads a saved chart and produces its data payload for the
// caller. Missing charts and charts the caller may not see yield the
// same payload, distinct from the empty-data message of a visible
// chart whose window holds no rows.
func (s *ChartService) ChartData(ctx context.Context, id string, caller core.Caller) core.Payload {
	spec, err := s.loadSpec(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrSpecNotFound) {
			s.logger.ErrorContext(ctx, "Failed to load chart spec",
				log.FieldChartID, id, log.FieldError, err.Error())
		}
		s.publishAudit(ctx, id, caller, "", true, MsgNotVisible)
		return core.EmptyPayload(core.KindBar, MsgNotVisible)
	}

	if !visible(spec, caller) {
		s.publishAudit(ctx, id, caller, string(spec.Mode), true, MsgNotVisible)
		return core.EmptyPayload(spec.Kind, MsgNotVisible)
	}

	return s.run(ctx, spec, caller)
}

// Preview runs an unsaved spec through the engine. The spec is treated
// as owned by the caller, so visibility never blocks a preview.
func (s *ChartService) Preview(ctx context.Context, spec core.ChartSpec, caller core.Caller) core.Payload {
	spec.Normalize()
	spec.OwnerID = caller.UserID

	return s.run(ctx, spec, caller)
}

// run executes the engine and emits the audit record, flagging raw
// templates the sandbox turns away.
func (s *ChartService) run(ctx context.Context, spec core.ChartSpec, caller core.Caller) core.Payload {
	if spec.Mode == core.ModeRawQuery {
		if err := charts.ValidateRawTemplate(spec.RawQuery); err != nil {
			s.publishAudit(ctx, spec.ID, caller, string(spec.Mode), true, err.Error())
			return core.EmptyPayload(spec.Kind, err.Error())
		}
	}

	payload := s.engine.ChartSeries(ctx, spec, caller)
	s.publishAudit(ctx, spec.ID, caller, string(spec.Mode), false, "")
	return payload
}

// Save persists a chart spec for the caller. Non-privileged callers
// always own what they save and cannot overwrite other owners' charts.
// Raw templates must pass the sandbox grammar before they are stored.
func (s *ChartService) Save(ctx context.Context, spec core.ChartSpec, caller core.Caller) error {
	spec.Normalize()

	if !caller.Privileged {
		spec.OwnerID = caller.UserID

		existing, err := s.specs.FindSpec(ctx, spec.ID)
		if err == nil && existing.OwnerID != caller.UserID {
			return fmt.Errorf("chart %s: %w", spec.ID, ErrNotOwner)
		}
		if err != nil && !errors.Is(err, storage.ErrSpecNotFound) {
			return fmt.Errorf("check chart ownership: %w", err)
		}
	}

	if spec.Mode == core.ModeRawQuery {
		if err := charts.ValidateRawTemplate(spec.RawQuery); err != nil {
			return fmt.Errorf("raw query template: %w", err)
		}
	}

	if err := s.specs.SaveSpec(ctx, spec); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Delete(spec.ID)
	}
	return nil
}

// ErrNotOwner is returned when a caller tries to overwrite a chart
// someone else owns.
var ErrNotOwner = errors.New("chart is owned by another user")

// List returns the chart summaries visible to the caller.
func (s *ChartService) List(ctx context.Context, caller core.Caller) ([]storage.SpecSummary, error) {
	return s.specs.ListSpecs(ctx, caller)
}

func (s *ChartService) loadSpec(ctx context.Context, id string) (core.ChartSpec, error) {
	if s.cache != nil {
		if spec, ok := s.cache.Get(id); ok {
			return spec, nil
		}
	}

	spec, err := s.specs.FindSpec(ctx, id)
	if err != nil {
		return core.ChartSpec{}, err
	}

	if s.cache != nil {
		s.cache.Set(id, spec)
	}
	return spec, nil
}

// visible reports whether the caller may see the chart: public charts,
// their own charts, or anything for privileged callers.
func visible(spec core.ChartSpec, caller core.Caller) bool {
	return spec.IsPublic || caller.Privileged || spec.OwnerID == caller.UserID
}

// publishAudit emits one audit record without blocking the response.
// Audit failures are logged and swallowed; the data path never depends
// on the broker.
func (s *ChartService) publishAudit(ctx context.Context, chartID string, caller core.Caller, mode string, rejected bool, reason string) {
	if s.audit == nil {
		return
	}

	msg := amqp.ChartQueryMessage{
		ChartID:   chartID,
		UserID:    caller.UserID,
		Mode:      mode,
		Rejected:  rejected,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.audit.PublishChartQuery(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish chart audit record",
				log.FieldChartID, chartID, log.FieldError, err.Error())
		}
	}()
}
