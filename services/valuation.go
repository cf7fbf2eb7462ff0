package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

// Recorder receives every finished valuation.
type Recorder interface {
	Record(ctx context.Context, v *models.Valuation) error
}

// ValuationService prices one vehicle: collect observations, aggregate,
// archive.
type ValuationService struct {
	orchestrator *Orchestrator
	aggregator   *Aggregator
	recorders    []Recorder
	logger       *utils.Logger
}

func NewValuationService(o *Orchestrator, a *Aggregator, logger *utils.Logger, recorders ...Recorder) *ValuationService {
	return &ValuationService{orchestrator: o, aggregator: a, recorders: recorders, logger: logger}
}

// Evaluate returns ErrInvalidQuery with a nil Valuation, and
// ErrNoObservations together with a Valuation whose attempts show what was
// tried. Factors left at zero are taken from the query.
func (s *ValuationService) Evaluate(ctx context.Context, q models.VehicleQuery, f models.ConditionFactors) (*models.Valuation, error) {
	id := uuid.New()
	log := s.logger.With("run", id)

	f = factorsFromQuery(q, f)
	log.Info("[valuation] %s (%d-%d, %s, %d km)", q.Label(), q.MinYear, q.MaxYear, gearLabel(q.Transmission), q.Mileage)

	col, err := s.orchestrator.Collect(ctx, q)
	if col == nil {
		return nil, err
	}

	v := &models.Valuation{
		ID:        id,
		Query:     q,
		Factors:   f,
		Tier:      col.Tier,
		Attempts:  col.Attempts,
		Providers: col.Providers,
		CreatedAt: time.Now(),
	}

	if err != nil {
		if eris.Is(err, models.ErrNoObservations) {
			v.Result = s.aggregator.Aggregate(nil, f)
			log.Warn("[valuation] no prices after %d tiers", len(col.Attempts))
		}
		return v, err
	}

	v.Result = s.aggregator.Aggregate(col.Observations(), f)
	log.Info("[valuation] tier %s: %d prices, %d kept", col.Tier,
		models.CountObservations(col.Providers), len(v.Result.Filtered))

	s.archive(ctx, log, v)
	return v, nil
}

// archive hands v to every recorder concurrently and waits for them.
// Recorder failures are logged, never returned.
func (s *ValuationService) archive(ctx context.Context, log *utils.Logger, v *models.Valuation) {
	if len(s.recorders) == 0 {
		return
	}
	pool := utils.NewWorkerPool(ctx, len(s.recorders), 0)
	for _, r := range s.recorders {
		r := r
		pool.Submit(func(ctx context.Context) {
			if err := r.Record(ctx, v); err != nil {
				log.Warn("[valuation] archive: %v", err)
			}
		})
	}
	pool.Wait()
}

func factorsFromQuery(q models.VehicleQuery, f models.ConditionFactors) models.ConditionFactors {
	if f.Mileage == 0 {
		f.Mileage = q.Mileage
	}
	if f.Transmission == models.TransmissionAny {
		f.Transmission = q.Transmission
	}
	if f.Year == 0 {
		f.Year = q.MaxYear
	}
	return f
}

func gearLabel(t models.Transmission) string {
	if t == models.TransmissionAny {
		return "any gearbox"
	}
	return string(t)
}
