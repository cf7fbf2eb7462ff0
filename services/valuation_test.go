package services

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

type memoryRecorder struct {
	mu   sync.Mutex
	runs []*models.Valuation
	err  error
}

func (r *memoryRecorder) Record(_ context.Context, v *models.Valuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, v)
	return r.err
}

func newValuationService(src *recordingSource, recorders ...Recorder) *ValuationService {
	return NewValuationService(newOrchestrator(src), newTestAggregator(), utils.NewNopLogger(), recorders...)
}

func TestEvaluate(t *testing.T) {
	src := &recordingSource{name: "a", answer: func(models.VehicleQuery) []models.PriceObservation {
		return []models.PriceObservation{300000, 310000, 295000, 1500000}
	}}
	ok := &memoryRecorder{}
	failing := &memoryRecorder{err: eris.New("disk full")}

	q := corsa2020
	q.Mileage = 100000
	v, err := newValuationService(src, ok, failing).Evaluate(context.Background(), q, models.ConditionFactors{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if v.Result.MarketAverage == nil || *v.Result.MarketAverage != 301667 {
		t.Errorf("MarketAverage: got %v", v.Result.MarketAverage)
	}
	if v.Factors.Mileage != 100000 || v.Factors.Transmission != models.TransmissionManual || v.Factors.Year != 2020 {
		t.Errorf("factors should default from the query: %+v", v.Factors)
	}
	if v.ID.String() == "" || v.Tier != models.TierExact {
		t.Errorf("valuation metadata: id %s tier %s", v.ID, v.Tier)
	}
	if len(ok.runs) != 1 || len(failing.runs) != 1 || ok.runs[0] != v {
		t.Error("every recorder should receive the valuation once")
	}
}

func TestEvaluateExplicitFactorsWin(t *testing.T) {
	src := &recordingSource{name: "a", answer: func(models.VehicleQuery) []models.PriceObservation {
		return []models.PriceObservation{400000}
	}}
	f := models.ConditionFactors{Mileage: 150000, Transmission: models.TransmissionAutomatic, Year: 2018}

	v, err := newValuationService(src).Evaluate(context.Background(), corsa2020, f)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Factors != f {
		t.Errorf("Factors: got %+v, want %+v", v.Factors, f)
	}
}

func TestEvaluateNoObservations(t *testing.T) {
	rec := &memoryRecorder{}
	v, err := newValuationService(&recordingSource{name: "a", answer: never}, rec).
		Evaluate(context.Background(), corsa2020, models.ConditionFactors{})

	if !eris.Is(err, models.ErrNoObservations) {
		t.Fatalf("expected ErrNoObservations, got %v", err)
	}
	if v == nil || v.Result.MarketAverage != nil || len(v.Attempts) != 3 {
		t.Errorf("valuation should report the attempts without an average: %+v", v)
	}
	if len(rec.runs) != 0 {
		t.Error("empty runs are not archived")
	}
}

func TestEvaluateInvalidQuery(t *testing.T) {
	v, err := newValuationService(&recordingSource{name: "a", answer: never}).
		Evaluate(context.Background(), models.VehicleQuery{Model: "corsa"}, models.ConditionFactors{})
	if v != nil || !eris.Is(err, models.ErrInvalidQuery) {
		t.Errorf("got %v, %v", v, err)
	}
}
