package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/kjk/regstore/recstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOk    = "ok"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	// StoreOpsTotal counts store operations labeled by operation and result
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regstore_store_ops_total",
			Help: "Total number of record store operations",
		},
		[]string{"op", "result"},
	)

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "regstore_store_op_duration_seconds",
			Help: "Duration of record store operations in seconds",
			// file backend scans the whole file so this can get slow
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"op"},
	)
)

func observe(op string, start time.Time, result string) {
	StoreOpsTotal.WithLabelValues(op, result).Inc()
	StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func boolResult(found bool, err error) string {
	if err != nil {
		return ResultError
	}
	if !found {
		return ResultMiss
	}
	return ResultOk
}

// Store records metrics for every operation of the wrapped store
type Store struct {
	recstore.Store
}

// Wrap returns s instrumented with metrics
func Wrap(s recstore.Store) *Store {
	return &Store{Store: s}
}

func (s *Store) Save(ctx context.Context, rec recstore.Record, key string) error {
	start := time.Now()
	err := s.Store.Save(ctx, rec, key)
	observe("save", start, boolResult(true, err))
	return err
}

func (s *Store) KeyExists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	found, err := s.Store.KeyExists(ctx, key)
	observe("key_exists", start, boolResult(found, err))
	return found, err
}

func (s *Store) UserExists(ctx context.Context, rec recstore.Record) (bool, error) {
	start := time.Now()
	found, err := s.Store.UserExists(ctx, rec)
	observe("user_exists", start, boolResult(found, err))
	return found, err
}

func (s *Store) GetKeyForUser(ctx context.Context, rec recstore.Record) (string, error) {
	start := time.Now()
	key, err := s.Store.GetKeyForUser(ctx, rec)
	if errors.Is(err, recstore.ErrNotFound) {
		observe("get_key", start, ResultMiss)
	} else {
		observe("get_key", start, boolResult(true, err))
	}
	return key, err
}

func (s *Store) Entries(ctx context.Context) ([]recstore.Entry, error) {
	start := time.Now()
	res, err := s.Store.Entries(ctx)
	observe("entries", start, boolResult(true, err))
	return res, err
}

// OpCounts returns StoreOpsTotal values keyed by "<op> <result>"
func OpCounts() (map[string]float64, error) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	res := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "regstore_store_ops_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var op, result string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "op":
					op = lp.GetValue()
				case "result":
					result = lp.GetValue()
				}
			}
			res[op+" "+result] = m.GetCounter().GetValue()
		}
	}
	return res, nil
}
