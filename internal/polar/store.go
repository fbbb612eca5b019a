// Package polar accumulates accepted instrument samples into a binned
// performance table: speed through water as a function of true wind speed
// and true wind angle. The grid is deliberately finer than the comparison
// axes used by factory polar charts; Export maps one onto the other.
package polar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/saltline/polar-engine/internal/observability"
)

// Key addresses one bucket in the learning grid.
type Key struct {
	Speed int // wind-speed bucket index
	Angle int // wind-angle bucket index
}

// Bucket is the running statistical summary of one grid cell, maintained
// with Welford's algorithm so the variance survives incremental updates
// and persistence round-trips.
type Bucket struct {
	Count int64
	Mean  float64
	M2    float64 // sum of squared deviations from the mean
}

// StdDev returns the sample standard deviation of the bucket, or 0 with
// fewer than two samples.
func (b Bucket) StdDev() float64 {
	if b.Count < 2 {
		return 0
	}
	return math.Sqrt(b.M2 / float64(b.Count-1))
}

// Repository persists buckets across sessions. Implementations must be safe
// for use from the store's single writer goroutine plus Reset callers.
type Repository interface {
	LoadAll(ctx context.Context) (map[Key]Bucket, error)
	Upsert(ctx context.Context, key Key, b Bucket) error
	Clear(ctx context.Context) error
}

// Config holds the grid resolution and acceptance tuning.
type Config struct {
	SpeedBucketKnots   float64 // wind-speed bucket width
	AngleBucketDegrees float64 // wind-angle bucket width over the folded 0-180 domain
	MaxWindSpeedKnots  float64 // wind speeds at or above this are clamped into the top bucket

	// OutlierSigma rejects a sample whose deviation from the bucket mean
	// exceeds this many standard deviations. ColdStartSamples are accepted
	// unconditionally while the variance estimate is still unstable.
	OutlierSigma     float64
	ColdStartSamples int64

	// TargetWindSpeeds and TargetWindAngles are the fixed comparison axes
	// Export maps onto, matching the factory polar chart convention.
	TargetWindSpeeds []float64
	TargetWindAngles []float64

	WriteQueueSize int
	PersistTimeout time.Duration
}

// DefaultConfig returns the resolution and tuning the engine ships with.
func DefaultConfig() Config {
	return Config{
		SpeedBucketKnots:   2.0,
		AngleBucketDegrees: 10.0,
		MaxWindSpeedKnots:  40.0,
		OutlierSigma:       3.0,
		ColdStartSamples:   5,
		TargetWindSpeeds:   []float64{6, 8, 10, 12, 14, 16, 20, 24},
		TargetWindAngles:   []float64{40, 45, 52, 60, 70, 80, 90, 100, 110, 120, 135, 150, 165, 180},
		WriteQueueSize:     256,
		PersistTimeout:     5 * time.Second,
	}
}

type writeReq struct {
	key    Key
	bucket Bucket
}

// Store is the aggregation table. Ingestion updates are synchronous and
// in-memory; persistence happens on a single background writer fed by a
// bounded queue so the hot path never blocks on I/O.
type Store struct {
	cfg     Config
	repo    Repository
	logger  *slog.Logger
	metrics *observability.Metrics

	mu          sync.RWMutex
	buckets     map[Key]Bucket
	initialized bool

	writes    chan writeReq
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Store. A nil repository keeps the table memory-only.
func New(cfg Config, repo Repository, logger *slog.Logger, metrics *observability.Metrics) *Store {
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = 256
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	return &Store{
		cfg:     cfg,
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		buckets: make(map[Key]Bucket),
	}
}

// Initialize loads previously persisted buckets and starts the background
// writer. It is idempotent; repeat calls after a successful load are no-ops.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	if s.repo != nil {
		loaded, err := s.repo.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load buckets: %w", err)
		}
		for k, b := range loaded {
			if s.inGrid(k) && b.Count > 0 {
				s.buckets[k] = b
			}
		}
		s.logger.Info("bucket store loaded", "buckets", len(s.buckets))

		s.writes = make(chan writeReq, s.cfg.WriteQueueSize)
		s.wg.Add(1)
		go s.persistLoop(s.writes)
	}

	s.initialized = true
	return nil
}

// Record folds one accepted (tws, twa, stw) observation into its bucket.
// It returns the bucket key and false when the observation was rejected as
// an outlier against the bucket's running distribution.
func (s *Store) Record(tws, twa, stw float64) (Key, bool) {
	key := s.BucketFor(tws, twa)

	s.mu.Lock()
	b := s.buckets[key]

	if b.Count >= s.cfg.ColdStartSamples {
		if sd := b.StdDev(); sd > 0 && math.Abs(stw-b.Mean) > s.cfg.OutlierSigma*sd {
			s.mu.Unlock()
			return key, false
		}
	}

	b.Count++
	delta := stw - b.Mean
	b.Mean += delta / float64(b.Count)
	b.M2 += delta * (stw - b.Mean)
	s.buckets[key] = b
	writes := s.writes
	s.mu.Unlock()

	if writes != nil {
		select {
		case writes <- writeReq{key: key, bucket: b}:
		default:
			s.metrics.PersistQueueDrops.Inc()
		}
	}
	return key, true
}

// BucketFor derives the grid key for a wind observation. The wind angle is
// folded into the 0-180 symmetric domain (port and starboard are mirrored
// upstream) and assigned with wrap-aware rounding; wind speed is clamped
// into the configured range.
func (s *Store) BucketFor(tws, twa float64) Key {
	si := int(tws / s.cfg.SpeedBucketKnots)
	if maxIdx := s.SpeedBuckets() - 1; si > maxIdx {
		si = maxIdx
	}
	if si < 0 {
		si = 0
	}

	ai := int(math.Round(FoldAngle(twa) / s.cfg.AngleBucketDegrees))
	if maxIdx := s.AngleBuckets() - 1; ai > maxIdx {
		ai = maxIdx
	}
	return Key{Speed: si, Angle: ai}
}

// FoldAngle maps any wind angle (signed or 0-360) into [0, 180].
func FoldAngle(twa float64) float64 {
	a := math.Abs(math.Mod(twa, 360))
	if a > 180 {
		a = 360 - a
	}
	return a
}

// SpeedBuckets returns the number of wind-speed buckets in the grid.
func (s *Store) SpeedBuckets() int {
	return int(s.cfg.MaxWindSpeedKnots / s.cfg.SpeedBucketKnots)
}

// AngleBuckets returns the number of wind-angle buckets in the grid,
// covering 0 through 180 inclusive.
func (s *Store) AngleBuckets() int {
	return int(180/s.cfg.AngleBucketDegrees) + 1
}

// TotalBuckets returns the fixed grid size, independent of fill.
func (s *Store) TotalBuckets() int {
	return s.SpeedBuckets() * s.AngleBuckets()
}

func (s *Store) inGrid(k Key) bool {
	return k.Speed >= 0 && k.Speed < s.SpeedBuckets() &&
		k.Angle >= 0 && k.Angle < s.AngleBuckets()
}

// Bucket returns a copy of the bucket at key, if present.
func (s *Store) Bucket(key Key) (Bucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[key]
	return b, ok
}

// Reset clears all buckets and persisted state. Irreversible; confirmation
// is the caller's policy, not the store's.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.buckets = make(map[Key]Bucket)
	s.mu.Unlock()

	if s.repo == nil {
		return nil
	}
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear persisted buckets: %w", err)
	}
	return nil
}

// Close stops the background writer after draining queued writes.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		writes := s.writes
		s.writes = nil
		s.mu.Unlock()
		if writes != nil {
			close(writes)
		}
	})
	s.wg.Wait()
}

// persistLoop drains the write queue. A failed upsert is logged and counted;
// the in-memory table remains authoritative for the session.
func (s *Store) persistLoop(writes <-chan writeReq) {
	defer s.wg.Done()
	for req := range writes {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		err := s.repo.Upsert(ctx, req.key, req.bucket)
		cancel()
		s.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, context.Canceled) {
			s.metrics.PersistErrors.Inc()
			s.logger.Warn("bucket upsert failed",
				"speed_idx", req.key.Speed,
				"angle_idx", req.key.Angle,
				"error", err,
			)
		}
	}
}
