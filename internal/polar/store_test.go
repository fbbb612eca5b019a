package polar_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltline/polar-engine/internal/observability"
	"github.com/saltline/polar-engine/internal/polar"
)

// fakeRepo is an in-memory Repository that records calls.
type fakeRepo struct {
	mu      sync.Mutex
	buckets map[polar.Key]polar.Bucket
	upserts int
	clears  int
	loadErr error
	saveErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{buckets: make(map[polar.Key]polar.Bucket)}
}

func (r *fakeRepo) LoadAll(context.Context) (map[polar.Key]polar.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	out := make(map[polar.Key]polar.Bucket, len(r.buckets))
	for k, b := range r.buckets {
		out[k] = b
	}
	return out, nil
}

func (r *fakeRepo) Upsert(_ context.Context, key polar.Key, b polar.Bucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.buckets[key] = b
	r.upserts++
	return nil
}

func (r *fakeRepo) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.buckets = make(map[polar.Key]polar.Bucket)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, repo polar.Repository) *polar.Store {
	t.Helper()
	s := polar.New(polar.DefaultConfig(), repo, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestStoreRecordIncrementalMean(t *testing.T) {
	s := newStore(t, nil)

	const n = 50
	var key polar.Key
	for range [n]struct{}{} {
		k, ok := s.Record(12, 45, 6.5)
		require.True(t, ok)
		key = k
	}

	b, ok := s.Bucket(key)
	require.True(t, ok)
	assert.Equal(t, int64(n), b.Count)
	assert.InDelta(t, 6.5, b.Mean, 1e-9)
	assert.InDelta(t, 0, b.StdDev(), 1e-9)

	st := s.Stats()
	assert.Equal(t, int64(n), st.TotalSamples)
	assert.Equal(t, 1, st.FilledBuckets)
}

func TestStoreBucketFor(t *testing.T) {
	s := newStore(t, nil)

	tests := []struct {
		name      string
		tws, twa  float64
		wantSpeed int
		wantAngle int
	}{
		{"mid grid", 12, 45, 6, 5},           // 45/10 rounds to bucket 5
		{"angle rounds down", 44, 44, 19, 4}, // 44/10 rounds to 4; speed clamped to top bucket
		{"negative angle folds", 12, -45, 6, 5},
		{"over 180 folds", 12, 350, 6, 1},
		{"angle 180", 12, 180, 6, 18},
		{"angle near seam", 12, 359, 6, 0},
		{"speed clamped high", 80, 90, 19, 9},
		{"dead calm", 0, 90, 0, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := s.BucketFor(tt.tws, tt.twa)
			assert.Equal(t, tt.wantSpeed, key.Speed, "speed bucket")
			assert.Equal(t, tt.wantAngle, key.Angle, "angle bucket")
		})
	}
}

func TestFoldAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0}, {45, 45}, {180, 180}, {181, 179}, {270, 90}, {359, 1},
		{-45, 45}, {-180, 180}, {360, 0}, {540, 180},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, polar.FoldAngle(tt.in), 1e-9, "FoldAngle(%g)", tt.in)
	}
}

func TestStoreOutlierRejection(t *testing.T) {
	s := newStore(t, nil)

	// Cold start: the first five samples are accepted unconditionally,
	// even a wild one.
	for _, stw := range []float64{6.0, 6.1, 5.9, 6.0, 6.2} {
		_, ok := s.Record(12, 45, stw)
		require.True(t, ok)
	}

	// Spike far beyond 3 sigma of the tight distribution is rejected.
	_, ok := s.Record(12, 45, 12.0)
	assert.False(t, ok)

	// A plausible sample still lands.
	key, ok := s.Record(12, 45, 6.05)
	require.True(t, ok)

	b, _ := s.Bucket(key)
	assert.Equal(t, int64(6), b.Count)
	assert.Less(t, b.Mean, 6.5)
}

func TestStoreStatsInvariants(t *testing.T) {
	s := newStore(t, nil)

	for angle := 0.0; angle <= 180; angle += 15 {
		s.Record(10, angle, 5)
	}

	st := s.Stats()
	assert.LessOrEqual(t, st.FilledBuckets, st.TotalBuckets)
	assert.Equal(t, 13, st.FilledBuckets)
	assert.Equal(t, int64(13), st.TotalSamples)
	assert.Equal(t, 20*19, st.TotalBuckets)
}

func TestStoreExport(t *testing.T) {
	s := newStore(t, nil)

	// Fill the bucket serving the (12 kt, 90 deg) comparison cell. A 12 kt
	// target sits between the 11 and 13 kt bucket centers; the mapping
	// breaks the tie upward, same as recording at exactly 12 kt does.
	for range [10]struct{}{} {
		_, ok := s.Record(12.0, 90, 6.8)
		require.True(t, ok)
	}

	table := s.Export()

	si := indexOf(t, table.WindSpeeds, 12)
	ai := indexOf(t, table.WindAngles, 90)
	assert.InDelta(t, 6.8, table.BoatSpeeds[ai][si], 1e-9)

	// Cells with no data are zero.
	assert.Zero(t, table.BoatSpeeds[0][0])

	// Shape matches the axes.
	require.Len(t, table.BoatSpeeds, len(table.WindAngles))
	for _, row := range table.BoatSpeeds {
		require.Len(t, row, len(table.WindSpeeds))
	}
}

func TestStoreExportDeterministic(t *testing.T) {
	s := newStore(t, nil)
	s.Record(12, 45, 6.2)
	s.Record(8, 120, 5.4)
	s.Record(16, 90, 7.8)

	t1 := s.Export()
	t2 := s.Export()
	if diff := cmp.Diff(t1, t2); diff != "" {
		t.Fatalf("export differs across calls (-first +second):\n%s", diff)
	}
}

func TestStorePersistence(t *testing.T) {
	repo := newFakeRepo()

	s := newStore(t, repo)
	key, ok := s.Record(12, 45, 6.2)
	require.True(t, ok)
	s.Close() // drains the write queue

	repo.mu.Lock()
	persisted, found := repo.buckets[key]
	repo.mu.Unlock()
	require.True(t, found)
	assert.Equal(t, int64(1), persisted.Count)
	assert.InDelta(t, 6.2, persisted.Mean, 1e-9)

	// A fresh store sees the persisted bucket.
	s2 := newStore(t, repo)
	b, found := s2.Bucket(key)
	require.True(t, found)
	assert.Equal(t, int64(1), b.Count)
}

func TestStoreInitialize(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		repo := newFakeRepo()
		repo.buckets[polar.Key{Speed: 6, Angle: 5}] = polar.Bucket{Count: 3, Mean: 6.0}

		s := polar.New(polar.DefaultConfig(), repo, discardLogger(), observability.NewMetricsForTesting())
		t.Cleanup(s.Close)

		require.NoError(t, s.Initialize(context.Background()))
		require.NoError(t, s.Initialize(context.Background()))

		b, ok := s.Bucket(polar.Key{Speed: 6, Angle: 5})
		require.True(t, ok)
		assert.Equal(t, int64(3), b.Count)
	})

	t.Run("load failure surfaces", func(t *testing.T) {
		repo := newFakeRepo()
		repo.loadErr = errors.New("disk gone")

		s := polar.New(polar.DefaultConfig(), repo, discardLogger(), observability.NewMetricsForTesting())
		err := s.Initialize(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load buckets")
	})

	t.Run("out-of-grid persisted keys are dropped", func(t *testing.T) {
		repo := newFakeRepo()
		repo.buckets[polar.Key{Speed: 99, Angle: 99}] = polar.Bucket{Count: 5, Mean: 6}

		s := newStore(t, repo)
		assert.Zero(t, s.Stats().FilledBuckets)
	})
}

func TestStoreReset(t *testing.T) {
	repo := newFakeRepo()
	s := newStore(t, repo)

	s.Record(12, 45, 6.2)
	require.NoError(t, s.Reset(context.Background()))

	st := s.Stats()
	assert.Zero(t, st.TotalSamples)
	assert.Zero(t, st.FilledBuckets)

	repo.mu.Lock()
	clears := repo.clears
	repo.mu.Unlock()
	assert.Equal(t, 1, clears)
}

func TestStorePersistFailureDoesNotAffectMemory(t *testing.T) {
	repo := newFakeRepo()
	repo.saveErr = errors.New("disk full")

	s := newStore(t, repo)
	key, ok := s.Record(12, 45, 6.2)
	require.True(t, ok)
	s.Close()

	// In-memory state stays authoritative.
	b, found := s.Bucket(key)
	require.True(t, found)
	assert.Equal(t, int64(1), b.Count)
}

func indexOf(t *testing.T, xs []float64, v float64) int {
	t.Helper()
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	t.Fatalf("%g not in %v", v, xs)
	return -1
}
