package usecases_test

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/usecases"
	"github.com/environmenttech/wastewatch/internal/pkg/geospatial"
)

func TestSortNearest_MissingEstimateSortsLast(t *testing.T) {
	ranked := []domain.RankedReport{
		{Report: domain.WasteReport{ID: "R1"}},
		{Report: domain.WasteReport{ID: "R2"}, Estimate: &domain.ProximityEstimate{DistanceKm: 2, Minutes: 4}},
		{Report: domain.WasteReport{ID: "R3"}, Estimate: &domain.ProximityEstimate{DistanceKm: 5, Minutes: 10}},
	}

	usecases.SortNearest(ranked)

	ids := []string{ranked[0].Report.ID, ranked[1].Report.ID, ranked[2].Report.ID}
	assert.Equal(t, []string{"R2", "R3", "R1"}, ids)
	assert.True(t, math.IsInf(ranked[2].SortDistance(), 1))
}

func TestRankNearest_WithOrigin(t *testing.T) {
	reports := []domain.WasteReport{
		{ID: "far", Location: domain.Coordinate{Lat: 19.076, Lon: 72.8777}},
		{ID: "near", Location: domain.Coordinate{Lat: 18.5210, Lon: 73.8570}},
		{ID: "mid", Location: pcmc},
	}

	ranked := usecases.RankNearest(&pune, reports)

	require.Len(t, ranked, 3)
	assert.Equal(t, "near", ranked[0].Report.ID)
	assert.Equal(t, "mid", ranked[1].Report.ID)
	assert.Equal(t, "far", ranked[2].Report.ID)
	for _, r := range ranked {
		require.NotNil(t, r.Estimate)
	}
	assert.InDelta(t, 13.57, ranked[1].Estimate.DistanceKm, 0.01)
	assert.Equal(t, 27, ranked[1].Estimate.Minutes)
}

func TestRankNearest_NoOriginKeepsOrder(t *testing.T) {
	reports := []domain.WasteReport{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	ranked := usecases.RankNearest(nil, reports)

	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, ranked[i].Report.ID)
		assert.Nil(t, ranked[i].Estimate)
	}
}

func TestProximityService_NearbyOpen_UsesRadiusQuery(t *testing.T) {
	var gotRadius float64
	repo := &mockReportRepo{
		findOpenNearbyFn: func(ctx context.Context, c domain.Coordinate, radius float64, limit int) ([]domain.WasteReport, error) {
			gotRadius = radius
			return []domain.WasteReport{{ID: "x", Location: pcmc}}, nil
		},
		listOpenFn: func(ctx context.Context, limit int) ([]domain.WasteReport, error) {
			t.Error("ListOpen should not be called when a radius is given")
			return nil, nil
		},
	}
	svc := usecases.NewProximityService(repo)

	ranked, err := svc.NearbyOpen(context.Background(), &pune, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, gotRadius)
	require.Len(t, ranked, 1)
	assert.NotNil(t, ranked[0].Estimate)
}

func TestProximityService_NearbyOpen_ClampsLimit(t *testing.T) {
	var gotLimit int
	repo := &mockReportRepo{
		listOpenFn: func(ctx context.Context, limit int) ([]domain.WasteReport, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := usecases.NewProximityService(repo)

	_, err := svc.NearbyOpen(context.Background(), nil, 0, 9999)
	require.NoError(t, err)
	assert.Equal(t, 200, gotLimit)
}

func TestProximityService_NearbyOpen_InvalidOrigin(t *testing.T) {
	svc := usecases.NewProximityService(&mockReportRepo{})
	_, err := svc.NearbyOpen(context.Background(), &domain.Coordinate{Lat: -91}, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)
}

func TestProximityService_NearbyOpen_OldestNearestReportIsKept(t *testing.T) {
	now := time.Now()
	open := []domain.WasteReport{
		{ID: "far-new", Location: domain.Coordinate{Lat: 19.076, Lon: 72.8777}, CreatedAt: now},
		{ID: "mid", Location: domain.Coordinate{Lat: 18.9, Lon: 73.2}, CreatedAt: now.Add(-time.Hour)},
		{ID: "near-old", Location: domain.Coordinate{Lat: 18.5210, Lon: 73.8570}, CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}
	repo := &mockReportRepo{
		listOpenFn: func(ctx context.Context, limit int) ([]domain.WasteReport, error) {
			t.Error("ListOpen should not be called when an origin is given")
			return open[:limit], nil
		},
		findNearestFn: func(ctx context.Context, c domain.Coordinate, limit int) ([]domain.WasteReport, error) {
			sorted := append([]domain.WasteReport(nil), open...)
			sort.SliceStable(sorted, func(i, j int) bool {
				return geospatial.HaversineKm(c, sorted[i].Location) < geospatial.HaversineKm(c, sorted[j].Location)
			})
			if len(sorted) > limit {
				sorted = sorted[:limit]
			}
			return sorted, nil
		},
	}
	svc := usecases.NewProximityService(repo)

	ranked, err := svc.NearbyOpen(context.Background(), &pune, 0, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "near-old", ranked[0].Report.ID)
	assert.Equal(t, "mid", ranked[1].Report.ID)
}
