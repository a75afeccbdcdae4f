package geo

import (
	"math"
	"testing"
)

func TestDistanceMetersIdenticalPointsIsZero(t *testing.T) {
	if got := DistanceMeters(46.52, 6.63, 46.52, 6.63); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestDistanceMetersOneDegreeLatitudeAtEquator(t *testing.T) {
	got := DistanceMeters(0, 0, 1, 0)
	if math.Abs(got-111195) > 1 {
		t.Fatalf("expected ~111195m, got %v", got)
	}
}

func TestDistanceMetersIsSymmetric(t *testing.T) {
	ab := DistanceMeters(46.7785, 6.6412, 46.5197, 6.6323)
	ba := DistanceMeters(46.5197, 6.6323, 46.7785, 6.6412)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %v and %v", ab, ba)
	}
}

func TestDistanceMetersAntipodes(t *testing.T) {
	got := DistanceMeters(0, 0, 0, 180)
	want := math.Pi * EarthRadiusMeters
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("expected half circumference %v, got %v", want, got)
	}
}

func TestDistanceUsesGeoJSONAxisOrder(t *testing.T) {
	a := Point{Lon: 0, Lat: 0}
	b := Point{Lon: 0, Lat: 1}
	if got := Distance(a, b); math.Abs(got-DistanceMeters(0, 0, 1, 0)) > 1e-9 {
		t.Fatalf("Distance disagrees with DistanceMeters: %v", got)
	}
}

func TestDistanceMetersNearAntipodesIsFinite(t *testing.T) {
	want := math.Pi * EarthRadiusMeters
	pairs := [][4]float64{
		{0, 0, 0, 180},
		{0, 0, -1e-9, 180},
		{45, 10, -45, -170},
		{46.5197, 6.6323, -46.5197, -173.3677},
		{89.9999999, 0, -89.9999999, 180},
	}
	for _, p := range pairs {
		got := DistanceMeters(p[0], p[1], p[2], p[3])
		if math.IsNaN(got) {
			t.Fatalf("distance for %v is NaN", p)
		}
		if math.Abs(got-want) > 1 {
			t.Fatalf("expected ~%v for %v, got %v", want, p, got)
		}
	}
}
