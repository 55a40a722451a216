package internaldefs

import (
	"strings"
	"testing"
	"time"

	goRoam "github.com/MrEthical07/goRoam"
)

func TestHistogramBoundsMatchEngine(t *testing.T) {
	if len(HistogramBounds) != len(goRoam.HistogramBucketBounds) {
		t.Fatalf("expected %d bounds, got %d", len(goRoam.HistogramBucketBounds), len(HistogramBounds))
	}
	for i, bound := range goRoam.HistogramBucketBounds {
		if got := time.Duration(HistogramBounds[i] * float64(time.Second)); got != bound {
			t.Fatalf("bound %d: expected %v, got %v", i, bound, got)
		}
	}
	if len(HistogramBoundSuffix) != len(HistogramBounds)+1 {
		t.Fatal("expected one suffix per bound plus the unbounded bucket")
	}
}

func TestCounterDefsAreUnique(t *testing.T) {
	names := map[string]bool{}
	ids := map[goRoam.MetricID]bool{}
	for _, def := range CounterDefs {
		if names[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate counter definition %s", def.Name)
		}
		if !strings.HasPrefix(def.Name, "goroam_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %s must be goroam_*_total", def.Name)
		}
		names[def.Name] = true
		ids[def.ID] = true
	}
	for _, def := range HistogramDefs {
		if ids[def.ID] {
			t.Fatalf("histogram %s reuses a counter id", def.Name)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
