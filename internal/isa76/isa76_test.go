package isa76

import (
	"math"
	"testing"
)

func TestAltitudeMSLAtStandardSeaLevel(t *testing.T) {
	got := AltitudeMSL(1013.25, 1013.25)
	if math.Abs(got) > 1e-6 {
		t.Fatalf("AltitudeMSL(1013.25, 1013.25) = %v, want ~0", got)
	}
}

func TestAltitudeMSLDecreasesPressureIncreasesAltitude(t *testing.T) {
	low := AltitudeMSL(850.0, 1013.25)
	high := AltitudeMSL(1013.25, 1013.25)
	if !(low > high) {
		t.Fatalf("AltitudeMSL(850) = %v should exceed AltitudeMSL(1013.25) = %v", low, high)
	}
}

func TestAltitudeMSLQNHShiftsZero(t *testing.T) {
	// Raising QNH moves the zero-altitude pressure up, so the same static
	// pressure lies further above it and reads as a higher altitude.
	underStdQNH := AltitudeMSL(1000.0, 1013.25)
	underHighQNH := AltitudeMSL(1000.0, 1030.0)
	if !(underHighQNH > underStdQNH) {
		t.Fatalf("raising QNH should raise reported altitude: %v vs %v", underHighQNH, underStdQNH)
	}
}

func TestAltitudeMSLMonotonicAcrossLayerBoundary(t *testing.T) {
	// 11 km layer boundary pressure is ~226.32 hPa; sample either side and
	// confirm altitude still increases as pressure drops through it.
	below := AltitudeMSL(300.0, 1013.25)
	above := AltitudeMSL(150.0, 1013.25)
	if !(above > below) {
		t.Fatalf("AltitudeMSL should increase as pressure drops across the tropopause: %v vs %v", above, below)
	}
}

func TestAltitudeMSLBelowSeaLevelIsNegative(t *testing.T) {
	got := AltitudeMSL(1050.0, 1013.25)
	if got >= 0 {
		t.Fatalf("AltitudeMSL(1050, 1013.25) = %v, want negative (below MSL)", got)
	}
}

func TestAltitudeMSLClampsNonPositivePressure(t *testing.T) {
	// Should not panic or produce NaN/Inf on pathological input.
	got := AltitudeMSL(0, 1013.25)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("AltitudeMSL(0, ...) = %v, want finite", got)
	}
}
