// Package isa76 converts static pressure to altitude above mean sea level
// using the layered barometric model of the U.S. Standard Atmosphere 1976,
// grounded on original_source/lib/LibAvionics/ISA76.h. Base pressures scale
// by QNH/101325 so the conversion matches the local altimeter setting; the
// sea-level troposphere gradient formula is extended below the first layer
// base to report negative geopotential height, exactly as the original does.
package isa76

import "math"

const (
	g0 = 9.80665    // m/s^2
	rd = 287.05287  // J/(kg*K)
	re = 6356766.0  // m, gravity-equivalent Earth radius

	stdQNHPa = 101325.0
)

// layers holds the seven ISA-1976 layer bases up to 86 km.
var (
	baseHeights     = [7]float64{0.0, 11000.0, 20000.0, 32000.0, 47000.0, 51000.0, 71000.0}
	baseTemps       = [7]float64{288.150, 216.650, 216.650, 228.650, 270.650, 270.650, 214.650}
	basePressuresSL = [7]float64{101325.00, 22632.06, 5474.889, 868.0187, 110.9063, 66.93887, 3.956420}
	lapseRates      = [7]float64{-0.0065, 0.0, +0.0010, +0.0028, 0.0, -0.0028, -0.0020}
)

// geometricFromGeopotential converts geopotential height H to geometric
// altitude h via h = Re*H / (Re - H).
func geometricFromGeopotential(h float64) float64 {
	return (re * h) / (re - h)
}

// geopotentialFromPressure returns the geopotential height (meters, may be
// negative) corresponding to pressure p (Pa) at the given QNH (Pa).
func geopotentialFromPressure(pPa, qnhPa float64) float64 {
	k := qnhPa / stdQNHPa
	var pb [7]float64
	for i, p := range basePressuresSL {
		pb[i] = p * k
	}

	if pPa > pb[0] {
		// Below the sea-level base: extend the troposphere gradient to
		// negative geopotential height.
		return troposphereGradient(pPa, pb[0], baseTemps[0], baseHeights[0], lapseRates[0])
	}

	i := 0
	for i+1 < len(pb) && pPa <= pb[i+1] {
		i++
	}

	l, t0, p0, h0 := lapseRates[i], baseTemps[i], pb[i], baseHeights[i]
	if l == 0.0 {
		// Isothermal layer: p = p0 * exp(-g0*(H-h0)/(Rd*T0))
		return h0 - (rd*t0/g0)*math.Log(pPa/p0)
	}
	return troposphereGradient(pPa, p0, t0, h0, l)
}

// troposphereGradient applies p = p0*(T/T0)^(-g0/(Rd*L)), T = T0 + L*(H-h0),
// solved for H.
func troposphereGradient(pPa, p0, t0, h0, l float64) float64 {
	a := (rd * l) / g0
	t := math.Pow(pPa/p0, -a)
	return h0 + (t0/l)*(t-1.0)
}

// AltitudeMSL returns altitude above mean sea level (meters) given static
// pressure and QNH, both in hPa. If QNH is unknown, pass 1013.25 for pure
// ISA altitude. Matches
// original_source/lib/LibAvionics/ISA76.h:altitude_msl_from_pressure.
func AltitudeMSL(pressureHPa, qnhHPa float64) float64 {
	p := math.Max(0.1, pressureHPa) * 100.0
	qnh := math.Max(0.1, qnhHPa) * 100.0
	h := geopotentialFromPressure(p, qnh)
	return geometricFromGeopotential(h)
}
