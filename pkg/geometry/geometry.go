// Package geometry implements the named-parameter Geometry Facade (spec
// §4.D): a dirty-tracking wrapper around the delta kinematics' geometric
// scalars. The dirty flag is reported (Dirty, RequireClean); nothing in this
// package runs a calibration pair when it is set.
package geometry

import (
	"deltacal/pkg/calerr"
	"deltacal/pkg/kinematics"
)

// Param re-exports the kinematics named-parameter identifiers so callers of
// this package don't need to import kinematics directly for parameter names.
type Param = kinematics.GeometryParam

const (
	ArmLength   = kinematics.ParamArmLength
	DeltaRadius = kinematics.ParamDeltaRadius
	RadiusA     = kinematics.ParamRadiusA
	RadiusB     = kinematics.ParamRadiusB
	RadiusC     = kinematics.ParamRadiusC
	AngleD      = kinematics.ParamAngleD
	AngleE      = kinematics.ParamAngleE
	AngleF      = kinematics.ParamAngleF
	ArmT        = kinematics.ParamArmT
	ArmU        = kinematics.ParamArmU
	ArmV        = kinematics.ParamArmV
)

// Facade is the calibration-facing view of the machine's delta geometry. Any
// write through Set/SetTrim/NormalizeTrim marks the geometry dirty; only a
// successful endstop-trim-then-delta-radius calibration pair (via MarkClean)
// clears it.
type Facade struct {
	dk    *kinematics.DeltaKinematics
	dirty bool
}

// New wraps a delta kinematics instance. Freshly homed geometry starts dirty;
// strategy entry points do not check the flag or run the calibration pair on
// their own.
func New(dk *kinematics.DeltaKinematics) *Facade {
	return &Facade{dk: dk, dirty: true}
}

// Get reads a named geometric scalar.
func (f *Facade) Get(p Param) (float64, error) {
	v, ok := f.dk.GetParam(p)
	if !ok {
		return 0, calerr.Config("unknown geometry parameter")
	}
	return v, nil
}

// Set writes a named geometric scalar and marks the geometry dirty.
func (f *Facade) Set(p Param, value float64) error {
	if !f.dk.SetParam(p, value) {
		return calerr.Config("unknown geometry parameter")
	}
	f.dirty = true
	return nil
}

// Trim returns the endstop trim for tower i (0=A,1=B,2=C).
func (f *Facade) Trim(tower int) float64 {
	return f.dk.GetTrim(tower)
}

// SetTrim writes tower i's endstop trim and marks the geometry dirty.
func (f *Facade) SetTrim(tower int, value float64) {
	f.dk.SetTrim(tower, value)
	f.dirty = true
}

// NormalizeTrim renormalizes trim so max(trim) == 0. This does not by itself
// clear dirty: callers finish a calibration pass by calling MarkClean once
// the accompanying delta-radius correction has also converged.
func (f *Facade) NormalizeTrim() {
	f.dk.NormalizeTrim()
	f.dirty = true
}

// Towers returns the current XY tower base positions.
func (f *Facade) Towers() [][2]float64 {
	return f.dk.Towers()
}

// Kinematics exposes the wrapped kinematics for callers that need forward/
// inverse kinematics directly (e.g. probing controllers).
func (f *Facade) Kinematics() *kinematics.DeltaKinematics {
	return f.dk
}

// Dirty reports whether geometry has changed since the last successful
// endstop-trim + delta-radius calibration pair.
func (f *Facade) Dirty() bool {
	return f.dirty
}

// MarkClean clears the dirty flag. Call this only after both the
// endstop-trim strategy and the delta-radius strategy have converged
// (spec §4.G's "require_clean_geometry" gate for G32).
func (f *Facade) MarkClean() {
	f.dirty = false
}

// RequireClean returns an error if geometry is dirty, for entry points that
// must refuse to run against stale geometry rather than silently forcing a
// recalibration (spec §4.D).
func (f *Facade) RequireClean() error {
	if f.dirty {
		return calerr.NewState("geometry is dirty: run endstop and delta-radius calibration first")
	}
	return nil
}
