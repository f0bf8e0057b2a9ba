// Package session persists calibration run history to disk: one record per
// endstop-trim / delta-radius / repeatability / depth-map run, tagged with a
// session UUID and timestamp, so a calibration session's before/after
// depth-map comparison (spec §3 "Lifecycle") survives process restarts.
//
// Grounded on cjeanneret-PanGo's internal/config.Load/Save yaml.v3 pattern;
// session tagging grounded on ANYCUBIC-3D-Klipper-go's go.uuid dependency.
package session

import (
	"fmt"
	"os"
	"time"

	uuid "github.com/satori/go.uuid"
	"gopkg.in/yaml.v3"

	"deltacal/pkg/calibrate"
)

// EndstopRecord captures one endstop-trim run's outcome for history.
type EndstopRecord struct {
	Converged  bool       `yaml:"converged"`
	Iterations int        `yaml:"iterations"`
	Deviation  float64    `yaml:"deviation_mm"`
	Trim       [3]float64 `yaml:"trim_mm"`
}

// RadiusRecord captures one delta-radius run's outcome for history.
type RadiusRecord struct {
	Converged   bool    `yaml:"converged"`
	Iterations  int     `yaml:"iterations"`
	Deviation   float64 `yaml:"deviation_mm"`
	DeltaRadius float64 `yaml:"delta_radius_mm"`
}

// RepeatabilityRecord captures one G29 run's outcome for history.
type RepeatabilityRecord struct {
	Mean           float64 `yaml:"mean_mm"`
	StdDev         float64 `yaml:"stddev_mm"`
	Range          float64 `yaml:"range_mm"`
	Classification string  `yaml:"classification"`
}

// DepthMapRecord captures one G31 depth-map acquisition for history.
type DepthMapRecord struct {
	OriginMM float64    `yaml:"origin_mm"`
	Points   [12]float64 `yaml:"points_mm"`
	BestMM   float64    `yaml:"best_mm"`
	WorstMM  float64    `yaml:"worst_mm"`
}

// Entry is a single timestamped calibration event within a session.
type Entry struct {
	Time         time.Time             `yaml:"time"`
	Kind         string                `yaml:"kind"` // "endstop", "radius", "repeatability", "depth_map"
	Endstop      *EndstopRecord        `yaml:"endstop,omitempty"`
	Radius       *RadiusRecord         `yaml:"radius,omitempty"`
	Repeatability *RepeatabilityRecord `yaml:"repeatability,omitempty"`
	DepthMap     *DepthMapRecord       `yaml:"depth_map,omitempty"`
}

// Session is an ordered log of calibration entries for one run of the
// machine, identified by a UUID minted at Start. Depth maps persist within
// a session (spec §3 "Lifecycle") but a fresh Start resets them.
type Session struct {
	ID      string  `yaml:"id"`
	Started time.Time `yaml:"started"`
	Entries []Entry `yaml:"entries"`
}

// Start mints a new session tagged with a random UUID.
func Start() (*Session, error) {
	id := uuid.NewV4()
	return &Session{ID: id.String(), Started: time.Now()}, nil
}

// RecordEndstop appends an endstop-trim result.
func (s *Session) RecordEndstop(r calibrate.EndstopTrimResult) {
	s.Entries = append(s.Entries, Entry{
		Time: time.Now(),
		Kind: "endstop",
		Endstop: &EndstopRecord{
			Converged:  r.Converged,
			Iterations: r.Iterations,
			Deviation:  r.Deviation,
			Trim:       r.Trim,
		},
	})
}

// RecordRadius appends a delta-radius result.
func (s *Session) RecordRadius(r calibrate.DeltaRadiusResult) {
	s.Entries = append(s.Entries, Entry{
		Time: time.Now(),
		Kind: "radius",
		Radius: &RadiusRecord{
			Converged:   r.Converged,
			Iterations:  r.Iterations,
			Deviation:   r.Deviation,
			DeltaRadius: r.DeltaRadius,
		},
	})
}

// RecordRepeatability appends a repeatability-test result.
func (s *Session) RecordRepeatability(r calibrate.RepeatabilityResult) {
	s.Entries = append(s.Entries, Entry{
		Time: time.Now(),
		Kind: "repeatability",
		Repeatability: &RepeatabilityRecord{
			Mean:           r.Mean,
			StdDev:         r.StdDev,
			Range:          r.Range,
			Classification: string(r.Classification),
		},
	})
}

// RecordDepthMap appends a depth-map acquisition result.
func (s *Session) RecordDepthMap(m calibrate.DepthMap) {
	best, worst := m.BestWorst()
	s.Entries = append(s.Entries, Entry{
		Time: time.Now(),
		Kind: "depth_map",
		DepthMap: &DepthMapRecord{
			OriginMM: m.OriginMM,
			Points:   m.Points,
			BestMM:   best,
			WorstMM:  worst,
		},
	})
}

// LastDepthMap returns the most recently recorded depth map, if any, for
// before/after comparison (spec §3 depth map "current"/"previous" buffers).
func (s *Session) LastDepthMap() (DepthMapRecord, bool) {
	for i := len(s.Entries) - 1; i >= 0; i-- {
		if e := s.Entries[i]; e.Kind == "depth_map" && e.DepthMap != nil {
			return *e.DepthMap, true
		}
	}
	return DepthMapRecord{}, false
}

// Save writes the session as YAML to path.
func (s *Session) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write %s: %w", path, err)
	}
	return nil
}

// Load reads a session previously written by Save.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}
