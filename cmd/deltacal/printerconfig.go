package main

import (
	"os"
	"strconv"

	"deltacal/pkg/config"
)

// defaultPrinterConfig is the INI fallback used when no --printer-config file
// is given: the spec §6 key surface with values matching DefaultRigConfig, so
// a bare invocation and an explicit config file agree on the same rig.
const defaultPrinterConfig = `
[zprobe]
debounce_count: 2
slow_feedrate: 5
fast_feedrate: 20
return_feedrate: 10
probe_height: 5
probe_radius: 100
decelerate_on_trigger: false
decelerate_runout: -1
reverse_z: false

[leveling-strategy.comprehensive-delta]
probe_radius: 100
probe_smoothing: 1

[delta]
gamma_max: 250
`

// loadPrinterConfig reads the zprobe.*, leveling-strategy.comprehensive-delta.*
// and gamma_max keys (spec §6 "Configuration keys consumed") through
// pkg/config's bounds-checked Section accessors, overlaying them onto base.
// An empty path falls back to defaultPrinterConfig rather than a file on disk.
func loadPrinterConfig(path string, base RigConfig) (RigConfig, error) {
	var cfg *config.Config
	var err error
	if path == "" {
		cfg, err = config.LoadString(defaultPrinterConfig)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return base, err
	}

	out := base

	if zp := cfg.GetSectionOptional("zprobe"); zp != nil {
		if out.DebounceCount, err = zp.GetInt("debounce_count", out.DebounceCount); err != nil {
			return base, err
		}
		if out.SlowFeedrate, err = zp.GetFloat("slow_feedrate", out.SlowFeedrate); err != nil {
			return base, err
		}
		if out.FastFeedrate, err = zp.GetFloat("fast_feedrate", out.FastFeedrate); err != nil {
			return base, err
		}
		if out.ReturnFeedrate, err = zp.GetFloat("return_feedrate", out.ReturnFeedrate); err != nil {
			return base, err
		}
		if out.ProbeHeight, err = zp.GetFloat("probe_height", out.ProbeHeight); err != nil {
			return base, err
		}
		if out.ProbeRadius, err = zp.GetFloat("probe_radius", out.ProbeRadius); err != nil {
			return base, err
		}
		if out.DecelerateOnTrigger, err = zp.GetBool("decelerate_on_trigger", out.DecelerateOnTrigger); err != nil {
			return base, err
		}
		if out.DecelerateRunout, err = zp.GetFloat("decelerate_runout", out.DecelerateRunout); err != nil {
			return base, err
		}
		if out.ReverseZ, err = zp.GetBool("reverse_z", out.ReverseZ); err != nil {
			return base, err
		}
	}

	if lev := cfg.GetSectionOptional("leveling-strategy.comprehensive-delta"); lev != nil {
		if out.ProbeRadius, err = lev.GetFloat("probe_radius", out.ProbeRadius); err != nil {
			return base, err
		}
		if out.ProbeSmoothing, err = lev.GetInt("probe_smoothing", out.ProbeSmoothing); err != nil {
			return base, err
		}
	}

	if delta := cfg.GetSectionOptional("delta"); delta != nil {
		if out.MaxZ, err = delta.GetFloat("gamma_max", out.MaxZ); err != nil {
			return base, err
		}
	}

	return out, nil
}

// saveAutosave writes the rig's current zprobe.* settings back through
// pkg/config's AutosaveConfig (spec §6 "M500 / M503 ... M670"), the vehicle
// the ambient stack names for config persistence.
func saveAutosave(rc RigConfig, path string) error {
	var base *config.Config
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		base, err = config.Load(path)
		if err != nil {
			return err
		}
	} else {
		base, err = config.LoadString(defaultPrinterConfig)
		if err != nil {
			return err
		}
	}

	ac := config.NewAutosaveConfig(base, path)
	setFloat := func(section, option string, v float64) error {
		return ac.SetOption(section, option, strconv.FormatFloat(v, 'g', -1, 64))
	}
	setBool := func(section, option string, v bool) error {
		return ac.SetOption(section, option, strconv.FormatBool(v))
	}

	if err := setFloat("zprobe", "slow_feedrate", rc.SlowFeedrate); err != nil {
		return err
	}
	if err := setFloat("zprobe", "fast_feedrate", rc.FastFeedrate); err != nil {
		return err
	}
	if err := setFloat("zprobe", "return_feedrate", rc.ReturnFeedrate); err != nil {
		return err
	}
	if err := setFloat("zprobe", "probe_height", rc.ProbeHeight); err != nil {
		return err
	}
	if err := setFloat("zprobe", "decelerate_runout", rc.DecelerateRunout); err != nil {
		return err
	}
	if err := setBool("zprobe", "decelerate_on_trigger", rc.DecelerateOnTrigger); err != nil {
		return err
	}
	if err := setBool("zprobe", "reverse_z", rc.ReverseZ); err != nil {
		return err
	}

	return ac.SaveChanges(path)
}
