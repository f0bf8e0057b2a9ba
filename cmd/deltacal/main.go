// Command deltacal drives the delta-geometry auto-calibration core (spec
// §1) from the command line: single probes, the endstop-trim/delta-radius
// G32 compound, the G29 repeatability test, and the G31 depth map, run
// against an in-process simulated rig (pkg/gcodeio, pkg/calibrate,
// pkg/geometry) since no bundled hardware transport exists — the raw
// stepper pulse generator and MCU link are explicitly out of this core's
// scope (spec §1).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deltacal/pkg/logx"
)

var (
	flagSurface     string
	flagStepsPerMM  float64
	flagProbeRadius float64
	flagArmLength   float64
	flagDeltaRadius float64
	flagLogFile     string
	flagLogLevel    string
	flagPrinterCfg  string
)

var rootCmd = &cobra.Command{
	Use:   "deltacal",
	Short: "Delta-geometry auto-calibration core CLI",
	Long: "deltacal drives the probing state machine, motion tick handler, and\n" +
		"calibration strategies described by the auto-calibration core against\n" +
		"an in-process simulated rig, for exercising and demonstrating G29/G30/\n" +
		"G31/G32 without physical hardware attached.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSurface, "surface", "flat", "simulated bed surface: flat, tilt, bowl")
	rootCmd.PersistentFlags().Float64Var(&flagStepsPerMM, "steps-per-mm", 100, "Z steps per millimeter")
	rootCmd.PersistentFlags().Float64Var(&flagProbeRadius, "probe-radius", 100, "probe test-point circle radius (mm)")
	rootCmd.PersistentFlags().Float64Var(&flagArmLength, "arm-length", 215, "delta arm length (mm)")
	rootCmd.PersistentFlags().Float64Var(&flagDeltaRadius, "delta-radius", 105, "delta radius (mm)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "log file path (default: console only)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagPrinterCfg, "printer-config", "", "INI config file providing zprobe.*/leveling-strategy.*/gamma_max (default: built-in values)")
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newLogger() (*zap.SugaredLogger, error) {
	cfg := logx.DefaultConfig()
	cfg.FilePath = flagLogFile
	cfg.Level = parseLevel(flagLogLevel)
	cfg.Console = true
	return logx.New(cfg)
}

// newRigFromFlags builds the rig config by layering, lowest to highest
// priority: DefaultRigConfig, the --printer-config INI file (spec §6's
// zprobe.*/leveling-strategy.*/gamma_max keys, read via pkg/config), then any
// persistent flag the caller explicitly set on cmd.
func newRigFromFlags(cmd *cobra.Command, log *zap.SugaredLogger) (*Rig, error) {
	cfg, err := loadPrinterConfig(flagPrinterCfg, DefaultRigConfig())
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("arm-length") {
		cfg.ArmLength = flagArmLength
	}
	if flags.Changed("delta-radius") {
		cfg.DeltaRadius = flagDeltaRadius
	}
	if flags.Changed("steps-per-mm") {
		cfg.StepsPerMM = flagStepsPerMM
	}
	if flags.Changed("probe-radius") {
		cfg.ProbeRadius = flagProbeRadius
	}
	cfg.Surface = surfaceByName(flagSurface)
	cfg.Log = log
	return NewRig(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
