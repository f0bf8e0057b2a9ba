package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deltacal/pkg/calibrate"
	"deltacal/pkg/chart"
	"deltacal/pkg/gcodeio"
	"deltacal/pkg/session"
	"deltacal/pkg/telemetry"
)

func init() {
	rootCmd.AddCommand(calibrateCmd, probeCmd, repeatabilityCmd, depthMapCmd, serveCmd, settingsCmd)
}

var (
	flagTarget       float64
	flagSkipEndstops bool
	flagSkipRadius   bool
	flagKeepTrim     bool
	flagSessionPath  string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run the G32 auto-calibration compound (endstop-trim, then delta-radius)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		rig, err := newRigFromFlags(cmd, log)
		if err != nil {
			return err
		}

		etCfg := calibrate.DefaultEndstopTrimConfig(flagProbeRadius)
		etCfg.Target = flagTarget
		etCfg.Keep = flagKeepTrim
		drCfg := calibrate.DefaultDeltaRadiusConfig(flagProbeRadius)
		drCfg.Target = flagTarget

		res, err := calibrate.AutoCalibrate(repeatStepProber{rig}, rig.Geo, etCfg, drCfg,
			calibrate.AutoCalibrateOptions{SkipEndstops: flagSkipEndstops, SkipRadius: flagSkipRadius}, log)

		if res.Endstop != nil {
			fmt.Printf("[ES] deviation=%.4f iterations=%d\n", res.Endstop.Deviation, res.Endstop.Iterations)
		}
		if res.Radius != nil {
			fmt.Printf("[DR] delta_radius=%.4f iterations=%d\n", res.Radius.DeltaRadius, res.Radius.Iterations)
		}
		if err != nil {
			return err
		}

		if flagSessionPath != "" {
			sess, err := session.Start()
			if err != nil {
				return err
			}
			if res.Endstop != nil {
				sess.RecordEndstop(*res.Endstop)
			}
			if res.Radius != nil {
				sess.RecordRadius(*res.Radius)
			}
			return sess.Save(flagSessionPath)
		}
		return nil
	},
}

var (
	flagProbeReverse  bool
	flagProbeFeedrate float64
	flagProbeZ        float64
	flagProbeHasZ     bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run a single probe cycle (G30) at the current XY position",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		rig, err := newRigFromFlags(cmd, log)
		if err != nil {
			return err
		}

		params := map[byte]float64{'F': flagProbeFeedrate * 60}
		if flagProbeReverse {
			params['R'] = 1
		}
		if cmd.Flags().Changed("z") {
			params['Z'] = flagProbeZ
		}

		reply, err := rig.Dispatch.Handle(gcodeio.Command{Code: "G30", Params: params})
		for _, line := range reply.Lines {
			fmt.Println(line)
		}
		return err
	},
}

func init() {
	probeCmd.Flags().BoolVar(&flagProbeReverse, "reverse", false, "reverse probe direction")
	probeCmd.Flags().Float64Var(&flagProbeFeedrate, "feedrate", 5, "probe feedrate (mm/s)")
	probeCmd.Flags().Float64Var(&flagProbeZ, "z", 0, "override Z after a successful probe")

	calibrateCmd.Flags().Float64Var(&flagTarget, "target", 0.03, "convergence target (mm)")
	calibrateCmd.Flags().BoolVar(&flagSkipEndstops, "skip-endstops", false, "skip the endstop-trim sub-step (G32 R)")
	calibrateCmd.Flags().BoolVar(&flagSkipRadius, "skip-radius", false, "skip the delta-radius sub-step (G32 E)")
	calibrateCmd.Flags().BoolVar(&flagKeepTrim, "keep", false, "iterate endstop trim from its current value (G32 K)")
	calibrateCmd.Flags().StringVar(&flagSessionPath, "session", "", "save a session record to this YAML path")
}

var (
	flagSamples             int
	flagDisableEccentricity bool
	flagRepeatChart         string
)

var repeatabilityCmd = &cobra.Command{
	Use:   "repeatability",
	Short: "Run the G29 probe repeatability test",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		rig, err := newRigFromFlags(cmd, log)
		if err != nil {
			return err
		}

		params := map[byte]float64{'S': float64(flagSamples)}
		if flagDisableEccentricity {
			params['E'] = 1
		}
		reply, err := rig.Dispatch.Handle(gcodeio.Command{Code: "G29", Params: params})
		for _, line := range reply.Lines {
			fmt.Println(line)
		}
		if err != nil {
			return err
		}

		if flagRepeatChart != "" {
			cfg := calibrate.DefaultRepeatabilityConfig(flagStepsPerMM)
			cfg.Samples = flagSamples
			cfg.DisableEccentricity = flagDisableEccentricity
			res, err := calibrate.RunRepeatability(repeatStepProber{rig}, cfg, log)
			if err != nil {
				return err
			}
			f, err := os.Create(flagRepeatChart)
			if err != nil {
				return err
			}
			defer f.Close()
			return chart.RenderRepeatability(res, f)
		}
		return nil
	},
}

func init() {
	repeatabilityCmd.Flags().IntVar(&flagSamples, "samples", 10, "number of probe samples (<=30)")
	repeatabilityCmd.Flags().BoolVar(&flagDisableEccentricity, "no-eccentricity", false, "skip the eccentricity excursion before each sample")
	repeatabilityCmd.Flags().StringVar(&flagRepeatChart, "chart", "", "write a repeatability line chart (HTML) to this path")
}

// repeatStepProber adapts Rig to calibrate.StepProber for the chart path,
// which needs raw step counts in addition to the mm-based Prober surface.
type repeatStepProber struct{ rig *Rig }

func (r repeatStepProber) ProbeDistance(x, y float64) (float64, error) {
	return r.rig.Controller.ProbeDistance(x, y, 5, flagStepsPerMM)
}
func (r repeatStepProber) FastMove(x, y float64) error {
	return r.rig.Controller.FastMove(x, y)
}
func (r repeatStepProber) ProbeAtSteps(x, y float64) (int64, error) {
	return r.rig.Controller.ProbeAt(x, y, 5)
}

var flagDepthMapChart string

var depthMapCmd = &cobra.Command{
	Use:   "depthmap",
	Short: "Run the G31 comprehensive 12-point depth-map acquisition",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		rig, err := newRigFromFlags(cmd, log)
		if err != nil {
			return err
		}

		reply, err := rig.Dispatch.Handle(gcodeio.Command{Code: "G31", Params: map[byte]float64{'J': flagProbeRadius}})
		for _, line := range reply.Lines {
			fmt.Println(line)
		}
		if err != nil {
			return err
		}

		if flagSessionPath != "" || flagDepthMapChart != "" {
			m, err := calibrate.AcquireDepthMap(repeatStepProber{rig}, flagProbeRadius)
			if err != nil {
				return err
			}
			if flagSessionPath != "" {
				sess, err := session.Start()
				if err != nil {
					return err
				}
				sess.RecordDepthMap(m)
				if err := sess.Save(flagSessionPath); err != nil {
					return err
				}
			}
			if flagDepthMapChart != "" {
				f, err := os.Create(flagDepthMapChart)
				if err != nil {
					return err
				}
				defer f.Close()
				return chart.RenderDepthMap(m, f)
			}
		}
		return nil
	},
}

func init() {
	depthMapCmd.Flags().StringVar(&flagSessionPath, "session", "", "save a session record to this YAML path")
	depthMapCmd.Flags().StringVar(&flagDepthMapChart, "chart", "", "write a depth-map bar chart (HTML) to this path")
}

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a websocket telemetry feed of calibration status lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		bc := telemetry.New(log)
		http.Handle("/telemetry", bc)

		log.Infow("telemetry server listening", "addr", flagServeAddr)
		srv := &http.Server{Addr: flagServeAddr}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-sigCh:
			log.Info("shutting down telemetry server")
			return srv.Close()
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", ":8090", "listen address for the telemetry websocket server")
}

var flagSettingsSave bool

// settingsCmd mirrors M500 (--save writes zprobe.* back through
// pkg/config.AutosaveConfig) and M503 (default: print the resolved values,
// as M670 would report them) from spec §6.
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Print or save zprobe settings (M503 / M500)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadPrinterConfig(flagPrinterCfg, DefaultRigConfig())
		if err != nil {
			return err
		}

		if flagSettingsSave {
			if flagPrinterCfg == "" {
				return fmt.Errorf("settings --save requires --printer-config")
			}
			return saveAutosave(rc, flagPrinterCfg)
		}

		fmt.Printf("M670 S%.3f K%.3f R%.3f Z%.3f H%.3f\n",
			rc.SlowFeedrate, rc.FastFeedrate, rc.ReturnFeedrate, rc.MaxZ, rc.ProbeHeight)
		return nil
	},
}

func init() {
	settingsCmd.Flags().BoolVar(&flagSettingsSave, "save", false, "write current settings back to --printer-config (M500)")
}
