package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbuckham/reflowctl/internal/calibration"
	"github.com/kbuckham/reflowctl/internal/loop"
	"github.com/kbuckham/reflowctl/internal/numeric"
	"github.com/kbuckham/reflowctl/internal/sample"
	"github.com/kbuckham/reflowctl/internal/thermal"
)

var (
	calAmbient      float64
	calOutputPath   string
	calPowerStep    float64
	calStepDuration float64
	calMaxTemp      float64
	calTuneBias     bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run the automated step-response calibration experiment",
	RunE:  runCalibrate,
}

func init() {
	calibrateCmd.Flags().Float64Var(&calAmbient, "ambient", 25, "Ambient temperature, C")
	calibrateCmd.Flags().StringVar(&calOutputPath, "output", "calibration.txt", "Calibration file output path")
	calibrateCmd.Flags().Float64Var(&calPowerStep, "power-step", 10, "Step-response power increment, W")
	calibrateCmd.Flags().Float64Var(&calStepDuration, "step-duration", 450, "Step hold duration, seconds")
	calibrateCmd.Flags().Float64Var(&calMaxTemp, "maximum-temperature", 220, "Maximum element temperature observed during steps, C")
	calibrateCmd.Flags().BoolVar(&calTuneBias, "bias-by-expected-temperature", true, "Weight predictor tuning error by (T_expected - ambient)")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ps, err := buildSupply()
	if err != nil {
		return err
	}

	rtd := thermal.NewRTDEstimator()
	predictor := thermal.NewPredictor(defaultBands())

	pipeline := calibration.New(calibration.Config{
		PowerStep:          calPowerStep,
		StepDuration:       calStepDuration,
		MaximumTemperature: calMaxTemp,
	})

	cfg := loop.Config{Period: loop.DefaultPeriod, Ambient: calAmbient}
	el := loop.New(cfg, ps, rtd, predictor, pipeline, nil)
	el.Subscribe(pipeline.Record)
	el.Subscribe(func(s sample.Sample) {
		fmt.Printf("t=%.1fs stage=%s T=%.2f setpower=%.1fW\n", s.Now, s.Stage, s.PredictedTemperature, s.SetPower)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pipeline.Done() {
					cancel()
					return
				}
			}
		}
	}()

	if err := el.Run(ctx); err != nil {
		return fmt.Errorf("cli: calibration run: %w", err)
	}

	return writeCalibrationResult(pipeline)
}

func writeCalibrationResult(pipeline *calibration.Pipeline) error {
	samples := pipeline.Samples()
	parts := calibration.PartitionByStage(samples, 4)

	var params calibration.Parameters
	for label, segment := range parts {
		r, t, p, ok := calibration.EquilibriumBlend(segment, 20)
		if !ok {
			continue
		}
		params.Temperatures = append(params.Temperatures, calibration.RTDPoint{Resistance: r, Temperature: t})
		rtheta := calibration.ThermalResistance(t, calAmbient, p)
		params.ThermalResistance = append(params.ThermalResistance, calibration.BandValue{Temperature: t, Value: rtheta})

		if heatCapacity, _, _, converged, err := calibration.FitHeatCapacity(segment, calAmbient, p, rtheta, 0.05, 50); err == nil && converged {
			params.HeatCapacity = append(params.HeatCapacity, calibration.BandValue{Temperature: t, Value: heatCapacity})
		} else {
			fmt.Fprintf(os.Stderr, "warning: heat capacity fit did not converge for segment %q: %v\n", label, err)
		}
	}

	var stepSamples []sample.Sample
	for label, segment := range parts {
		if strings.HasPrefix(label, "rising-") || strings.HasPrefix(label, "falling-") {
			stepSamples = append(stepSamples, segment...)
		}
	}

	searchOpts := numeric.SearchOptions{Steps: 6, Depth: 4, Threshold: 0.1, Bias: calTuneBias}
	bandBounds := calibration.BandBounds{
		InnerTau:  [2]float64{1, 60},
		OuterTau:  [2]float64{1, 180},
		PowerTau:  [2]float64{1, 180},
		PowerGain: [2]float64{0.1, 20},
	}
	bands := calibration.TuneBands(stepSamples, calAmbient, calibration.DefaultBandTemperatures(), bandBounds, searchOpts)
	params.Bands = calibration.BandRowsFromTemperatureBands(bands)

	if err := calibration.WriteFile(calOutputPath, params); err != nil {
		return fmt.Errorf("cli: writing calibration file: %w", err)
	}
	fmt.Printf("calibration written to %s (run %s, %d predictor bands tuned)\n", calOutputPath, pipeline.RunID(), len(bands))
	return nil
}
