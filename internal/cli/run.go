package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbuckham/reflowctl/internal/controller"
	"github.com/kbuckham/reflowctl/internal/loop"
	"github.com/kbuckham/reflowctl/internal/profile"
	"github.com/kbuckham/reflowctl/internal/sample"
	"github.com/kbuckham/reflowctl/internal/supply"
	"github.com/kbuckham/reflowctl/internal/thermal"
)

var (
	runAmbient    float64
	runTargetTemp float64
	runDuration   float64
	runMode       string
	runCutoff     float64
	runPowerLimit float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ramp linearly from ambient to a target temperature",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Float64Var(&runAmbient, "ambient", 25, "Ambient temperature, C")
	runCmd.Flags().Float64Var(&runTargetTemp, "target", 150, "Target surface temperature, C (reached by a linear ramp from ambient at --duration)")
	runCmd.Flags().Float64Var(&runDuration, "duration", 600, "Run duration, seconds")
	runCmd.Flags().StringVar(&runMode, "controller", "hybridpi", "Controller: hybridpi, bangbang")
	runCmd.Flags().Float64Var(&runCutoff, "cutoff", 260, "Element temperature safety cutoff, C (0 disables)")
	runCmd.Flags().Float64Var(&runPowerLimit, "limit", 0, "Maximum commanded power, W (0 = supply limit)")
}

func buildSupply() (supply.PowerSupply, error) {
	if cfgPort == "" {
		return nil, fmt.Errorf("cli: --port is required")
	}
	limits := supply.Limits{VoltageMin: 0, VoltageMax: 30, CurrentMin: 0, CurrentMax: 10, PowerMin: 0, PowerMax: 150}

	switch cfgTransport {
	case "modbus":
		m := supply.NewModbusSupply(cfgPort, cfgBaud, 1, supply.DefaultModbusRegisterMap(), limits, 0.01)
		if err := m.Open(); err != nil {
			return nil, fmt.Errorf("cli: opening Modbus supply: %w", err)
		}
		return m, nil
	case "scpi", "":
		identify := regexp.MustCompile(`^.+$`)
		s := supply.NewSCPISupply(cfgPort, cfgBaud, supply.DefaultCommandSet(), identify, limits, 0.01)
		if err := s.Open(); err != nil {
			return nil, fmt.Errorf("cli: opening SCPI supply: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("cli: unknown transport %q", cfgTransport)
	}
}

func defaultBands() []thermal.TemperatureBand {
	return []thermal.TemperatureBand{thermal.LegacyBand(8, 20, nil, nil)}
}

func runRun(cmd *cobra.Command, args []string) error {
	ps, err := buildSupply()
	if err != nil {
		return err
	}

	rtd := thermal.NewRTDEstimator()
	predictor := thermal.NewPredictor(defaultBands())
	target := profile.New(
		profile.Point{Time: 0, Temperature: runAmbient},
		profile.Point{Time: runDuration, Temperature: runTargetTemp},
	)

	pMax := 150.0
	if runPowerLimit > 0 {
		pMax = runPowerLimit
	}

	var ctrl controller.Controller
	switch runMode {
	case "bangbang":
		ctrl = controller.NewBangBang(controller.BangBangConfig{
			Hysteresis:    controller.Hysteresis{Low: 1, High: 0},
			FixedMaxPower: 120,
			Limits:        controller.Limits{Min: 0, Max: pMax},
			Predictor:     predictor,
			Target:        target,
		})
	default:
		ctrl, err = controller.NewHybridPI(controller.HybridPIConfig{
			Kp: 4, Ki: 0.05, Kaw: 1,
			AntiWindupClampPercent: 40,
			Limits:                 controller.Limits{Min: 0, Max: pMax},
			Predictor:              predictor,
			Target:                 target,
		})
		if err != nil {
			return fmt.Errorf("cli: constructing controller: %w", err)
		}
	}

	cfg := loop.Config{
		Period:                   loop.DefaultPeriod,
		Ambient:                  runAmbient,
		ElementCutoffTemperature: runCutoff,
	}
	el := loop.New(cfg, ps, rtd, predictor, ctrl, nil)
	el.Subscribe(func(s sample.Sample) {
		logSample(s)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	return el.Run(ctx)
}

func logSample(s sample.Sample) {
	temp, _ := s.TemperatureOrZero()
	fmt.Printf("t=%.1fs stage=%s T=%.2f predicted=%.2f setpower=%.1fW\n", s.Now, s.Stage, temp, s.PredictedTemperature, s.SetPower)
}
