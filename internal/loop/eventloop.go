// Package loop implements the real-time event loop (spec §4.5): a single
// cooperative, periodic poll -> estimate -> predict -> control -> apply
// cycle that owns the PowerSupply, RTDEstimator, Predictor and Controller
// exclusively, and guarantees the supply is commanded off on every exit
// path.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kbuckham/reflowctl/internal/controller"
	"github.com/kbuckham/reflowctl/internal/numeric"
	"github.com/kbuckham/reflowctl/internal/sample"
	"github.com/kbuckham/reflowctl/internal/supply"
	"github.com/kbuckham/reflowctl/internal/thermal"
	"github.com/kbuckham/reflowctl/internal/thermometer"
)

// DefaultPeriod is the default sample period (spec §4.5).
const DefaultPeriod = 1500 * time.Millisecond

// DefaultResponseTimeout bounds every blocking PowerSupply call (spec §5).
const DefaultResponseTimeout = 1 * time.Second

// DefaultHistoryCapacity is how many past samples the loop retains.
const DefaultHistoryCapacity = 64

// Config configures an EventLoop.
type Config struct {
	Period          time.Duration
	Ambient         float64
	ResponseTimeout time.Duration
	HistoryCapacity int

	// ElementCutoffTemperature is a hard safety ceiling on measured
	// element temperature (spec §4.3.3); 0 disables the check.
	ElementCutoffTemperature float64
	// ElementPowerLimit piecewise-bounds commanded power by measured
	// element temperature (spec §4.3.3); nil disables the check.
	ElementPowerLimit *numeric.PiecewiseLinear
}

// StageReporter is an optional capability a Controller may implement to
// supply its own stage label each tick (e.g. the calibration pipeline's
// steps/cooldown/reflow state machine), instead of relying on an external
// SetStage call that would otherwise lag the controller's own state by one
// tick.
type StageReporter interface {
	CurrentStage() string
}

// SampleCallback observes a completed tick (spec §4.5 step f); it must not
// block the loop (spec §5 "subscribers must not block the loop").
type SampleCallback func(sample.Sample)

// EventLoop is the single owner of the real-time control loop's
// collaborators (spec §9: "make the EventLoop the single owner; pass
// dependencies explicitly; no hidden singletons").
type EventLoop struct {
	cfg Config

	supply      supply.PowerSupply
	rtd         *thermal.RTDEstimator
	predictor   *thermal.Predictor
	ctrl        controller.Controller
	thermometer thermometer.ReferenceThermometer // nil-able

	history *sample.History

	mu          sync.Mutex
	subscribers []SampleCallback
	stage       string

	startedAt time.Time
	lastV     float64
	lastI     float64
}

// New constructs an EventLoop. therm may be nil (spec §6 "optional").
func New(cfg Config, ps supply.PowerSupply, rtd *thermal.RTDEstimator, predictor *thermal.Predictor, ctrl controller.Controller, therm thermometer.ReferenceThermometer) *EventLoop {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	return &EventLoop{
		cfg:         cfg,
		supply:      ps,
		rtd:         rtd,
		predictor:   predictor,
		ctrl:        ctrl,
		thermometer: therm,
		history:     sample.NewHistory(cfg.HistoryCapacity),
	}
}

// Subscribe registers a callback fired once per completed tick.
func (l *EventLoop) Subscribe(cb SampleCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, cb)
}

// SetStage updates the stage label attached to subsequent samples (e.g.
// during calibration: "steps", "cooldown", "reflow").
func (l *EventLoop) SetStage(stage string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stage = stage
}

// History exposes the retained ring buffer of past samples.
func (l *EventLoop) History() *sample.History { return l.history }

// Run drives the loop until ctx is cancelled (spec §4.5 "a signal
// triggers a graceful shutdown") or a fatal condition is encountered. It
// guarantees the supply is commanded off on every exit path (spec §8
// property 6).
func (l *EventLoop) Run(ctx context.Context) error {
	defer l.shutdown()

	if l.thermometer != nil {
		if err := l.thermometer.Start(ctx); err != nil {
			return fmt.Errorf("loop: failed to start reference thermometer: %w", err)
		}
	}

	onCtx, cancel := context.WithTimeout(ctx, l.cfg.ResponseTimeout)
	defer cancel()
	if err := l.supply.On(onCtx, true); err != nil {
		return fmt.Errorf("loop: failed to enable supply output: %w", err)
	}

	l.predictor.Init(l.cfg.Ambient)

	l.startedAt = time.Now()
	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case tickTime := <-ticker.C:
			tickStart := time.Now()
			if err := l.tick(ctx, tickTime); err != nil {
				return err
			}
			if overrun := time.Since(tickStart); overrun > l.cfg.Period {
				slog.Warn("loop: tick overran its period, skipping catch-up", "overrun", overrun, "period", l.cfg.Period)
			}
		}
	}
}

// shutdown guarantees the supply is commanded off and the reference
// thermometer, if any, is stopped (spec §4.5 Shutdown).
func (l *EventLoop) shutdown() {
	offCtx, cancel := context.WithTimeout(context.Background(), l.cfg.ResponseTimeout)
	defer cancel()
	if err := l.supply.On(offCtx, false); err != nil {
		slog.Error("loop: failed to command supply off during shutdown", "error", err)
	}
	if l.thermometer != nil {
		if err := l.thermometer.Stop(); err != nil {
			slog.Error("loop: failed to stop reference thermometer", "error", err)
		}
	}
}

// tick runs one poll -> estimate -> predict -> control -> apply cycle
// (spec §4.5); the step ordering within it is fixed.
func (l *EventLoop) tick(ctx context.Context, tickTime time.Time) error {
	now := tickTime.Sub(l.startedAt).Seconds()
	period := l.cfg.Period.Seconds()
	status := sample.NewStatus(now, period, l.cfg.Ambient)

	pollCtx, cancel := context.WithTimeout(ctx, l.cfg.ResponseTimeout)
	v, i, err := l.supply.Poll(pollCtx)
	cancel()
	if err != nil {
		slog.Warn("loop: poll failed, retaining last known value", "error", err)
		v, i = l.lastV, l.lastI
	} else {
		l.lastV, l.lastI = v, i
	}
	status.SetPoll(v, i)

	minI := l.supply.MinimumMeasurableCurrent()
	haveTemp := false
	var elementTemp float64
	if i >= minI && i > 0 {
		r := v / i
		status.SetResistance(r)

		temp, rtdErr := l.rtd.TemperatureOf(r, l.cfg.Ambient, i, minI, period)
		switch {
		case rtdErr == nil:
			elementTemp = temp
			haveTemp = true
			status.SetTemperature(temp)
		case errors.Is(rtdErr, thermal.ErrRunaway):
			l.emit(status.Build())
			return fmt.Errorf("%w: %v", ErrRunaway, rtdErr)
		case errors.Is(rtdErr, thermal.ErrTemperatureUnavailable):
			// Tolerated: absent for this tick (spec §3 invariant).
		default:
			slog.Warn("loop: RTD estimate failed", "error", rtdErr)
		}
	}

	if haveTemp && l.cfg.ElementCutoffTemperature > 0 && elementTemp >= l.cfg.ElementCutoffTemperature {
		l.emit(status.Build())
		return fmt.Errorf("%w: element temperature %.2f reached cutoff %.2f", ErrRunaway, elementTemp, l.cfg.ElementCutoffTemperature)
	}

	if l.thermometer != nil {
		if hot, _, ok := l.thermometer.Latest(); ok {
			status.SetDeviceTemperature(hot)
		}
	}

	l.mu.Lock()
	stage := l.stage
	l.mu.Unlock()
	status.SetStage(stage)

	setPower := 0.0
	if haveTemp {
		power, ctrlErr := l.ctrl.Compute(now, period, elementTemp, l.cfg.Ambient)
		if ctrlErr != nil {
			return fmt.Errorf("loop: controller computation failed: %w", ctrlErr)
		}
		setPower = power
		status.SetPredictedTemperature(l.ctrl.LastPredictedSurface())

		if haveTemp && l.cfg.ElementPowerLimit != nil {
			if limit, ok := l.cfg.ElementPowerLimit.At(elementTemp); ok && setPower > limit {
				setPower = limit
			}
		}
	}

	// A controller that reports its own stage (e.g. the calibration
	// pipeline's steps/cooldown/reflow machine) always wins over the
	// externally-set label, since Compute may have just transitioned it
	// and an external SetStage call would otherwise lag by one tick.
	if reporter, ok := l.ctrl.(StageReporter); ok {
		status.SetStage(reporter.CurrentStage())
	}

	status.SetPower(setPower)

	applyCtx, applyCancel := context.WithTimeout(ctx, l.cfg.ResponseTimeout)
	applyErr := l.supply.SetPower(applyCtx, setPower)
	applyCancel()
	if applyErr != nil {
		slog.Warn("loop: failed to apply power setpoint", "error", applyErr)
	}

	l.emit(status.Build())
	return nil
}

func (l *EventLoop) emit(s sample.Sample) {
	l.history.Push(s)

	l.mu.Lock()
	subs := make([]SampleCallback, len(l.subscribers))
	copy(subs, l.subscribers)
	l.mu.Unlock()

	for _, cb := range subs {
		cb(s)
	}
}
