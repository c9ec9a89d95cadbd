package calibration

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kbuckham/reflowctl/internal/controller"
	"github.com/kbuckham/reflowctl/internal/sample"
)

// Config configures a CalibrationPipeline (spec §4.6).
type Config struct {
	// PowerStep is the step-response power delta in watts (default 10 W).
	PowerStep float64
	// StepDuration is how long each power level is held, in seconds
	// (default 450 s).
	StepDuration float64
	// MaximumTemperature ends the rising legs of S0 (default 220 C).
	MaximumTemperature float64
	// CooldownTolerance is how close to ambient S1 waits for (default 2 C).
	CooldownTolerance float64
	// Cycles is the number of rising/falling leg pairs run during S0
	// before S1 (default 2; not pinned down by spec body text, left as a
	// configuration choice).
	Cycles int
	// DiscardSamples is how many leading samples of each S0 leg are
	// discarded before curve-fitting (default 4).
	DiscardSamples int

	// ReflowController drives S2, recording samples for delay-filter
	// fitting; typically a *controller.BangBang against a calibration
	// reflow profile.
	ReflowController controller.Controller
	// ReflowDuration bounds S2 in seconds.
	ReflowDuration float64

	Limits controller.Limits
}

// applyDefaults fills in the spec's named default values for zero fields.
func (c *Config) applyDefaults() {
	if c.PowerStep == 0 {
		c.PowerStep = 10
	}
	if c.StepDuration == 0 {
		c.StepDuration = 450
	}
	if c.MaximumTemperature == 0 {
		c.MaximumTemperature = 220
	}
	if c.CooldownTolerance == 0 {
		c.CooldownTolerance = 2
	}
	if c.Cycles == 0 {
		c.Cycles = 2
	}
	if c.DiscardSamples == 0 {
		c.DiscardSamples = 4
	}
}

// Pipeline drives the three-stage calibration experiment (spec §4.6). It
// implements controller.Controller so it can be handed directly to
// loop.New as the run's controller, and it implements loop.StageReporter
// so each sample's stage label (including the rising/falling sub-labels
// used for postprocessing) reflects the pipeline's own state without a
// one-tick lag. It also implements a Record method so it can subscribe to
// the EventLoop directly and accumulate the samples it needs to fit.
type Pipeline struct {
	cfg Config
	id  uuid.UUID

	stage       Stage
	legDirection int // +1 rising, -1 falling
	legPower    float64
	legCycle    int
	stageStart  float64
	haveStart   bool

	lastPredicted float64
	samples       []sample.Sample
	done          bool
}

// New constructs a Pipeline, stamping it with a fresh run ID used to
// correlate log lines (and reported by RunID); the calibration file and its
// backup filename do not carry it.
func New(cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:         cfg,
		id:          uuid.New(),
		stage:       StageSteps,
		legDirection: 1,
		legPower:    cfg.PowerStep,
	}
}

// RunID returns the UUID stamped on this calibration run.
func (p *Pipeline) RunID() uuid.UUID { return p.id }

// Done reports whether the calibration run has reached StageComplete.
func (p *Pipeline) Done() bool { return p.done }

// Samples returns a defensive copy of every sample recorded via Record.
func (p *Pipeline) Samples() []sample.Sample {
	out := make([]sample.Sample, len(p.samples))
	copy(out, p.samples)
	return out
}

// Record subscribes the pipeline to an EventLoop's samples (spec §4.6
// "recording samples for delay-filter fitting" and the S0/S1 partitioning
// that follows).
func (p *Pipeline) Record(s sample.Sample) {
	p.samples = append(p.samples, s)
}

// CurrentStage implements loop.StageReporter.
func (p *Pipeline) CurrentStage() string {
	if p.stage == StageSteps {
		direction := "rising"
		if p.legDirection < 0 {
			direction = "falling"
		}
		return fmt.Sprintf("%s-%d", direction, int(p.legPower))
	}
	return p.stage.String()
}

// LastPredictedSurface implements controller.Controller.
func (p *Pipeline) LastPredictedSurface() float64 { return p.lastPredicted }

// Compute implements controller.Controller, driving the S0/S1/S2 state
// machine (spec §4.6 "Stages (state machine)").
func (p *Pipeline) Compute(now, period, elementTemperature, ambient float64) (float64, error) {
	p.lastPredicted = elementTemperature

	if !p.haveStart {
		p.stageStart = now
		p.haveStart = true
	}

	switch p.stage {
	case StageSteps:
		return p.computeSteps(now, elementTemperature, ambient), nil
	case StageCooldown:
		return p.computeCooldown(elementTemperature, ambient), nil
	case StageReflow:
		return p.computeReflow(now, period, elementTemperature, ambient)
	default:
		return 0, nil
	}
}

// computeSteps drives S0: rising, falling, rising, falling ... by
// PowerStep every StepDuration seconds, flipping direction once
// MaximumTemperature is observed on a rising leg or the floor is reached
// on a falling leg (spec §4.6 "rising, falling, rising, falling ...").
func (p *Pipeline) computeSteps(now, elementTemperature, ambient float64) float64 {
	elapsed := now - p.stageStart

	if p.legDirection > 0 && elementTemperature >= p.cfg.MaximumTemperature {
		p.legDirection = -1
		p.stageStart = now
		elapsed = 0
	}

	if elapsed >= p.cfg.StepDuration {
		p.legPower += float64(p.legDirection) * p.cfg.PowerStep
		p.stageStart = now

		if p.legDirection < 0 && p.legPower <= 0 {
			p.legCycle++
			if p.legCycle >= p.cfg.Cycles {
				slog.Info("calibration: steps complete, entering cooldown", "run", p.id)
				p.stage = StageCooldown
				p.haveStart = false
				return 0
			}
			p.legDirection = 1
			p.legPower = p.cfg.PowerStep
		}
	}

	return p.legPower
}

func (p *Pipeline) computeCooldown(elementTemperature, ambient float64) float64 {
	if elementTemperature <= ambient+p.cfg.CooldownTolerance {
		slog.Info("calibration: cooldown complete, entering reflow", "run", p.id)
		p.stage = StageReflow
		p.haveStart = false
	}
	return p.cfg.Limits.Min
}

func (p *Pipeline) computeReflow(now, period, elementTemperature, ambient float64) (float64, error) {
	elapsed := now - p.stageStart
	if p.cfg.ReflowDuration > 0 && elapsed >= p.cfg.ReflowDuration {
		slog.Info("calibration: reflow complete", "run", p.id)
		p.stage = StageComplete
		p.done = true
		return 0, nil
	}
	if p.cfg.ReflowController == nil {
		p.stage = StageComplete
		p.done = true
		return 0, nil
	}
	power, err := p.cfg.ReflowController.Compute(now, period, elementTemperature, ambient)
	if err != nil {
		return 0, fmt.Errorf("calibration: reflow leg: %w", err)
	}
	return power, nil
}
