package calibration

import (
	"strings"
	"testing"

	"github.com/kbuckham/reflowctl/internal/controller"
	"github.com/kbuckham/reflowctl/internal/sample"
)

func TestPipelineStepsStageRisesAndFalls(t *testing.T) {
	p := New(Config{
		PowerStep:    10,
		StepDuration: 1,
		MaximumTemperature: 50,
		Cycles:       1,
		Limits:       controller.Limits{Min: 0, Max: 100},
	})

	// Below MaximumTemperature: stays on the rising leg, power held at
	// the step level until StepDuration elapses.
	power, err := p.Compute(0, 1, 25, 25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if power != 10 {
		t.Errorf("power = %v, want 10 on first rising tick", power)
	}
	if !strings.HasPrefix(p.CurrentStage(), "rising-") {
		t.Errorf("CurrentStage() = %q, want a rising- label", p.CurrentStage())
	}

	// Reaching MaximumTemperature flips to the falling leg.
	if _, err := p.Compute(1, 1, 55, 25); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !strings.HasPrefix(p.CurrentStage(), "falling-") {
		t.Errorf("CurrentStage() = %q, want a falling- label after hitting maximum", p.CurrentStage())
	}
}

func TestPipelineTransitionsThroughCooldownToReflow(t *testing.T) {
	p := New(Config{
		PowerStep:          10,
		StepDuration:       1,
		MaximumTemperature: 50,
		CooldownTolerance:  1,
		Cycles:             1,
		Limits:             controller.Limits{Min: 0, Max: 100},
	})
	p.stage = StageCooldown

	power, err := p.Compute(0, 1, 30, 25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if power != 0 {
		t.Errorf("cooldown power = %v, want Limits.Min (0)", power)
	}
	if p.stage != StageCooldown {
		t.Errorf("stage = %v, want still cooling down above tolerance", p.stage)
	}

	if _, err := p.Compute(1, 1, 25.5, 25); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if p.stage != StageReflow {
		t.Errorf("stage = %v, want StageReflow once within tolerance", p.stage)
	}
}

func TestPipelineCompletesReflowWithoutController(t *testing.T) {
	p := New(Config{Limits: controller.Limits{Min: 0, Max: 100}})
	p.stage = StageReflow

	power, err := p.Compute(0, 1, 150, 25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if power != 0 {
		t.Errorf("power = %v, want 0 once reflow immediately completes with no ReflowController", power)
	}
	if !p.Done() {
		t.Error("Done() = false, want true once StageComplete is reached")
	}
	if got := p.CurrentStage(); got != "complete" {
		t.Errorf("CurrentStage() = %q, want \"complete\"", got)
	}
}

func TestPipelineRecordAccumulatesSamples(t *testing.T) {
	p := New(Config{Limits: controller.Limits{Min: 0, Max: 100}})
	if len(p.Samples()) != 0 {
		t.Fatalf("Samples() before Record = %v, want empty", p.Samples())
	}

	p.Record(sample.Sample{Now: 1, Stage: "rising-10"})
	p.Record(sample.Sample{Now: 2, Stage: "rising-10"})

	if got := len(p.Samples()); got != 2 {
		t.Errorf("Samples() len = %d, want 2", got)
	}
}
