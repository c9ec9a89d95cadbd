package calibration

import (
	"math"
	"testing"

	"github.com/kbuckham/reflowctl/internal/numeric"
	"github.com/kbuckham/reflowctl/internal/sample"
	"github.com/kbuckham/reflowctl/internal/thermal"
)

// syntheticBandSamples drives a predictor configured with known parameters
// to produce a segment whose element/surface/power fields TuneBand should
// be able to recover the generating parameters from, the same way
// syntheticStepLeg in postprocess_test.go drives FitHeatCapacity.
func syntheticBandSamples(ambient, power, innerTau, outerTau, powerTau, powerGain, period float64, n int) []sample.Sample {
	powerGen := thermal.NewPredictor([]thermal.TemperatureBand{
		thermal.LegacyBand(1, 1, &powerTau, &powerGain),
	})
	powerGen.Init(ambient)

	surfaceGen := thermal.NewPredictor([]thermal.TemperatureBand{
		thermal.LegacyBand(innerTau, outerTau, nil, nil),
	})
	surfaceGen.Init(ambient)

	out := make([]sample.Sample, n)
	for i := 0; i < n; i++ {
		element, err := powerGen.PredictElement(power, ambient, period)
		if err != nil {
			panic(err)
		}
		surface := surfaceGen.PredictSurface(element, ambient, period)

		elementCopy, surfaceCopy := element, surface
		out[i] = sample.Sample{
			Now:               float64(i) * period,
			Period:            period,
			Temperature:       &elementCopy,
			DeviceTemperature: &surfaceCopy,
			SetPower:          power,
		}
	}
	return out
}

func TestTuneBandRecoversKnownParameters(t *testing.T) {
	const (
		ambient   = 25.0
		power     = 10.0
		innerTau  = 8.0
		outerTau  = 20.0
		powerTau  = 15.0
		powerGain = 4.0
		period    = 1.0
	)
	segment := syntheticBandSamples(ambient, power, innerTau, outerTau, powerTau, powerGain, period, 400)

	bounds := BandBounds{
		InnerTau:  [2]float64{1, 40},
		OuterTau:  [2]float64{1, 60},
		PowerTau:  [2]float64{1, 60},
		PowerGain: [2]float64{0.1, 10},
	}
	opts := numeric.SearchOptions{Steps: 8, Depth: 8, Threshold: 0.01}

	band := TuneBand(segment, ambient, 100, bounds, opts)

	if band.Temperature != 100 {
		t.Errorf("band.Temperature = %v, want 100 (the representative temperature passed in)", band.Temperature)
	}
	if relErr := math.Abs(band.InnerTau-innerTau) / innerTau; relErr > 0.15 {
		t.Errorf("InnerTau = %v, want within 15%% of %v", band.InnerTau, innerTau)
	}
	if relErr := math.Abs(band.OuterTau-outerTau) / outerTau; relErr > 0.15 {
		t.Errorf("OuterTau = %v, want within 15%% of %v", band.OuterTau, outerTau)
	}
	if band.PowerTau == nil || band.PowerGain == nil {
		t.Fatal("TuneBand left PowerTau/PowerGain nil")
	}
	if relErr := math.Abs(*band.PowerTau-powerTau) / powerTau; relErr > 0.15 {
		t.Errorf("PowerTau = %v, want within 15%% of %v", *band.PowerTau, powerTau)
	}
	if relErr := math.Abs(*band.PowerGain-powerGain) / powerGain; relErr > 0.15 {
		t.Errorf("PowerGain = %v, want within 15%% of %v", *band.PowerGain, powerGain)
	}
}

func TestTuneBandEmptySegmentReturnsBoundsFloor(t *testing.T) {
	bounds := BandBounds{
		InnerTau:  [2]float64{2, 40},
		OuterTau:  [2]float64{3, 60},
		PowerTau:  [2]float64{4, 60},
		PowerGain: [2]float64{0.5, 10},
	}
	band := TuneBand(nil, 25, 25, bounds, numeric.SearchOptions{Steps: 4, Depth: 2})
	if band.InnerTau != 2 || band.OuterTau != 3 {
		t.Errorf("empty-segment band = %+v, want floor of bounds", band)
	}
	if band.PowerTau == nil || *band.PowerTau != 4 || band.PowerGain == nil || *band.PowerGain != 0.5 {
		t.Errorf("empty-segment band power params = %+v, want floor of bounds", band)
	}
}

func TestDefaultBandTemperatures(t *testing.T) {
	got := DefaultBandTemperatures()
	want := []float64{25, 100, 150, 200, 250}
	if len(got) != len(want) {
		t.Fatalf("DefaultBandTemperatures() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DefaultBandTemperatures()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPartitionByTemperatureBandAssignsNearest(t *testing.T) {
	mk := func(temp float64) sample.Sample {
		v := temp
		return sample.Sample{Temperature: &v}
	}
	samples := []sample.Sample{mk(26), mk(24), mk(120), mk(175), mk(260)}
	bands := DefaultBandTemperatures()

	parts := PartitionByTemperatureBand(samples, bands)

	if got := len(parts[25]); got != 2 {
		t.Errorf("len(parts[25]) = %d, want 2 (26 and 24 both nearest to the 25C flat band)", got)
	}
	if got := len(parts[100]); got != 1 {
		t.Errorf("len(parts[100]) = %d, want 1 (120 nearest to 100)", got)
	}
	if got := len(parts[150]) + len(parts[200]); got != 1 {
		t.Errorf("175 should fall into exactly one of the 150/200 bands, got 150=%d 200=%d", len(parts[150]), len(parts[200]))
	}
	if got := len(parts[250]); got != 1 {
		t.Errorf("len(parts[250]) = %d, want 1 (260 nearest to 250)", got)
	}
}

func TestTuneBandsSkipsEmptyBandsAndSortsByTemperature(t *testing.T) {
	low := syntheticBandSamples(25, 2, 8, 20, 15, 4, 1.0, 200)
	high := syntheticBandSamples(25, 30, 8, 20, 15, 4, 1.0, 200)

	// Tag each segment's Temperature far enough apart that
	// PartitionByTemperatureBand lands them in the 25C and 250C bands
	// respectively, leaving 100/150/200 empty.
	var samples []sample.Sample
	samples = append(samples, low...)
	for i := range high {
		bumped := *high[i].Temperature + 220
		high[i].Temperature = &bumped
	}
	samples = append(samples, high...)

	bounds := BandBounds{
		InnerTau:  [2]float64{1, 40},
		OuterTau:  [2]float64{1, 60},
		PowerTau:  [2]float64{1, 60},
		PowerGain: [2]float64{0.1, 10},
	}
	opts := numeric.SearchOptions{Steps: 6, Depth: 4, Threshold: 0.1}

	bands := TuneBands(samples, 25, DefaultBandTemperatures(), bounds, opts)

	if len(bands) != 2 {
		t.Fatalf("len(bands) = %d, want 2 (only the 25C and 250C bands have samples)", len(bands))
	}
	if bands[0].Temperature >= bands[1].Temperature {
		t.Errorf("bands not sorted ascending by temperature: %v then %v", bands[0].Temperature, bands[1].Temperature)
	}
}

func TestBandRowsFromTemperatureBandsRoundTrips(t *testing.T) {
	tau, gain := 12.0, 3.5
	bands := []thermal.TemperatureBand{
		{Temperature: 100, InnerTau: 5, OuterTau: 10, PowerTau: &tau, PowerGain: &gain},
		{Temperature: 25, InnerTau: 6, OuterTau: 11},
	}
	rows := BandRowsFromTemperatureBands(bands)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].PowerTau == nil || *rows[0].PowerTau != tau {
		t.Errorf("rows[0].PowerTau = %v, want %v", rows[0].PowerTau, tau)
	}
	if rows[1].PowerTau != nil {
		t.Errorf("rows[1].PowerTau = %v, want nil (source band had no power params)", rows[1].PowerTau)
	}
}
