package calibration

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kbuckham/reflowctl/internal/thermal"
)

// BandValue is one (temperature, value) row of the thermal-resistance or
// heat-capacity sections.
type BandValue struct {
	Temperature float64
	Value       float64
}

// Parameters is the full set of values persisted to a calibration file
// (spec §6 "Calibration files").
type Parameters struct {
	// Temperatures holds the RTD calibration points (resistance, temperature).
	Temperatures []RTDPoint
	// ThermalResistance holds one row per equilibrium temperature, keyed
	// by that temperature.
	ThermalResistance []BandValue
	// HeatCapacity holds one row per equilibrium temperature, keyed by
	// that temperature.
	HeatCapacity []BandValue
	// Bands holds one row per predictor temperature band, as produced by
	// TuneBands (spec §4.6 "Record one row per band into the new
	// parameter table").
	Bands []BandRow
}

// BandRow is one row of the bands: section. PowerTau/PowerGain are nil
// when the element-from-power model was not fit for that band.
type BandRow struct {
	Temperature         float64
	InnerTau, OuterTau  float64
	PowerTau, PowerGain *float64
}

// RTDPoint is one row of the temperatures: section.
type RTDPoint struct {
	Resistance  float64
	Temperature float64
}

const (
	sectionTemperatures      = "temperatures:"
	sectionThermalResistance = "thermal-resistance:"
	sectionHeatCapacity      = "heat-capacity:"
	sectionBands             = "bands:"
)

// BandRowsFromTemperatureBands converts TuneBands' output into the file
// format's row type.
func BandRowsFromTemperatureBands(bands []thermal.TemperatureBand) []BandRow {
	rows := make([]BandRow, len(bands))
	for i, b := range bands {
		rows[i] = BandRow{
			Temperature: b.Temperature,
			InnerTau:    b.InnerTau,
			OuterTau:    b.OuterTau,
			PowerTau:    b.PowerTau,
			PowerGain:   b.PowerGain,
		}
	}
	return rows
}

// WriteFile persists params to path with the output atomicity spec §4.6/§6
// require: write to a temporary path, flush, rename; any prior file at
// path is first backed up with an ISO-8601 timestamp suffix.
func WriteFile(path string, params Parameters) error {
	if _, err := os.Stat(path); err == nil {
		backup := path + "." + time.Now().UTC().Format("2006-01-02T15:04:05Z")
		if err := copyFile(path, backup); err != nil {
			return fmt.Errorf("calibration: backing up existing file: %w", err)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("calibration: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if err := writeParameters(tmp, params); err != nil {
		tmp.Close()
		return fmt.Errorf("calibration: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("calibration: flushing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("calibration: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("calibration: renaming temp file into place: %w", err)
	}
	return nil
}

func writeParameters(w *os.File, params Parameters) error {
	temps := append([]RTDPoint(nil), params.Temperatures...)
	sort.Slice(temps, func(i, j int) bool { return temps[i].Resistance < temps[j].Resistance })

	thermalR := append([]BandValue(nil), params.ThermalResistance...)
	sort.Slice(thermalR, func(i, j int) bool { return thermalR[i].Temperature < thermalR[j].Temperature })

	heatC := append([]BandValue(nil), params.HeatCapacity...)
	sort.Slice(heatC, func(i, j int) bool { return heatC[i].Temperature < heatC[j].Temperature })

	bands := append([]BandRow(nil), params.Bands...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].Temperature < bands[j].Temperature })

	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, sectionTemperatures)
	for _, p := range temps {
		fmt.Fprintf(bw, "  - resistance: %s, temperature: %s\n", formatFloat(p.Resistance), formatFloat(p.Temperature))
	}
	fmt.Fprintln(bw, sectionThermalResistance)
	for _, b := range thermalR {
		fmt.Fprintf(bw, "  - temperature: %s, thermal-resistance: %s\n", formatFloat(b.Temperature), formatFloat(b.Value))
	}
	fmt.Fprintln(bw, sectionHeatCapacity)
	for _, b := range heatC {
		fmt.Fprintf(bw, "  - temperature: %s, heat-capacity: %s\n", formatFloat(b.Temperature), formatFloat(b.Value))
	}
	fmt.Fprintln(bw, sectionBands)
	for _, b := range bands {
		line := fmt.Sprintf("  - temperature: %s, inner-tau: %s, outer-tau: %s",
			formatFloat(b.Temperature), formatFloat(b.InnerTau), formatFloat(b.OuterTau))
		if b.PowerTau != nil && b.PowerGain != nil {
			line += fmt.Sprintf(", power-tau: %s, power-gain: %s", formatFloat(*b.PowerTau), formatFloat(*b.PowerGain))
		}
		fmt.Fprintln(bw, line)
	}

	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// ReadFile parses a calibration file written by WriteFile.
func ReadFile(path string) (Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("calibration: opening file: %w", err)
	}
	defer f.Close()

	var params Parameters
	section := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case sectionTemperatures, sectionThermalResistance, sectionHeatCapacity, sectionBands:
			section = line
			continue
		}
		if !strings.HasPrefix(line, "-") {
			return Parameters{}, fmt.Errorf("calibration: malformed line %q", line)
		}
		kv, err := parseKeyValues(line)
		if err != nil {
			return Parameters{}, err
		}

		switch section {
		case sectionTemperatures:
			params.Temperatures = append(params.Temperatures, RTDPoint{
				Resistance:  kv["resistance"],
				Temperature: kv["temperature"],
			})
		case sectionThermalResistance:
			params.ThermalResistance = append(params.ThermalResistance, BandValue{
				Temperature: kv["temperature"],
				Value:       kv["thermal-resistance"],
			})
		case sectionHeatCapacity:
			params.HeatCapacity = append(params.HeatCapacity, BandValue{
				Temperature: kv["temperature"],
				Value:       kv["heat-capacity"],
			})
		case sectionBands:
			row := BandRow{
				Temperature: kv["temperature"],
				InnerTau:    kv["inner-tau"],
				OuterTau:    kv["outer-tau"],
			}
			if pt, ok := kv["power-tau"]; ok {
				if pg, ok := kv["power-gain"]; ok {
					row.PowerTau = &pt
					row.PowerGain = &pg
				}
			}
			params.Bands = append(params.Bands, row)
		default:
			return Parameters{}, fmt.Errorf("calibration: entry outside any section: %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return Parameters{}, fmt.Errorf("calibration: reading file: %w", err)
	}
	return params, nil
}

func parseKeyValues(line string) (map[string]float64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(line), "-")
	pairs := strings.Split(trimmed, ",")
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("calibration: malformed key-value pair %q", pair)
		}
		key := strings.TrimSpace(parts[0])
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("calibration: malformed value for %q: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
