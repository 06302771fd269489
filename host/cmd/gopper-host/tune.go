package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"motioncore/tuning"
)

// runTuneCommand dispatches the "tune" subcommands. These are
// host-side, data-in/data-out tools: they operate on a previously
// captured resonance trace rather than driving the MCU live, the same
// way Klipper's calibrate_shaper.py post-processes a recorded
// accelerometer CSV instead of steering the toolhead itself.
func runTuneCommand(args []string) error {
	if len(args) == 0 {
		printTuneHelp()
		return nil
	}

	switch args[0] {
	case "shaper-fit":
		return runShaperFit(args[1:])
	case "golden-section":
		return runGoldenSectionDemo(args[1:])
	case "help", "-h", "--help":
		printTuneHelp()
		return nil
	default:
		return fmt.Errorf("unknown tune subcommand %q (try: shaper-fit, golden-section)", args[0])
	}
}

func printTuneHelp() {
	fmt.Println("tune subcommands:")
	fmt.Println("  shaper-fit --psd <file> [--damping 0.1]   Fit the best input shaper to a captured frequency/magnitude trace")
	fmt.Println("  golden-section --target 1.3               Demonstrate golden-section convergence on (x-target)^2")
}

// runShaperFit reads a two-column "freq_hz,magnitude" CSV (one
// measurement per line, as produced by a vibration sweep) and reports
// the best-fit input shaper via tuning.FindBestShaper.
func runShaperFit(args []string) error {
	fs := pflag.NewFlagSet("shaper-fit", pflag.ContinueOnError)
	psdPath := fs.String("psd", "", "path to a freq_hz,magnitude CSV trace")
	damping := fs.Float64("damping", 0.1, "assumed damping ratio zeta")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *psdPath == "" {
		return fmt.Errorf("shaper-fit: --psd is required")
	}

	psd, err := loadPSDFile(*psdPath)
	if err != nil {
		return fmt.Errorf("shaper-fit: %w", err)
	}
	if len(psd) == 0 {
		return fmt.Errorf("shaper-fit: %s contained no usable rows", *psdPath)
	}

	log.Info("loaded resonance trace", "file", *psdPath, "points", len(psd))
	best := tuning.FindBestShaper(psd, *damping)
	log.Info("best shaper selected",
		"type", int(best.Type),
		"freq_hz", best.FreqHz,
		"damping", best.Damping,
		"vibration", best.Vibration,
		"smoothing", best.Smoothing,
		"score", best.Score,
	)
	return nil
}

func loadPSDFile(path string) ([]tuning.PSDPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var points []tuning.PSDPoint
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		freq, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			continue
		}
		mag, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			continue
		}
		points = append(points, tuning.PSDPoint{FreqHz: freq, Magnitude: mag})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// runGoldenSectionDemo exercises tuning.GoldenSectionSearch against a
// simple parabola centred on --target, useful for sanity-checking a
// build without needing captured hardware data.
func runGoldenSectionDemo(args []string) error {
	fs := pflag.NewFlagSet("golden-section", pflag.ContinueOnError)
	target := fs.Float64("target", 0.0, "minimum of the demo parabola (x-target)^2")
	eps := fs.Float64("eps", 1e-5, "bracket-width termination threshold")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := func(x float64) float64 { return (x - *target) * (x - *target) }
	x, evals := tuning.GoldenSectionSearch(f, *target-10, *target+10, *eps)
	log.Info("golden-section search converged", "x", x, "evaluations", evals, "target", *target)
	return nil
}
