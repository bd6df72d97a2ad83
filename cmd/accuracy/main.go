// accuracy compares estimator configurations over randomized synthetic
// scenes: each trial generates a survey from the log-distance law, holds out
// a query position, and measures each configuration's position error. The
// summary goes to stdout, and optionally to CSV and an echarts HTML bar
// chart.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/geo"
	"github.com/banshee-data/position.report/internal/units"
)

var (
	trials      = flag.Int("trials", 50, "Number of randomized trials")
	sourceCount = flag.Int("sources", 5, "Sources per scene")
	points      = flag.Int("points", 100, "Survey fingerprints per scene")
	width       = flag.Float64("width", 20, "Scene width in metres")
	height      = flag.Float64("height", 20, "Scene height in metres")
	txPower     = flag.Float64("tx-power", -60, "Transmitted power in dBm")
	exponent    = flag.Float64("exponent", 2.0, "Path-loss exponent")
	noise       = flag.Float64("noise", 1.0, "Gaussian RSSI noise standard deviation in dBm")
	bias        = flag.Float64("bias", 0, "Constant receiver bias added to every query reading in dBm")
	seed        = flag.Int64("seed", 1, "RNG seed")
	csvOut      = flag.String("csv", "", "Write per-configuration summary rows to this CSV file")
	htmlOut     = flag.String("html", "", "Write an echarts bar chart of mean errors to this HTML file")
)

// comparisonConfigs spans both estimator families, the three expansion
// orders, and the mean-removal switch the receiver-bias scenario exercises.
var comparisonConfigs = []fingerprint.EvaluationConfig{
	{Name: "linear-raw", Algorithm: fingerprint.AlgorithmLinear, UseRawSignalFinder: true},
	{Name: "linear-demeaned", Algorithm: fingerprint.AlgorithmLinear, RemoveMeanFromReadings: true},
	{Name: "nonlinear-first", Algorithm: fingerprint.AlgorithmNonlinear, Order: fingerprint.OrderFirst, RemoveMeanFromReadings: true},
	{Name: "nonlinear-second", Algorithm: fingerprint.AlgorithmNonlinear, Order: fingerprint.OrderSecond, RemoveMeanFromReadings: true},
	{Name: "nonlinear-third", Algorithm: fingerprint.AlgorithmNonlinear, Order: fingerprint.OrderThird, RemoveMeanFromReadings: true},
}

// summary aggregates one configuration's errors across all trials.
type summary struct {
	config fingerprint.EvaluationConfig
	errors []float64
	failed int
}

func main() {
	flag.Parse()

	if *trials < 1 || *sourceCount < 2 || *points < 2 {
		log.Fatal("-trials must be at least 1, -sources and -points at least 2")
	}

	rng := rand.New(rand.NewSource(*seed))
	frequency := units.Channel24GHzFrequency(6)

	summaries := make([]*summary, len(comparisonConfigs))
	for i := range comparisonConfigs {
		summaries[i] = &summary{config: comparisonConfigs[i]}
	}

	for trial := 0; trial < *trials; trial++ {
		located, sources, query, truth := makeScene(rng, frequency)

		for _, s := range summaries {
			est, err := fingerprint.NewConfiguredEstimator(s.config)
			if err != nil {
				log.Fatal(err)
			}
			if err := est.SetLocatedFingerprints(located); err != nil {
				log.Fatal(err)
			}
			if err := est.SetSources(sources); err != nil {
				log.Fatal(err)
			}
			if err := est.SetQueryFingerprint(query); err != nil {
				log.Fatal(err)
			}

			if err := est.Estimate(); err != nil {
				s.failed++
				continue
			}
			pos, ok := est.EstimatedPosition()
			if !ok {
				s.failed++
				continue
			}
			s.errors = append(s.errors, pos.DistanceTo(truth))
		}
	}

	printSummaries(summaries)

	if *csvOut != "" {
		if err := writeCSV(*csvOut, summaries); err != nil {
			log.Fatalf("failed to write CSV: %v", err)
		}
		log.Printf("wrote %s", *csvOut)
	}
	if *htmlOut != "" {
		if err := writeChart(*htmlOut, summaries); err != nil {
			log.Fatalf("failed to write chart: %v", err)
		}
		log.Printf("wrote %s", *htmlOut)
	}
}

// makeScene generates one randomized trial: sources and survey fingerprints
// following the law with noise, plus a held-out query with the configured
// receiver bias.
func makeScene(rng *rand.Rand, frequency float64) ([]*fingerprint.LocatedFingerprint, []fingerprint.Source, *fingerprint.Fingerprint, geo.Point) {
	sourcePositions := make([]geo.Point, *sourceCount)
	sources := make([]fingerprint.Source, *sourceCount)
	for i := range sources {
		sourcePositions[i] = geo.NewPoint2D(rng.Float64()**width, rng.Float64()**height)
		ap, err := fingerprint.NewAccessPoint(fmt.Sprintf("02:00:00:00:00:%02x", i+1), sourcePositions[i], frequency)
		if err != nil {
			log.Fatal(err)
		}
		ap.SetTransmittedPower(*txPower)
		sources[i] = ap
	}

	readingsAt := func(at geo.Point, offset float64) []fingerprint.Reading {
		readings := make([]fingerprint.Reading, 0, len(sources))
		for i, src := range sourcePositions {
			d := at.DistanceTo(src)
			if d == 0 {
				continue
			}
			rssi := fingerprint.ExpectedRSSI(*txPower, d, frequency, *exponent) + offset
			if *noise > 0 {
				rssi += rng.NormFloat64() * *noise
			}
			r, err := fingerprint.NewReading(sources[i].ID(), rssi)
			if err != nil {
				log.Fatal(err)
			}
			readings = append(readings, r)
		}
		return readings
	}

	located := make([]*fingerprint.LocatedFingerprint, 0, *points)
	for p := 0; p < *points; p++ {
		at := geo.NewPoint2D(rng.Float64()**width, rng.Float64()**height)
		fp, err := fingerprint.New(readingsAt(at, 0)...)
		if err != nil {
			log.Fatal(err)
		}
		lf, err := fingerprint.NewLocated(fp, at)
		if err != nil {
			log.Fatal(err)
		}
		located = append(located, lf)
	}

	truth := geo.NewPoint2D(rng.Float64()**width, rng.Float64()**height)
	query, err := fingerprint.New(readingsAt(truth, *bias)...)
	if err != nil {
		log.Fatal(err)
	}
	return located, sources, query, truth
}

func printSummaries(summaries []*summary) {
	fmt.Printf("%-18s  %8s  %8s  %8s  %6s\n", "CONFIG", "MEAN", "MEDIAN", "P95", "FAILED")
	for _, s := range summaries {
		mean, median, p95 := quantiles(s.errors)
		fmt.Printf("%-18s  %7.2fm  %7.2fm  %7.2fm  %6d\n", s.config.Name, mean, median, p95, s.failed)
	}
}

func quantiles(errors []float64) (mean, median, p95 float64) {
	if len(errors) == 0 {
		return 0, 0, 0
	}
	sorted := append([]float64(nil), errors...)
	sort.Float64s(sorted)
	return stat.Mean(sorted, nil),
		stat.Quantile(0.5, stat.Empirical, sorted, nil),
		stat.Quantile(0.95, stat.Empirical, sorted, nil)
}

func writeCSV(path string, summaries []*summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"config", "trials", "failed", "mean_m", "median_m", "p95_m"}); err != nil {
		return err
	}
	for _, s := range summaries {
		mean, median, p95 := quantiles(s.errors)
		row := []string{
			s.config.Name,
			strconv.Itoa(len(s.errors) + s.failed),
			strconv.Itoa(s.failed),
			strconv.FormatFloat(mean, 'f', 4, 64),
			strconv.FormatFloat(median, 'f', 4, 64),
			strconv.FormatFloat(p95, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeChart(path string, summaries []*summary) error {
	names := make([]string, 0, len(summaries))
	means := make([]opts.BarData, 0, len(summaries))
	p95s := make([]opts.BarData, 0, len(summaries))
	for _, s := range summaries {
		mean, _, p95 := quantiles(s.errors)
		names = append(names, s.config.Name)
		means = append(means, opts.BarData{Value: mean})
		p95s = append(p95s, opts.BarData{Value: p95})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Estimator Accuracy", Width: "1100px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Estimator Accuracy", Subtitle: fmt.Sprintf("trials=%d noise=%gdBm bias=%gdBm seed=%d", *trials, *noise, *bias, *seed)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error (m)"}),
	)
	bar.SetXAxis(names).
		AddSeries("mean", means).
		AddSeries("p95", p95s)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return bar.Render(f)
}
