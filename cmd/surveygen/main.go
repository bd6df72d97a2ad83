// surveygen populates a survey database with a synthetic scene: randomly
// placed sources and survey fingerprints whose readings follow the
// log-distance path-loss law, optionally with gaussian noise. The output is
// demo and benchmark data for the estimators, not a survey of a real site.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/geo"
	"github.com/banshee-data/position.report/internal/units"
)

var (
	dbPath      = flag.String("db", "position.db", "Path to the sqlite database")
	survey      = flag.String("survey", "synthetic", "Survey name for the generated fingerprints")
	sourceCount = flag.Int("sources", 5, "Number of sources to place")
	points      = flag.Int("points", 200, "Number of survey fingerprints to generate")
	width       = flag.Float64("width", 20, "Scene width in metres")
	height      = flag.Float64("height", 20, "Scene height in metres")
	txPower     = flag.Float64("tx-power", -60, "Transmitted power in dBm")
	exponent    = flag.Float64("exponent", 2.0, "Path-loss exponent")
	noise       = flag.Float64("noise", 0, "Gaussian RSSI noise standard deviation in dBm")
	channel     = flag.Int("channel", 6, "WiFi channel of the generated sources")
	seed        = flag.Int64("seed", 1, "RNG seed")
	calibrated  = flag.Bool("calibrated", true, "Store transmitted power and exponent on the sources")
)

func main() {
	flag.Parse()

	if *sourceCount < 1 || *points < 1 {
		log.Fatal("-sources and -points must be at least 1")
	}
	frequency := units.Channel24GHzFrequency(*channel)
	if frequency == 0 {
		log.Fatalf("unknown 2.4 GHz WiFi channel %d", *channel)
	}

	rng := rand.New(rand.NewSource(*seed))

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	migrations, err := db.Migrations()
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	sourceStore := sqlite.NewSourceStore(database.DB)
	surveyStore := sqlite.NewSurveyStore(database.DB)

	positions := make([]geo.Point, *sourceCount)
	for i := range positions {
		positions[i] = geo.NewPoint2D(rng.Float64()**width, rng.Float64()**height)
		row := &sqlite.Source{
			SourceID:    fmt.Sprintf("02:00:00:00:00:%02x", i+1),
			Name:        fmt.Sprintf("synthetic-%d", i+1),
			X:           positions[i].X(),
			Y:           positions[i].Y(),
			FrequencyHz: frequency,
		}
		if *calibrated {
			tx, n := *txPower, *exponent
			row.TxPowerDbm = &tx
			row.PathLossExponent = &n
		}
		if err := sourceStore.UpsertSource(row); err != nil {
			log.Fatalf("failed to store source: %v", err)
		}
	}

	for p := 0; p < *points; p++ {
		at := geo.NewPoint2D(rng.Float64()**width, rng.Float64()**height)
		readings := make([]sqlite.SurveyReading, 0, len(positions))
		for i, src := range positions {
			d := at.DistanceTo(src)
			if d == 0 {
				// the law is undefined at the source itself
				continue
			}
			rssi := fingerprint.ExpectedRSSI(*txPower, d, frequency, *exponent)
			if *noise > 0 {
				rssi += rng.NormFloat64() * *noise
			}
			reading := sqlite.SurveyReading{
				SourceID: fmt.Sprintf("02:00:00:00:00:%02x", i+1),
				RSSIDbm:  rssi,
			}
			if *noise > 0 {
				stddev := *noise
				reading.RSSIStdDev = &stddev
			}
			readings = append(readings, reading)
		}
		err := surveyStore.InsertFingerprint(&sqlite.SurveyFingerprint{
			SurveyName: *survey,
			X:          at.X(),
			Y:          at.Y(),
			Readings:   readings,
		})
		if err != nil {
			log.Fatalf("failed to store fingerprint %d: %v", p, err)
		}
	}

	log.Printf("generated survey %q: %d sources, %d fingerprints (%gx%g m, noise %g dBm, seed %d)",
		*survey, *sourceCount, *points, *width, *height, *noise, *seed)
}
