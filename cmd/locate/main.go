// locate runs a one-shot position estimate: it loads a survey from the
// database, reads a query fingerprint from a reading-message JSON file (the
// same shape scanners publish over MQTT), and prints the estimated position.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/ingest"
)

var (
	dbPath     = flag.String("db", "position.db", "Path to the sqlite database")
	survey     = flag.String("survey", "", "Survey to load located fingerprints from (empty loads all)")
	queryFile  = flag.String("query", "", "Path to the reading-message JSON file (required, '-' for stdin)")
	algorithm  = flag.String("algorithm", "nonlinear", "Estimator algorithm: linear or nonlinear")
	order      = flag.String("order", "second", "Taylor order for the nonlinear estimator: first, second or third")
	rawFinder  = flag.Bool("raw-finder", false, "Rank nearest fingerprints by raw RSSI distance instead of mean-removed")
	keepMeans  = flag.Bool("keep-means", false, "Keep per-fingerprint mean RSSI in the estimation equations")
	outputJSON = flag.Bool("json", false, "Print the estimate as JSON")
)

func main() {
	flag.Parse()

	if *queryFile == "" {
		log.Fatal("-query is required")
	}

	payload, err := readQuery(*queryFile)
	if err != nil {
		log.Fatalf("failed to read query: %v", err)
	}
	deviceID, query, err := ingest.DecodeMessage("", payload)
	if err != nil {
		log.Fatalf("invalid query: %v", err)
	}

	taylorOrder, err := fingerprint.ParseOrder(*order)
	if err != nil {
		log.Fatal(err)
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	surveyRows, err := sqlite.NewSurveyStore(database.DB).ListFingerprints(*survey)
	if err != nil {
		log.Fatalf("failed to list fingerprints: %v", err)
	}
	located, err := sqlite.LocatedFingerprints(surveyRows)
	if err != nil {
		log.Fatalf("failed to materialize survey: %v", err)
	}
	sourceRows, err := sqlite.NewSourceStore(database.DB).ListSources()
	if err != nil {
		log.Fatalf("failed to list sources: %v", err)
	}
	sources, err := sqlite.AccessPoints(sourceRows)
	if err != nil {
		log.Fatalf("failed to materialize sources: %v", err)
	}

	est, err := fingerprint.NewConfiguredEstimator(fingerprint.EvaluationConfig{
		Algorithm:              fingerprint.Algorithm(*algorithm),
		Order:                  taylorOrder,
		UseRawSignalFinder:     *rawFinder,
		RemoveMeanFromReadings: !*keepMeans,
	})
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
		log.Fatalf("estimation failed: %v", err)
	}
	pos, ok := est.EstimatedPosition()
	if !ok {
		log.Fatal("estimator produced no position")
	}

	if *outputJSON {
		out := map[string]any{
			"device_id": deviceID,
			"algorithm": *algorithm,
			"x":         pos.X(),
			"y":         pos.Y(),
		}
		if pos.Dim() == 3 {
			out["z"] = pos.Z()
		}
		if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
			log.Fatal(err)
		}
		return
	}

	fmt.Printf("%s: %s (survey=%q fingerprints=%d sources=%d readings=%d)\n",
		deviceID, pos, *survey, len(located), len(sources), query.Len())
}

func readQuery(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
