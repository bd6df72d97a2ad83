// fpimport imports surveyed WiFi fingerprints into the survey database,
// either from an 802.11 capture or from a JSON survey file.
//
// With -pcap the beacon frames of a capture file are aggregated into one
// fingerprint per capture point and stored at the position the capture was
// taken. With -list the aggregated per-BSSID statistics are printed instead
// of imported, which is useful for checking a capture before surveying.
//
// With -json a survey file holding an array of fingerprint rows (the same
// shape GET /api/fingerprints returns) is imported in one batch.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/radiotap"
)

var (
	pcapFile   = flag.String("pcap", "", "Path to the 802.11 capture file")
	jsonFile   = flag.String("json", "", "Path to a JSON survey file to import instead of a capture")
	dbPath     = flag.String("db", "position.db", "Path to the sqlite database")
	survey     = flag.String("survey", "", "Survey name to file the fingerprints under")
	x          = flag.Float64("x", 0, "Surveyed X coordinate in metres")
	y          = flag.Float64("y", 0, "Surveyed Y coordinate in metres")
	z          = flag.Float64("z", 0, "Surveyed Z coordinate in metres (only stored with -threed)")
	threeD     = flag.Bool("threed", false, "Store a 3D position")
	minSamples = flag.Int("min-samples", 3, "Minimum beacon count for a BSSID to be included")
	listOnly   = flag.Bool("list", false, "Print per-BSSID statistics without importing")
)

func main() {
	flag.Parse()

	switch {
	case *pcapFile == "" && *jsonFile == "":
		log.Fatal("one of -pcap or -json is required")
	case *pcapFile != "" && *jsonFile != "":
		log.Fatal("-pcap and -json are mutually exclusive")
	case *jsonFile != "":
		importJSON(*jsonFile)
	default:
		importCapture(*pcapFile)
	}
}

// importCapture aggregates the beacons of one capture into a single
// fingerprint at the flag-given position.
func importCapture(path string) {
	observations, err := radiotap.ReadBeaconsFile(path)
	if err != nil {
		log.Fatalf("failed to read capture: %v", err)
	}
	stats := radiotap.Aggregate(observations)
	if len(stats) == 0 {
		log.Fatalf("no beacon frames found in %s", path)
	}

	if *listOnly {
		printStats(stats)
		return
	}

	readings := make([]sqlite.SurveyReading, 0, len(stats))
	for _, s := range stats {
		if s.Count < *minSamples {
			continue
		}
		reading := sqlite.SurveyReading{SourceID: s.BSSID, RSSIDbm: s.MeanDbm}
		if s.StdDevDbm > 0 {
			stddev := s.StdDevDbm
			reading.RSSIStdDev = &stddev
		}
		readings = append(readings, reading)
	}
	if len(readings) == 0 {
		log.Fatalf("no BSSID reached %d samples", *minSamples)
	}

	fp := &sqlite.SurveyFingerprint{
		SurveyName: *survey,
		X:          *x,
		Y:          *y,
		Readings:   readings,
	}
	if *threeD {
		fp.Z = z
	}

	store, closeDB := openStore()
	defer closeDB()
	if err := store.InsertFingerprint(fp); err != nil {
		log.Fatalf("failed to store fingerprint: %v", err)
	}

	log.Printf("stored fingerprint %s: survey=%q position=(%.2f, %.2f) readings=%d (of %d seen BSSIDs)",
		fp.FingerprintID, *survey, *x, *y, len(readings), len(stats))
}

// importJSON stores every fingerprint row of a survey file. Rows without a
// survey name inherit the -survey flag.
func importJSON(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read survey file: %v", err)
	}
	var rows []sqlite.SurveyFingerprint
	if err := json.Unmarshal(data, &rows); err != nil {
		log.Fatalf("failed to parse survey file: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("no fingerprints in %s", path)
	}

	store, closeDB := openStore()
	defer closeDB()
	for i := range rows {
		fp := &rows[i]
		if fp.SurveyName == "" {
			fp.SurveyName = *survey
		}
		if len(fp.Readings) == 0 {
			log.Fatalf("fingerprint %d has no readings", i)
		}
		if err := store.InsertFingerprint(fp); err != nil {
			log.Fatalf("failed to store fingerprint %d: %v", i, err)
		}
	}
	log.Printf("imported %d fingerprints from %s", len(rows), path)
}

// openStore opens and migrates the database, returning the survey store
// and a close func.
func openStore() (*sqlite.SurveyStore, func()) {
	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	migrations, err := db.Migrations()
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	return sqlite.NewSurveyStore(database.DB), func() { database.Close() }
}

func printStats(stats []radiotap.SourceStats) {
	fmt.Fprintf(os.Stdout, "%-17s  %6s  %8s  %7s  %8s  %s\n", "BSSID", "COUNT", "MEAN", "STDDEV", "FREQ", "SSID")
	for _, s := range stats {
		freq := ""
		if s.FrequencyHz > 0 {
			freq = fmt.Sprintf("%.0fMHz", s.FrequencyHz/1e6)
		}
		fmt.Fprintf(os.Stdout, "%-17s  %6d  %7.1f  %7.1f  %8s  %s\n", s.BSSID, s.Count, s.MeanDbm, s.StdDevDbm, freq, s.SSID)
	}
}
