package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/position.report/internal/api"
	"github.com/banshee-data/position.report/internal/config"
	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/ingest"
	"github.com/banshee-data/position.report/internal/locator"
	"github.com/banshee-data/position.report/internal/monitor"
	"github.com/banshee-data/position.report/internal/scanmux"
	"github.com/banshee-data/position.report/internal/version"
)

var (
	devMode        = flag.Bool("dev", false, "Run in dev mode (mock scanner fed from fixtures.txt)")
	listen         = flag.String("listen", ":8080", "Listen address")
	dbPath         = flag.String("db", "position.db", "Path to the sqlite database")
	configPath     = flag.String("config", "", "Path to estimator config JSON (defaults to "+config.DefaultConfigPath+")")
	surveyName     = flag.String("survey", "", "Survey to load located fingerprints from (empty loads all)")
	serialPort     = flag.String("port", "/dev/ttyUSB0", "Serial port of the attached WiFi scanner")
	disableScanner = flag.Bool("disable-scanner", false, "Run without a serial scanner attached")
	scannerDevice  = flag.String("scanner-device", "scanner-local", "Device id recorded for serial scanner sweeps")
	broker         = flag.String("broker", "", "MQTT broker URL for reading ingest (empty disables MQTT)")
	topic          = flag.String("topic", ingest.DefaultTopic, "MQTT reading topic filter")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("position.report %s\n", version.String())
		return
	}

	// Subcommands run against the database and exit.
	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid estimator config: %v", err)
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrations, err := db.Migrations()
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	sources := sqlite.NewSourceStore(database.DB)
	surveys := sqlite.NewSurveyStore(database.DB)
	estimates := sqlite.NewEstimateStore(database.DB)

	svc := locator.NewService(cfg, sources, surveys, estimates)
	if err := svc.Reload(*surveyName); err != nil {
		log.Fatalf("failed to load survey: %v", err)
	}
	fingerprints, sourceCount := svc.Counts()
	log.Printf("loaded survey %q: %d fingerprints, %d sources", *surveyName, fingerprints, sourceCount)

	scanner := newScanner()
	defer scanner.Close()

	if err := scanner.Initialize(); err != nil {
		log.Fatalf("failed to initialize scanner: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scanner.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor scanner port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// assemble scanner sweeps into query fingerprints and locate them
	collector := scanmux.NewCollector(scanner, func(fp *fingerprint.Fingerprint) {
		if _, err := svc.Locate(*scannerDevice, fp); err != nil {
			log.Printf("error locating scanner sweep: %v", err)
		}
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := collector.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("collector terminated: %v", err)
		}
	}()

	// MQTT ingest delivers remote scanner readings to the same service
	if *broker != "" {
		subscriber, err := ingest.NewSubscriber(ingest.Config{Broker: *broker, Topic: *topic}, func(deviceID string, fp *fingerprint.Fingerprint) {
			if _, err := svc.Locate(deviceID, fp); err != nil {
				log.Printf("error locating %s reading: %v", deviceID, err)
			}
		})
		if err != nil {
			log.Fatalf("failed to connect to broker: %v", err)
		}
		defer subscriber.Close()
		log.Printf("subscribed to %s on %s", *topic, *broker)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := api.NewServer(svc, sources, surveys, estimates)
		go server.Hub.Run(ctx)
		svc.SetNotifier(server.Hub.BroadcastEstimate)

		mux := server.ServeMux()
		scanner.AttachDebugRoutes(mux)
		monitor.New(monitor.Config{
			Sources:    sources,
			Surveys:    surveys,
			Estimates:  estimates,
			SurveyName: *surveyName,
		}).AttachDebugRoutes(mux)

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("listening on %s", *listen)

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// loadConfig resolves the estimator configuration from the --config flag or
// the repository defaults file.
func loadConfig() *config.EstimatorConfig {
	if *configPath != "" {
		cfg, err := config.LoadEstimatorConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		return cfg
	}
	return config.MustLoadDefaultConfig()
}

// newScanner selects the scanner mux variant the flags ask for: a mock fed
// from fixtures in dev mode, a disabled stub when no hardware is attached,
// else the real serial port.
func newScanner() scanmux.ScanMuxInterface {
	if *disableScanner {
		return scanmux.NewDisabledScanMux()
	}
	if *devMode {
		data, err := os.ReadFile("fixtures.txt")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		return scanmux.NewMockScanMux(data)
	}
	mux, err := scanmux.NewRealScanMux(*serialPort, scanmux.PortOptions{})
	if err != nil {
		log.Fatalf("failed to open scanner port %s: %v", *serialPort, err)
	}
	return mux
}
