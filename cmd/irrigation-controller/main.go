// AgroSense Irrigation Controller
// Main entry point for the irrigation control service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agrosense/irrigation-controller/internal/actuator"
	"github.com/agrosense/irrigation-controller/internal/analysis"
	"github.com/agrosense/irrigation-controller/internal/config"
	"github.com/agrosense/irrigation-controller/internal/decision"
	"github.com/agrosense/irrigation-controller/internal/job"
	"github.com/agrosense/irrigation-controller/internal/router"
	"github.com/agrosense/irrigation-controller/internal/storage"
	"github.com/agrosense/irrigation-controller/internal/transport"
	"github.com/agrosense/irrigation-controller/internal/web"
)

var (
	configFile string
	runOnce    bool

	rootCmd = &cobra.Command{
		Use:   "irrigation-controller",
		Short: "AgroSense Irrigation Controller",
		Long:  "Smart irrigation controller for AgroSense. Consumes sensor telemetry over MQTT and drives irrigation and fertilizer actuators.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the controller service",
		RunE:  runController,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("AgroSense Irrigation Controller v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (built-in defaults when omitted)")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single evaluation pass and exit")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return config.Load(configFile)
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	client, err := transport.NewMQTTClient(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer client.Close()

	moistureEval := analysis.NewMoistureEvaluator(
		cfg.Soil.FieldCapacity, cfg.Soil.WiltingPoint,
		cfg.Irrigation.ThresholdPAWPercent, cfg.Irrigation.ApplicationRateMM)
	nutrientEval := analysis.NewNutrientEvaluator(cfg)

	var engine decision.Engine
	if cfg.Predictor.Enabled {
		engine = decision.NewPredictorEngine(cfg.Predictor.URL, cfg.PredictorTimeout())
		log.Printf("Using remote predictor at %s", cfg.Predictor.URL)
	} else {
		engine = decision.NewScoringEngine(cfg.Irrigation.BaseVolumeMM, cfg.Irrigation.NutrientLowFactor)
		log.Println("Using local scoring engine")
	}

	pump := actuator.NewPump(cfg.Pump.FlowRateLPM, cfg.Pump.AreaSqm)
	controller := actuator.NewController(cfg, pump, client, db)
	runner := job.NewRunner(cfg, db, engine, controller, nutrientEval, client)

	if runOnce {
		log.Println("Running a single evaluation pass")
		runner.RunOnce(context.Background())
		return nil
	}

	rt := router.New(cfg, db, moistureEval, nutrientEval, engine, controller, client)
	if err := rt.Subscribe(client); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topics: %w", err)
	}

	var srv *web.Server
	if cfg.Web.Enabled {
		hub := web.NewHub()
		client.SetEventHook(hub.Hook)
		srv = web.NewServer(cfg.Web.Listen, db, runner, pump, hub, rt, cfg.ActiveWindow())
		go srv.Start()
	}

	runner.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Irrigation controller running (broker %s, db %s)", cfg.MQTT.Broker, cfg.Database.Path)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)

	runner.Stop()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error stopping web server: %v", err)
		}
	}

	log.Println("Shutdown complete")
	return nil
}
