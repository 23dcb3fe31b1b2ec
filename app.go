package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kwv/mainsmap/pipemap"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *pipemap.Config
	Session    *pipemap.ViewSession
	Labels     map[string]string
	Segments   []pipemap.PipeSegment
	Cache      *pipemap.AttributeCache
	MQTTClient *pipemap.MQTTClient
	Publisher  *pipemap.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	HTTPPort     int
	MqttMode     bool
	OutputFile   string
	RenderFormat string
	InitialView  string
}

// AppOptions carries parsed CLI flags into the App
type AppOptions struct {
	ConfigFile   string
	HTTPPort     int
	MqttMode     bool
	OutputFile   string
	RenderFormat string
	InitialView  string
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.HTTPPort = opts.HTTPPort
	a.MqttMode = opts.MqttMode
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.InitialView = opts.InitialView
}

// loadData loads config, dataset, overrides and labels, and computes the
// attribute cache. Every mode goes through here.
func (a *App) loadData() {
	config, err := pipemap.LoadConfig(a.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	a.Config = config
	log.Printf("Loaded config from %s", a.ConfigFile)

	segments, err := pipemap.LoadDataset(config.DatasetPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	a.Segments = segments
	fmt.Printf("Loaded %d segments from %s\n", len(segments), config.DatasetPath)

	var overrides *pipemap.OverrideTable
	if config.OverridesPath != "" {
		overrides, err = pipemap.LoadOverrides(config.OverridesPath)
		if err != nil {
			log.Printf("Warning: Failed to load overrides %s: %v", config.OverridesPath, err)
		} else {
			log.Printf("Loaded %d override rows from %s", overrides.Len(), config.OverridesPath)
		}
	}

	labels, err := pipemap.LoadMaterialLabels(config.LabelsPath)
	if err != nil {
		log.Printf("Warning: Failed to load material labels: %v", err)
	}
	a.Labels = labels

	a.Cache = pipemap.NewAttributeCache(segments, config.CurrentYear, overrides, config.SteelSeverity)
}

// newSession builds the view session over the loaded data.
func (a *App) newSession() *pipemap.ViewSession {
	var fetcher pipemap.TileFetcher
	if a.Config.TileURLTemplate != "" {
		fetcher = pipemap.NewHTTPTileFetcher(a.Config.TileURLTemplate)
	}

	session := pipemap.NewViewSession(
		a.Segments, a.Cache, a.Labels, fetcher,
		a.Config.ViewportWidth, a.Config.ViewportHeight, a.Config.MaxZoom,
	)

	if a.InitialView != "" {
		if err := session.ApplyQuery(a.InitialView); err != nil {
			log.Printf("Warning: invalid --view query: %v", err)
		}
	}
	return session
}

// RunProfile prints the dataset profile and exits
func (a *App) RunProfile() {
	a.loadData()
	p := pipemap.Profile(a.Segments, a.Cache)
	fmt.Println()
	p.WriteTo(os.Stdout, a.Labels)
}

// RunGenOverrides writes the scoring review CSV and exits
func (a *App) RunGenOverrides(path string) {
	a.loadData()
	if err := pipemap.WriteReviewCSV(path, a.Segments, a.Config.CurrentYear, a.Config.SteelSeverity); err != nil {
		log.Fatalf("Failed to write review CSV: %v", err)
	}
	fmt.Printf("Created review CSV: %s\n", path)
}

// RunRender renders the map once to a file and exits
func (a *App) RunRender() {
	a.loadData()
	a.Session = a.newSession()

	format := strings.ToLower(a.RenderFormat)
	if format != "png" && format != "svg" {
		log.Fatalf("Invalid format: %s (must be png or svg)", format)
	}

	outFile, err := os.Create(a.OutputFile)
	if err != nil {
		log.Fatalf("Error creating output file %s: %v", a.OutputFile, err)
	}
	defer func() {
		if err := outFile.Close(); err != nil {
			log.Printf("Warning: error closing output file %s: %v", a.OutputFile, err)
		}
	}()

	if format == "svg" {
		err = a.Session.RenderSVG(outFile)
	} else {
		err = a.Session.RenderPNG(outFile)
	}
	if err != nil {
		log.Fatalf("Error rendering map: %v", err)
	}

	fmt.Printf("Created %s: %s\n", format, a.OutputFile)
	fmt.Printf("Visible segments: %d of %d\n", a.Session.VisibleCount(), a.Session.SegmentCount())
}

// RunService starts the HTTP map service and optionally the MQTT feed
func (a *App) RunService() {
	fmt.Println("Starting mainsmap service...")

	a.loadData()
	a.Session = a.newSession()

	// Start MQTT if enabled
	if a.MqttMode {
		statusHandler := func(update pipemap.StatusUpdate) {
			if !a.Session.SetStatus(update.ID, update.Status) {
				log.Printf("Status update for unknown segment %s, ignored", update.ID)
				return
			}
			log.Printf("Segment %s status -> %q", update.ID, update.Status)

			if a.Publisher != nil {
				if err := a.Publisher.PublishSummary(a.Session.RiskSummary(), a.Session.SegmentCount()); err != nil {
					log.Printf("Error publishing summary: %v", err)
				}
			}
		}

		mqttClient, err := pipemap.InitMQTT(a.Config.MQTT, statusHandler)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient
		a.Publisher = pipemap.NewPublisher(mqttClient.GetClient(), a.Config.MQTT.PublishPrefix)
		fmt.Println("MQTT status feed initialized")
	}

	// Start HTTP server
	httpServer := newHTTPServer(a.Session)
	go func() {
		addr := fmt.Sprintf("0.0.0.0:%d", a.HTTPPort)
		log.Printf("[HTTP] Starting server on %s", addr)
		if err := http.ListenAndServe(addr, httpServer); err != nil {
			log.Fatalf("[HTTP] Server error: %v", err)
		}
	}()

	// Print service info
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Printf("  Status feed topic: %s\n", a.Config.MQTT.StatusTopic)
		publishPrefix := a.Config.MQTT.PublishPrefix
		if publishPrefix == "" {
			publishPrefix = "mainsmap"
		}
		fmt.Printf("  Summary published to: %s/summary\n", publishPrefix)
	}

	fmt.Printf("\nHTTP endpoints (port %d):\n", a.HTTPPort)
	fmt.Println("  GET  /health        - Health check")
	fmt.Println("  GET  /map.png       - Rendered map (raster)")
	fmt.Println("  GET  /map.svg       - Rendered map (vector)")
	fmt.Println("  GET  /view          - Shareable view query string")
	fmt.Println("  POST /view          - Restore a view from a query string")
	fmt.Println("  POST /pan           - Pan by dx/dy")
	fmt.Println("  POST /zoom          - Zoom by f around px/py")
	fmt.Println("  POST /style         - Switch style mode")
	fmt.Println("  POST /filter        - Replace one filter set")
	fmt.Println("  POST /basemap       - Toggle the basemap")
	fmt.Println("  GET  /legend.json   - Legend for the active mode")
	fmt.Println("  GET  /features.json - Segment and risk counts")

	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
