package main

import (
	"flag"
	"fmt"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile   = flag.String("config", "config.yaml", "Path to configuration file")
	serveMode    = flag.Bool("serve", false, "Run the HTTP map service")
	httpPort     = flag.Int("port", 8080, "HTTP server port (default 8080)")
	mqttMode     = flag.Bool("mqtt", false, "Subscribe to the live status feed (requires broker in config)")
	renderOnly   = flag.Bool("render", false, "Render the map once and exit")
	outputFile   = flag.String("output", "map.png", "Output file for --render mode")
	renderFormat = flag.String("format", "png", "Render format: png or svg")
	initialView  = flag.String("view", "", "Initial view state as a query string (k, x, y, ov, bm, dia, age, mat)")
	profileOnly  = flag.Bool("profile", false, "Print a dataset profile and exit")
	genOverrides = flag.String("gen-overrides", "", "Write the scoring review CSV to this path and exit")
)

func main() {
	flag.Parse()
	fmt.Printf("mainsmap version: %s\n", Version)

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   *configFile,
		HTTPPort:     *httpPort,
		MqttMode:     *mqttMode,
		OutputFile:   *outputFile,
		RenderFormat: *renderFormat,
		InitialView:  *initialView,
	})

	switch {
	case *profileOnly:
		app.RunProfile()
	case *genOverrides != "":
		app.RunGenOverrides(*genOverrides)
	case *renderOnly:
		app.RunRender()
	case *serveMode || *mqttMode:
		app.RunService()
	default:
		fmt.Println("Use --serve to run the HTTP map service")
		fmt.Println("Use --render to render the map once to a file")
		fmt.Println("Use --profile to print a dataset profile")
		fmt.Println("Use --gen-overrides=FILE to write the scoring review CSV")
		fmt.Println("Use --mqtt to subscribe to the live status feed")
		fmt.Println("\nConfiguration:")
		fmt.Println("  config.yaml - dataset path, tile URL, scoring and MQTT settings")
	}
}
