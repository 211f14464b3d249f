// Package main provides the entry point for the MRI Viewer application.
package main

import (
	"flag"
	"fmt"
	"log"

	"mri-viewer/internal/api"
	"mri-viewer/internal/app"
	"mri-viewer/internal/config"
	"mri-viewer/internal/version"
	"mri-viewer/ui/mainwindow"
	"mri-viewer/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
)

const appID = "org.mriviewer.desktop"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "", "YAML settings file (overrides MRI_CONFIG)")
	apiURL := flag.String("api", "", "screening service base URL (overrides MRI_API_URL)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	log.Printf("Starting %s (service %s)", version.String(), cfg.APIURL)

	client, err := api.NewClient(cfg.APIURL, cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("Invalid service URL: %v", err)
	}

	a := fyneapp.NewWithID(appID)
	a.Settings().SetTheme(&app.ViewerTheme{})

	win, err := mainwindow.New(a, cfg, client, prefs.Load())
	if err != nil {
		log.Fatalf("Failed to create window: %v", err)
	}

	win.Start()
	if flag.NArg() > 0 {
		win.OpenSource(flag.Arg(0))
	}
	win.ShowAndRun()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
