package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/vendor"
)

const (
	// IEEE OUI registry URL
	ieeeOUIURL = "https://standards-oui.ieee.org/oui/oui.csv"

	// Wireshark OUI database (alternative source)
	wiresharkOUIURL = "https://gitlab.com/wireshark/wireshark/-/raw/master/manuf"

	refreshAge = 30 * 24 * time.Hour
)

func main() {
	dbPath := flag.String("db", "data/oui/ieee_oui.db", "Path to OUI database")
	source := flag.String("source", "ieee", "Source: ieee or wireshark")
	file := flag.String("file", "", "Import a local .csv or manuf file instead of downloading")
	force := flag.Bool("force", false, "Force update even if recent")
	flag.Parse()

	log.Printf("OUI Database Updater")
	log.Printf("Database: %s", *dbPath)

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create DB directory: %v", err)
	}
	reg, err := vendor.OpenRegistry(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer reg.Close()

	ctx := context.Background()

	// Check if update needed
	stats, err := reg.Stats(ctx)
	if err != nil {
		log.Printf("Warning: Could not get stats: %v", err)
	} else if stats.TotalEntries > 0 {
		log.Printf("Current database: %d entries, last updated %s", stats.TotalEntries, stats.LastUpdated.Format(time.RFC3339))
		if *file == "" && !*force && time.Since(stats.LastUpdated) < refreshAge {
			log.Printf("Database is recent (< 30 days). Use -force to update anyway.")
			return
		}
	}

	entries, err := load(*source, *file)
	if err != nil {
		log.Fatalf("Failed to load OUI data: %v", err)
	}
	log.Printf("Parsed %d OUI entries", len(entries))

	n, err := vendor.Import(ctx, reg, entries)
	if err != nil {
		log.Fatalf("Import failed after %d entries: %v", n, err)
	}

	stats, err = reg.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to get final stats: %v", err)
	}
	log.Printf("Update complete: %d entries, last updated %s", stats.TotalEntries, stats.LastUpdated.Format(time.RFC3339))
}

func load(source, file string) ([]vendor.Entry, error) {
	now := time.Now().UTC()

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if strings.EqualFold(filepath.Ext(file), ".csv") {
			return vendor.ParseCSV(f, now)
		}
		return vendor.ParseManuf(f, now)
	}

	switch source {
	case "ieee":
		body, err := download(ieeeOUIURL)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return vendor.ParseCSV(body, now)
	case "wireshark":
		body, err := download(wiresharkOUIURL)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return vendor.ParseManuf(body, now)
	}
	return nil, fmt.Errorf("unknown source: %s", source)
}

func download(url string) (io.ReadCloser, error) {
	log.Printf("Downloading %s...", url)
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
