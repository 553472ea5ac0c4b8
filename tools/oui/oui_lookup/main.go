package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/vendor"
)

func main() {
	dbPath := flag.String("db", "data/oui/ieee_oui.db", "Path to OUI database")
	flag.Parse()

	reg, err := vendor.OpenRegistry(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	resolver := vendor.NewResolver(vendor.NewCompositeRepository(reg, vendor.NewDefaultRepository()), 0)
	defer resolver.Close()

	ctx := context.Background()

	stats, err := reg.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	fmt.Printf("OUI Database Statistics:\n")
	fmt.Printf("  Total entries: %d\n", stats.TotalEntries)
	fmt.Printf("  Last updated: %s\n", stats.LastUpdated)
	fmt.Println()

	addrs := flag.Args()
	if len(addrs) == 0 {
		addrs = []string{
			"60:60:1F:12:34:56", // DJI
			"90:03:B7:11:22:33", // Parrot
			"18:FE:34:12:34:56", // Espressif
			"00:13:37:AA:BB:CC", // Hak5
			"FF:FF:FF:11:22:33", // Unknown
		}
	}

	fmt.Println("Lookups:")
	for _, addr := range addrs {
		name, err := resolver.LookupVendor(ctx, addr)
		switch {
		case err != nil:
			fmt.Printf("  %s -> ERROR: %v\n", addr, err)
		case name == "":
			fmt.Printf("  %s -> (unknown)\n", addr)
		default:
			fmt.Printf("  %s -> %s\n", addr, name)
		}
	}

	hits, misses := resolver.CacheStats()
	fmt.Printf("\nCache stats: Hits=%d Misses=%d\n", hits, misses)
}
