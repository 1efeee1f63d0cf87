// Command realme-metadata renders the SP metadata XML for a RealMe
// integration, ready to submit through the RealMe admin process.
// Usage: go run ./cmd/realme-metadata -config realme.yml [-env ite]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	realme "github.com/silverstripe/silverstripe-realme"
)

func main() {
	configPath := flag.String("config", "realme.yml", "Path to the RealMe configuration file")
	env := flag.String("env", "", "Override the configured environment (mts, ite or prod)")
	flag.Parse()

	cfg, err := realme.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *env != "" {
		cfg.Environment = realme.Environment(*env)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	metadata, err := realme.SPMetadata(cfg)
	if err != nil {
		log.Fatalf("Failed to generate metadata: %v", err)
	}

	fmt.Fprintln(os.Stdout, string(metadata))
}
