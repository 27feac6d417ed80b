package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/conduit/pkg/config"
)

// ExampleDefault demonstrates creating a configuration with default values.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Batch Size: %d\n", cfg.Extract.BatchSize)
	fmt.Printf("Concurrency: %d\n", cfg.Extract.Concurrency)
	fmt.Printf("Batcher: %d items / %s\n", cfg.Batcher.MaxSize, cfg.Batcher.Throttle)

	// Output:
	// Batch Size: 100
	// Concurrency: 2
	// Batcher: 1000 items / 10s
}

// ExampleConfig_Validate shows how to validate a configuration
// before using it.
func ExampleConfig_Validate() {
	cfg := config.Default()
	cfg.Extract.BatchSize = 500

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	cfg.Batcher.MaxSize = 0
	fmt.Println(cfg.Validate())

	// Output:
	// config: batcher.max_size must be at least 1
}
