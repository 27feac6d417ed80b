// Package config provides configuration management for conduit.
//
// A single Config structure carries every section the SDK components read:
// logging, extraction, batching, the HTTP transport, the notification server
// and tracing. Values come from three layers, applied in order:
//
//  1. Default() - production-ready defaults
//  2. Load(path) - a YAML file, with ${VAR_NAME} environment substitution
//  3. ApplyEnv() - CONDUIT_* environment overrides
//
// # Usage
//
//	cfg, err := config.Load("conduit.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Variable Substitution
//
//	# conduit.yaml
//	name: my-connector
//	http:
//	  headers:
//	    Authorization: Bearer ${API_TOKEN}
package config
