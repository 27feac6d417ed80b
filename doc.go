// Package conduit is the runtime of a connector: it pulls bulk exports out of
// remote resources and batches inbound entity notifications for a handler.
//
// # Architecture
//
// Conduit is built from three cooperating parts:
//
// 1. Extraction (pkg/extract): fetch a resource over http(s), s3 or gs,
// decompress it if needed, decode CSV or JSON into records, regroup the
// records into fixed-size chunks and hand every chunk to a handler with
// bounded concurrency. The first failure ends the run.
//
// 2. Accumulation (pkg/batcher): a registry of keyed queues. Each queue
// collects items and flushes them to its callback once it holds MaxSize
// items or has seen no insert for Throttle. Only one flush per queue runs
// at a time; items added meanwhile go to the next one.
//
// 3. Notification glue (pkg/notify, pkg/server): canonicalizes event names,
// feeds every notification to one queue per handler registration and
// scope, and splits report updates into their sub-events.
//
// # Quick Start
//
// Extract a CSV resource in chunks of 500 records:
//
//	import (
//	    "github.com/ajitpratap0/conduit/pkg/clients"
//	    "github.com/ajitpratap0/conduit/pkg/decode"
//	    "github.com/ajitpratap0/conduit/pkg/extract"
//	)
//
//	fetcher := clients.NewSchemeFetcher(clients.NewHTTPClient(clients.DefaultHTTPConfig(), log))
//	ex := extract.New(fetcher, extract.WithLogger(log))
//	ok, err := ex.Extract(ctx, extract.Request{
//	    Body:      extract.Body{URL: "https://example.com/users.csv.gz", Format: decode.FormatCSV},
//	    BatchSize: 500,
//	    Handler:   upsertUsers,
//	})
//
// Batch user updates per organization and ship:
//
//	registry := batcher.NewRegistry[notify.Notification](batcher.WithLogger(log))
//	router := notify.NewRouter(registry, notify.WithLogger(log)).
//	    Handle("user:update", syncUsers, batcher.Options{MaxSize: 100, Throttle: 5 * time.Second})
//	srv := server.New(cfg.Server, router, server.WithLogger(log))
//
// # Configuration
//
// Every component reads a section of config.Config, loaded from YAML with
// ${VAR_NAME} substitution and CONDUIT_* overrides. See pkg/config.
//
// # Command Line
//
//	conduit version
//	conduit extract --url s3://bucket/export.json --format json
//	conduit serve --addr :8082 --route user:update --events
package conduit
