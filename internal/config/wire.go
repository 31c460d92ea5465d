package config

import (
	"promptshelf/internal/aggregate"
	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/scrapers/prompts"
	"promptshelf/lib/restyutil"
)

// NewOrchestrator wires a single prompts client into every source the
// orchestrator needs. dump may be nil.
func (c Config) NewOrchestrator(tel telemetry.API, dump restyutil.InstrumentOutput) aggregate.Orchestrator {
	opts := c.ClientOptions()
	opts.Dump = dump
	client := prompts.NewClient(opts, tel)
	enricher := prompts.NewEnricher(client, client, c.StateExtractor(), tel)
	return aggregate.NewOrchestrator(client, client, enricher, c.OrchestratorOptions(), tel)
}
