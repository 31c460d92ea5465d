package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"promptshelf/internal/components/chrono"
	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/config"
	"promptshelf/internal/scrapers/prompts"
	"promptshelf/internal/store"
	"promptshelf/lib/restyutil"
	libtelemetry "promptshelf/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
)

type globalsKeyType int

var globalsKey globalsKeyType

type globals struct {
	cfg  config.Config
	tel  telemetry.API
	otel libtelemetry.Telemetry
}

func withGlobals(ctx context.Context, value *globals) context.Context {
	return context.WithValue(ctx, globalsKey, value)
}

func getGlobals(ctx context.Context) *globals {
	return ctx.Value(globalsKey).(*globals)
}

// dumpOutput returns nil unless --dump-http was given.
func dumpOutput() (restyutil.InstrumentOutput, error) {
	if *dumpHttp == "" {
		return nil, nil
	}
	return restyutil.NewFilesystemOutput(*dumpHttp)
}

// openStore prefers the path given on the command line over the configured database.
func openStore(ctx context.Context, cfg config.Config, path string) (store.Store, error) {
	dbcfg := cfg.Database
	if path != "" {
		dbcfg = store.Config{File: path}
	}
	if dbcfg.IsZero() {
		return store.Store{}, fmt.Errorf("no database, pass --db or set database in %s", config.DefaultName)
	}
	db, err := dbcfg.OpenDB()
	if err != nil {
		return store.Store{}, err
	}
	return store.NewStore(ctx, db, chrono.StandardImpl{})
}

// parseIdentity accepts "@username", a numeric account id or a bare username.
func parseIdentity(arg string) (prompts.Identity, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return prompts.Identity{}, fmt.Errorf("identity must not be empty")
	}
	if strings.HasPrefix(arg, "@") {
		return prompts.ByUsername(strings.TrimPrefix(arg, "@")), nil
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err == nil {
		if id <= 0 {
			return prompts.Identity{}, fmt.Errorf("account id must be positive")
		}
		return prompts.ByAccountID(id), nil
	}
	return prompts.ByUsername(arg), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}
