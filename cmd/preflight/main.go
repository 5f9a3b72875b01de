// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/probe"
)

func main() {
	if !run(os.Stdout, os.Stderr, config.FromEnv(), nil) {
		os.Exit(1)
	}
}

// run prints one line per check and reports whether deployment can proceed.
// A nil resolver uses the OS resolver.
func run(stdout, stderr io.Writer, cfg config.Config, resolver probe.Resolver) bool {
	passed := true
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		passed = false
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fail(e.Error())
		}
	} else {
		ok("API_ADDR=" + cfg.Addr)
	}

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty (prune is open to anyone who can reach the API).")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys configured; read routes are open.")
	}

	switch {
	case cfg.DatabaseURL != "":
		ok("DATABASE_URL present (postgres store)")
	case cfg.Store == "memory":
		warn("STORE=memory; history is lost on restart.")
	default:
		ok("sqlite store in " + cfg.DataDir)
	}

	if cfg.PruneSchedule == "" {
		warn("PRUNE_SCHEDULE empty; history grows until pruned via the API.")
	} else {
		ok(fmt.Sprintf("prune %q keeps %d days", cfg.PruneSchedule, cfg.RetentionDays))
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin may call the API from a browser.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	providers, err := config.LoadProviders(cfg.ProvidersPath)
	if err != nil {
		fail(err.Error())
		return false
	}
	for key, perr := range providers.Invalid {
		fail(fmt.Sprintf("provider %s: %v", key, perr))
	}

	for _, key := range probe.Defaults(nil).Keys() {
		p := providers.Lookup(key)
		switch {
		case p == nil:
			warn(key + " not configured; it will report disabled.")
		case !p.IsEnabled():
			warn(key + " disabled")
		default:
			if p.APIKey == "" {
				warn(key + " has no api_key")
			}
			if p.Model == "" {
				fail(key + " has no model")
				continue
			}
			if p.CAFile != "" {
				if _, err := probe.HTTPClient(*p); err != nil {
					fail(fmt.Sprintf("%s ca_file: %v", key, err))
					continue
				}
			}
			host := probe.DefaultHosts[key]
			if p.BaseURL != "" {
				host = probe.HostOf(p.BaseURL)
			}
			if host == "" {
				fail(key + " has no base_url")
				continue
			}
			if dns := probe.CheckDNS(context.Background(), resolver, host); dns.Class != probe.DNSResolves {
				warn(fmt.Sprintf("%s host %s: %s %s", key, host, dns.Class, dns.ResolverError))
			}
			ok(key + " ready (" + p.Model + ")")
		}
	}

	if passed {
		ok("preflight passed")
	}
	return passed
}
