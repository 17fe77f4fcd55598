package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"itemconverter.ai/internal/convert/exec"
	"itemconverter.ai/internal/convert/rules"
	"itemconverter.ai/internal/persistence/gridstore"
	persistlog "itemconverter.ai/internal/persistence/log"
	"itemconverter.ai/internal/sim/catalogs"
	"itemconverter.ai/internal/sim/session"
	"itemconverter.ai/internal/sim/tuning"
	"itemconverter.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory (items.json, recipes.json)")
		tuningPath = flag.String("config", "", "path to converter.yaml (default: <configs>/converter.yaml)")
		rulesDir   = flag.String("rules", "", "rule document directory (overrides rules_dir)")
		token      = flag.String("token", "", "required HELLO auth token (or set CONVERTER_WS_TOKEN)")
		disableDB  = flag.Bool("disable_grid", false, "run without the shared storage grid")
		enablePP   = flag.Bool("pprof", false, "serve /debug/pprof on the main listener")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "converter.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load config: %v", err)
		}
		logger.Printf("config not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if d := strings.TrimSpace(*rulesDir); d != "" {
		tune.RulesDir = d
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	cats.DefaultMaxStack = tune.DefaultMaxStack

	var grids session.GridFunc
	if !*disableDB && strings.TrimSpace(tune.Grid.DBPath) != "" {
		store, err := gridstore.OpenSQLite(tune.Grid.DBPath, tune.Grid.Capacity)
		if err != nil {
			logger.Fatalf("open grid store: %v", err)
		}
		defer store.Close()
		if err := store.SetMeta(context.Background(), "catalog_digest", cats.Digest()); err != nil {
			logger.Printf("grid store: set meta: %v", err)
		}
		grids = func(network string) exec.Grid { return store.Network(network) }
	}

	deps := session.Deps{Logger: logger, Grids: grids}
	if strings.TrimSpace(tune.AuditDir) != "" {
		convLog := persistlog.NewConversionLogger(tune.AuditDir)
		reloadLog := persistlog.NewReloadLogger(tune.AuditDir)
		defer convLog.Close()
		defer reloadLog.Close()
		deps.Audit = convLog
		deps.Reloads = reloadLog
	}

	s := session.New(session.Config{
		TickRateHz:      tune.TickRateHz,
		InventorySlots:  tune.InventorySlots,
		Bidirectional:   tune.BidirectionalByDefault,
		Duplicates:      tune.Duplicates(),
		SpecialTags:     tune.SpecialTags,
		Generators:      tune.RuleGenerators(),
		RulesDir:        tune.RulesDir,
		StarterKit:      tune.StarterStacks(),
		CreativePlayers: tune.CreativePlayers,
		MaxOutputStacks: tune.MaxOutputStacks,
	}, cats, deps)

	entry, err := s.Reload()
	if err != nil {
		logger.Fatalf("build rules: %v", err)
	}
	logger.Printf("rules loaded: generation=%d rules=%d vertices=%d edges=%d", entry.Generation, entry.Rules, entry.Vertices, entry.Edges)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := s.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("session stopped: %v", err)
		}
	}()

	if tune.WatchRules && tune.RulesDir != "" {
		go func() {
			err := rules.Watch(ctx, tune.RulesDir, 0, logger, func() {
				if _, err := s.Reload(); err != nil {
					logger.Printf("reload: %v", err)
				}
			})
			if err != nil && err != context.Canceled {
				logger.Printf("rule watcher stopped: %v", err)
			}
		}()
	}

	wsSrv := ws.NewServer(s, logger)
	wsSrv.Token = strings.TrimSpace(*token)
	if wsSrv.Token == "" {
		wsSrv.Token = strings.TrimSpace(os.Getenv("CONVERTER_WS_TOKEN"))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	if *enablePP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (ws: /v1/ws, metrics: /metrics)", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
