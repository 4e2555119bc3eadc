// Command activities-server runs the Session Coordination Core as a
// standalone HTTP + websocket process, wiring every component from
// internal/ together the way the teacher's InitModule wires a Nakama
// runtime module's RPCs, adapted to a plain net/http.Server lifecycle.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"crab.casa/activities/internal/activity"
	"crab.casa/activities/internal/clock"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/coordinator"
	"crab.casa/activities/internal/httpapi"
	"crab.casa/activities/internal/janitor"
	"crab.casa/activities/internal/log"
	"crab.casa/activities/internal/permit"
	"crab.casa/activities/internal/progression"
	"crab.casa/activities/internal/ratelimit"
	"crab.casa/activities/internal/sockethub"
	"crab.casa/activities/internal/store"
	"crab.casa/activities/internal/triviabank"
	"crab.casa/activities/internal/wsapi"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stderr, zerolog.InfoLevel)

	st := store.New()
	lim := ratelimit.New()
	perm := permit.New()
	hub := sockethub.New(logger)
	bank := triviabank.New()
	reg := activity.NewRegistry(bank, cfg.Activity)
	recorder := progression.NewMem()

	coord := coordinator.New(st, lim, perm, hub, reg, cfg, logger, recorder)
	sched := clock.NewScheduler(coord.TimerFired)
	coord.AttachScheduler(sched)

	httpSrv := httpapi.New(coord, cfg, logger)
	wsHandler := wsapi.New(coord, cfg, logger)
	httpSrv.Router().Get("/activities/session/{id}/stream", wsHandler.ServeHTTP)

	j := janitor.New(coord, cfg.JanitorInterval, logger)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go j.Run(janitorCtx)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpSrv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-lived websocket connections
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Fields(map[string]any{"addr": cfg.HTTPAddr}).Info("activities server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}
