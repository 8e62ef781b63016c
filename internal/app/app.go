// Package app wires the hub, the logging router and the HTTP surface into a
// runnable server process.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	server "tracks-and-trains/server"
	servernet "tracks-and-trains/server/internal/net"
	"tracks-and-trains/server/internal/sim"
	"tracks-and-trains/server/internal/telemetry"
	"tracks-and-trains/server/logging"
	loggingSinks "tracks-and-trains/server/logging/sinks"
)

type Config struct {
	Logger telemetry.Logger
}

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	if raw := os.Getenv("LOG_SINKS"); raw != "" {
		logConfig.EnabledSinks = strings.Split(raw, ",")
	}
	if !logConfig.HasSink("sse") {
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "sse")
	}

	var namedSinks []logging.NamedSink
	if logConfig.HasSink("console") {
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, logging.ConsoleConfig{}),
		})
	}
	if path := os.Getenv("LOG_JSON_PATH"); path != "" && logConfig.HasSink("json") {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open json log file: %w", err)
		}
		defer file.Close()
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval),
		})
	}
	eventSink := loggingSinks.NewSSESink("events")
	namedSinks = append(namedSinks, logging.NamedSink{Name: "sse", Sink: eventSink})

	router, err := logging.NewRouter(nil, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(ctx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	simCfg := sim.Config{}
	if raw := os.Getenv("TICK_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			simCfg.TickRate = value
		} else {
			telemetryLogger.Printf("invalid TICK_RATE=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("COMMAND_BUFFER_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			simCfg.CommandBufferSize = value
		} else {
			telemetryLogger.Printf("invalid COMMAND_BUFFER_SIZE=%q: %v", raw, err)
		}
	}

	metrics := logging.NewMetrics()
	hub := server.NewHub(simCfg, server.HubDeps{
		Publisher: router,
		Metrics:   metrics,
		Logger:    telemetryLogger,
	})

	stop := make(chan struct{})
	go hub.RunSimulation(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		Events:    eventSink,
		ClientDir: os.Getenv("CLIENT_DIR"),
	})

	addr := ":8080"
	if raw := os.Getenv("LISTEN_ADDR"); raw != "" {
		addr = raw
	}
	srv := &http.Server{Addr: addr, Handler: handler}
	telemetryLogger.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
