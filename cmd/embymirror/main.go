package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"embymirror/internal/coordinator"
	"embymirror/internal/emby"
	"embymirror/internal/events"
	"embymirror/internal/httputil"
	"embymirror/internal/reconciler"
	"embymirror/internal/server"
)

func main() {
	host := os.Getenv("EMBY_HOST")
	if host == "" {
		log.Fatal("EMBY_HOST is required")
	}
	apiKey := os.Getenv("EMBY_API_KEY")
	if apiKey == "" {
		log.Fatal("EMBY_API_KEY is required")
	}
	port := envInt("EMBY_PORT", 8096)
	ssl := os.Getenv("EMBY_SSL") == "true"
	listenAddr := envOr("LISTEN_ADDR", ":7936")
	corsOrigin := os.Getenv("CORS_ORIGIN")
	interval := time.Duration(envInt("POLL_INTERVAL_SECONDS", 10)) * time.Second

	var ignoredClients []string
	if v := os.Getenv("IGNORED_CLIENTS"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				ignoredClients = append(ignoredClients, name)
			}
		}
	}

	conn := emby.Connection{
		Host:     host,
		Port:     port,
		APIKey:   apiKey,
		SSL:      ssl,
		DeviceID: envOr("EMBY_DEVICE_ID", "embymirror"),
	}
	if err := httputil.ValidateServerURL(conn.BaseURL()); err != nil {
		log.Fatalf("invalid server address: %v", err)
	}

	httpClient := httputil.NewClient()
	client := emby.New(conn, httpClient)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity, err := client.Connect(ctx)
	if err != nil {
		if errors.Is(err, emby.ErrInvalidAuth) {
			log.Fatal("authentication failed: the API key was rejected")
		}
		log.Fatalf("connecting to %s: %v", conn.BaseURL(), err)
	}
	log.Printf("connected to %s (%s)", identity.Title, identity.UniqueID)

	registry := events.NewRegistry()
	registry.Subscribe(events.ServerShuttingDown, func(any) {
		log.Printf("%s reports it is shutting down", identity.Title)
	})
	registry.Subscribe(events.ServerRestarting, func(any) {
		log.Printf("%s reports it is restarting", identity.Title)
	})

	coord := coordinator.New(client, registry, interval)
	coord.WatchEvents()

	rec := reconciler.New(ignoredClients)
	rec.OnNew(func(handles []reconciler.Handle) {
		for _, h := range handles {
			log.Printf("discovered %s handle for %s (%s)", h.Kind, h.DeviceName, h.ClientName)
		}
	})
	sub := coord.Subscribe()
	go rec.Run(ctx, sub)

	coord.Start(ctx)
	defer coord.Stop()

	socket := emby.NewSocket(conn, registry)
	socket.Start(ctx)
	defer socket.Close()

	srv := server.NewServer(client, coord,
		server.WithReconciler(rec),
		server.WithIdentity(identity),
		server.WithCORSOrigin(corsOrigin),
	)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("embymirror listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("ignoring non-numeric %s=%q", key, v)
	}
	return fallback
}
