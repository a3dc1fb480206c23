package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kerbx/internal/broadcast"
	"kerbx/internal/flightplan"
	"kerbx/internal/logger"
	"kerbx/internal/messaging"
	"kerbx/internal/planner"
)

func main() {
	var (
		serviceLogLevel int
		logFile         string
		listen          string
		planFile        string
		launch          bool
		countdown       uint
		httpAddr        string
		redisAddr       string
		buffer          int
		command         string
	)
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.StringVar(&logFile, "log-file", "", "Also write JSON logs to this file, rotated")
	flag.StringVar(&listen, "listen", planner.DefaultListen, "Address to accept avionics connections on")
	flag.StringVar(&planFile, "plan", "", "Flight plan to upload to each vehicle (.json or .zst)")
	flag.BoolVar(&launch, "launch", false, "Request launch right after uploading the plan")
	flag.UintVar(&countdown, "countdown", 10, "T-minus in seconds sent with -launch")
	flag.StringVar(&httpAddr, "http", "", "Observer HTTP API address (empty disables)")
	flag.StringVar(&redisAddr, "redis", "", "Redis address to mirror envelopes into (empty disables)")
	flag.IntVar(&buffer, "buffer", broadcast.DefaultBuffer, "Per-subscriber buffer in packets")
	flag.StringVar(&command, "command", "", "Send an operator command (launch, land, abort) through -redis and exit")

	flag.Parse()

	l, err := logger.Open(logger.LogLevel(serviceLogLevel), logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	if command != "" {
		if err := sendCommand(l, redisAddr, command); err != nil {
			l.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}

	cfg := planner.DefaultConfig()
	cfg.Listen = listen
	cfg.Launch = launch
	cfg.Countdown = uint32(countdown)
	if planFile != "" {
		if cfg.Plan, err = flightplan.LoadFile(planFile); err != nil {
			l.Fatalf("Failed to load flight plan: %v", err)
		}
	} else if launch {
		l.Fatalf("-launch needs -plan")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, l, cfg, httpAddr, redisAddr, buffer); err != nil {
		l.Errorf("Flight planner stopped: %v", err)
		os.Exit(1)
	}
	l.Infof("Shutdown complete")
}

func run(ctx context.Context, l *logger.Logger, cfg planner.Config, httpAddr, redisAddr string, buffer int) error {
	hub := broadcast.NewHub()
	defer hub.Close()

	srv, err := planner.Listen(cfg, hub, l.WithTag("server"))
	if err != nil {
		return err
	}

	var redis *messaging.RedisClient
	if redisAddr != "" {
		redis = messaging.NewRedisClient(redisAddr, l.WithTag("redis"), messaging.Callbacks{})
		if err := redis.Connect(); err != nil {
			return err
		}
		defer redis.Close()
	}

	eg, ctx := errgroup.WithContext(ctx)

	logSub := hub.Subscribe("log", buffer)
	eg.Go(func() error { return planner.LogPackets(ctx, logSub, l.WithTag("packets")) })

	if redis != nil {
		relaySub := hub.Subscribe("redis", buffer)
		eg.Go(func() error { return planner.Relay(ctx, relaySub, redis, l.WithTag("relay")) })
	}

	if httpAddr != "" {
		obs := planner.NewObserver(hub, buffer, l.WithTag("http"))
		latestSub := hub.Subscribe("latest", buffer)
		eg.Go(func() error { return obs.Track(ctx, latestSub) })

		httpServer := &http.Server{Addr: httpAddr, Handler: obs.Handler()}
		eg.Go(func() error {
			l.Infof("Starting HTTP server on %s", httpAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		err := srv.Serve(ctx)
		// Subscribers stop once the hub closes.
		hub.Close()
		return err
	})

	return eg.Wait()
}

// sendCommand queues cmd for the avionics and reports the state it was in.
func sendCommand(l *logger.Logger, redisAddr, command string) error {
	cmd, err := messaging.ParseCommand(command)
	if err != nil {
		return err
	}
	if redisAddr == "" {
		return errors.New("-command needs -redis")
	}

	redis := messaging.NewRedisClient(redisAddr, l.WithTag("redis"), messaging.Callbacks{})
	defer redis.Close()
	if err := redis.Connect(); err != nil {
		return err
	}

	state, err := redis.GetHashField(messaging.AvionicsHash, "state")
	if err != nil {
		return err
	}
	if state == "" {
		state = "unknown"
	}
	l.Infof("Avionics state is %s", state)

	return redis.SendCommand(messaging.CommandList, string(cmd))
}
