package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kerbx/internal/core"
	"kerbx/internal/hardware"
	"kerbx/internal/logger"
	"kerbx/internal/messaging"
	"kerbx/internal/vehicle"
)

func main() {
	var (
		serviceLogLevel int
		logFile         string
		plannerAddr     string
		redisAddr       string
		poll            time.Duration
		countdown       uint
		gpio            bool
		abortInput      string
	)
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.StringVar(&logFile, "log-file", "", "Also write JSON logs to this file, rotated")
	flag.StringVar(&plannerAddr, "planner", "127.0.0.1:51961", "Flight planner address")
	flag.StringVar(&redisAddr, "redis", "127.0.0.1:6379", "Redis address for state and commands (empty disables)")
	flag.DurationVar(&poll, "poll", core.DefaultPollInterval, "Executor poll interval")
	flag.UintVar(&countdown, "countdown", core.DefaultCountdown, "T-minus in seconds when launch is commanded without one")
	flag.BoolVar(&gpio, "gpio", false, "Drive the status indicator GPIO lines")
	flag.StringVar(&abortInput, "abort-input", "", "Input device of the abort switch (empty disables)")

	flag.Parse()

	l, err := logger.Open(logger.LogLevel(serviceLogLevel), logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, l, plannerAddr, redisAddr, poll, uint32(countdown), gpio, abortInput); err != nil {
		if errors.Is(err, context.Canceled) {
			l.Infof("Shutdown complete")
			return
		}
		l.Errorf("Avionics stopped: %v", err)
		os.Exit(1)
	}
	l.Infof("Flight complete")
}

func run(ctx context.Context, l *logger.Logger, plannerAddr, redisAddr string, poll time.Duration, countdown uint32, gpio bool, abortInput string) error {
	l.Infof("Starting avionics...")

	var msg core.MessagingClient
	if redisAddr != "" {
		redis := messaging.NewRedisClient(redisAddr, l.WithTag("redis"), messaging.Callbacks{})
		if err := redis.Connect(); err != nil {
			return err
		}
		defer redis.Close()
		msg = redis
	}

	var indicators core.Indicators
	if gpio {
		g := hardware.NewGPIOIndicators(l.WithTag("gpio"), hardware.IndicatorMappings)
		if err := g.Initialize(); err != nil {
			g.Cleanup()
			return err
		}
		defer g.Cleanup()
		indicators = g
	}

	link, err := core.DialLink(ctx, plannerAddr, l.WithTag("link"))
	if err != nil {
		return err
	}

	cfg := core.DefaultConfig()
	cfg.PollInterval = poll
	cfg.Countdown = countdown

	av, err := core.NewAvionics(cfg, link, vehicle.New(vehicle.DefaultConfig()), msg, indicators, l)
	if err != nil {
		link.Close()
		return err
	}
	defer av.Close()

	if msg != nil {
		if err := msg.StartListening(); err != nil {
			return err
		}
	}

	if abortInput != "" {
		sw := hardware.NewAbortSwitch(l.WithTag("abort"), abortInput)
		go func() {
			if err := sw.Monitor(ctx, av.Abort); err != nil && ctx.Err() == nil {
				l.Errorf("Abort switch unavailable: %v", err)
			}
		}()
	}

	return av.Run(ctx)
}
