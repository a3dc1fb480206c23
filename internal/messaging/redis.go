package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kerbx/internal/envelope"
	"kerbx/internal/logger"
	"kerbx/internal/types"
)

const (
	CommandList = "avionics:command"

	AvionicsHash    = "avionics"
	AvionicsChannel = "avionics"

	PlannerHash    = "flightplanner"
	PlannerChannel = "flightplanner"

	FaultStream = "events:faults"
)

// Command is an operator command pushed onto CommandList.
type Command string

const (
	CommandLaunch Command = "launch"
	CommandLand   Command = "land"
	CommandAbort  Command = "abort"
)

func ParseCommand(value string) (Command, error) {
	switch c := Command(value); c {
	case CommandLaunch, CommandLand, CommandAbort:
		return c, nil
	default:
		return "", fmt.Errorf("invalid avionics command: %s", value)
	}
}

type Callbacks struct {
	CommandCallback func(Command) error
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(addr string, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the operator command listener. Call it once the
// callbacks are in place.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")
	r.wg.Add(1)
	go r.listCommandListener(CommandList, r.handleAvionicsCommand)
	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
		}

		// Short BRPOP timeout so cancellation is noticed.
		result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || r.ctx.Err() != nil {
				r.logger.Infof("Context cancelled, exiting %s listener", key)
				return
			}
			r.logger.Warnf("Error reading from %s list: %v", key, err)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if len(result) >= 2 { // BRPOP returns [key, value]
			value := result[1]
			r.logger.Debugf("Received command from %s: %s", key, value)
			if err := handler(value); err != nil {
				r.logger.Warnf("Error handling %s command: %v", key, err)
			}
		}
	}
}

func (r *RedisClient) handleAvionicsCommand(value string) error {
	if r.callbacks.CommandCallback == nil {
		return nil
	}
	cmd, err := ParseCommand(value)
	if err != nil {
		return err
	}
	return r.callbacks.CommandCallback(cmd)
}

// SendCommand pushes a command onto a list, as an operator console would.
func (r *RedisClient) SendCommand(key, command string) error {
	if err := r.client.LPush(r.ctx, key, command).Err(); err != nil {
		return fmt.Errorf("failed to send command '%s' to '%s': %w", command, key, err)
	}
	r.logger.Infof("Sent command '%s' to '%s'", command, key)
	return nil
}

func (r *RedisClient) PublishAvionicsState(state types.AvionicsState, message string) error {
	r.logger.Debugf("Publishing avionics state: %s", state)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, AvionicsHash,
		"state", string(state),
		"state:timestamp", time.Now().Format(time.RFC3339),
		"error", message,
	)
	pipe.Publish(r.ctx, AvionicsChannel, "state")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish avionics state: %w", err)
	}
	return nil
}

// PublishStep records the plan cursor after a step was dispatched.
func (r *RedisClient) PublishStep(step, total uint32, action string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, AvionicsHash,
		"step", strconv.FormatUint(uint64(step), 10),
		"step:total", strconv.FormatUint(uint64(total), 10),
		"step:action", action,
	)
	pipe.Publish(r.ctx, AvionicsChannel, "step")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish step: %w", err)
	}
	return nil
}

// ReportFault appends the fault to the shared fault event stream.
func (r *RedisClient) ReportFault(state types.AvionicsState, description string) error {
	r.logger.Infof("Reporting fault: %s", description)

	pipe := r.client.Pipeline()
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: FaultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group":       "avionics",
			"state":       string(state),
			"description": description,
			"ts":          time.Now().Unix(),
		},
	})
	pipe.Publish(r.ctx, AvionicsChannel, "fault")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to report fault: %w", err)
	}
	return nil
}

// PublishEnvelope stores the latest envelope of each kind in PlannerHash as
// JSON and announces the kind on PlannerChannel. Empty keep-alives only
// refresh the timestamp.
func (r *RedisClient) PublishEnvelope(e envelope.Envelope, received time.Time) error {
	kind := e.Kind().String()

	pipe := r.client.Pipeline()
	if e.Kind() != envelope.KindEmpty {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s for redis: %w", kind, err)
		}
		pipe.HSet(r.ctx, PlannerHash, kind, string(body))
	}
	pipe.HSet(r.ctx, PlannerHash, "last-seen", received.Format(time.RFC3339Nano))
	pipe.Publish(r.ctx, PlannerChannel, kind)
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish %s: %w", kind, err)
	}
	return nil
}

// GetHashField reads a field from a Redis hash using HGET. A missing field is
// the empty string.
func (r *RedisClient) GetHashField(hash, field string) (string, error) {
	value, err := r.client.HGet(r.ctx, hash, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get hash field %s from %s: %w", field, hash, err)
	}
	return value, nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Debugf("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Warnf("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
