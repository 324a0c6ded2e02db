// Package extract runs the external scoreboard recognition tool and decodes
// its JSON output.
//
// The tool is invoked once per image as a subprocess: `<command> <args...>
// <image>`. It prints a single JSON document on stdout. The subprocess runs
// under a hard timeout and behind a circuit breaker so a wedged or missing
// tool fails uploads fast instead of piling them up.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pable/go-val-metrics/internal/logging"
	"github.com/pable/go-val-metrics/internal/metrics"
	"github.com/pable/go-val-metrics/internal/model"
)

// ErrExtraction marks every failure to turn an image into a Scoreboard.
var ErrExtraction = errors.New("scoreboard extraction failed")

// Extractor turns a scoreboard image on disk into structured data.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) (*model.Scoreboard, error)
}

// Config configures the subprocess runner.
type Config struct {
	Command string
	Args    []string
	// Env is appended to the current process environment.
	Env     []string
	Timeout time.Duration

	// BreakerFailures consecutive tool failures open the breaker for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultConfig runs the bundled Python extractor.
func DefaultConfig() Config {
	return Config{
		Command:         "python3",
		Args:            []string{"extract_scoreboard.py"},
		Timeout:         60 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Runner is the subprocess-backed Extractor.
type Runner struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker[[]byte]
}

// NewRunner returns a Runner for cfg.
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	r := &Runner{cfg: cfg}
	if cfg.BreakerFailures > 0 {
		const name = "extractor"
		metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
		r.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			// a caller that gave up says nothing about the tool's health
			IsExcluded: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("extractor circuit breaker state change")
				metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			},
		})
	}
	return r
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Extract runs the tool on imagePath and decodes its output.
func (r *Runner) Extract(ctx context.Context, imagePath string) (*model.Scoreboard, error) {
	start := time.Now()
	out, err := r.execute(ctx, imagePath)
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	sb, err := Decode(out)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Debug().
		Str("map", sb.MapName).
		Str("winner", sb.Winner.String()).
		Int("team1_rounds", sb.FirstRounds).
		Int("team2_rounds", sb.SecondRounds).
		Dur("took", time.Since(start)).
		Msg("scoreboard extracted")
	return sb, nil
}

func (r *Runner) execute(ctx context.Context, imagePath string) ([]byte, error) {
	if r.cb == nil {
		return r.run(ctx, imagePath)
	}
	out, err := r.cb.Execute(func() ([]byte, error) {
		return r.run(ctx, imagePath)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: extractor unavailable: %v", ErrExtraction, err)
	}
	return out, err
}

func (r *Runner) run(ctx context.Context, imagePath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, r.cfg.Args...), imagePath)
	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	if len(r.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), r.cfg.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: timed out after %s", ErrExtraction, r.cfg.Timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, fmt.Errorf("%w: %w", ErrExtraction, context.Canceled)
	}
	if err != nil {
		// the tool prints {"error": ...} before exiting non-zero
		if _, derr := Decode(stdout.Bytes()); derr != nil && stdout.Len() > 0 {
			return nil, fmt.Errorf("%w (%v)", derr, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrExtraction, r.cfg.Command, err, msg)
	}
	return stdout.Bytes(), nil
}
