package engine

import (
	"runtime"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Karannshah1/Financial-Systems/internal/commit"
	"github.com/Karannshah1/Financial-Systems/internal/logging"
)

// CommitStrategy selects the validation algorithm a submission's commit
// uses.
type CommitStrategy = commit.Strategy

const (
	MVCC     = commit.MVCC
	ModCount = commit.ModCount
	HTMFast  = commit.HTMFast
)

// Config is the engine-wide configuration. Per-submission SubmitOptions
// can override MaxAttempts and CommitStrategy for an individual Submit
// call.
type Config struct {
	Workers               int
	MaxAttempts           int
	BackoffBase           time.Duration
	BackoffCap            time.Duration
	CommitStrategy        CommitStrategy
	HTMSuccessProbability float64
	AllowImplicitCreate   bool
	RetryOnDomainError    bool
	Logger                *zap.Logger
}

// DefaultConfig returns the engine's out-of-the-box configuration.
func DefaultConfig() Config {
	return Config{
		Workers:               runtime.NumCPU(),
		MaxAttempts:           3,
		BackoffBase:           time.Millisecond,
		BackoffCap:            4 * time.Millisecond,
		CommitStrategy:        MVCC,
		HTMSuccessProbability: 0.9,
		AllowImplicitCreate:   false,
		RetryOnDomainError:    false,
		Logger:                logging.New(zapcore.InfoLevel),
	}
}

// Option mutates a Config before the engine is built.
type Option func(*Config)

func WithWorkers(n int) Option     { return func(c *Config) { c.Workers = n } }
func WithMaxAttempts(n int) Option { return func(c *Config) { c.MaxAttempts = n } }

func WithBackoff(base, capDuration time.Duration) Option {
	return func(c *Config) {
		c.BackoffBase = base
		c.BackoffCap = capDuration
	}
}

func WithCommitStrategy(s CommitStrategy) Option { return func(c *Config) { c.CommitStrategy = s } }
func WithHTMSuccessProbability(p float64) Option {
	return func(c *Config) { c.HTMSuccessProbability = p }
}
func WithAllowImplicitCreate(allow bool) Option {
	return func(c *Config) { c.AllowImplicitCreate = allow }
}
func WithRetryOnDomainError(retry bool) Option {
	return func(c *Config) { c.RetryOnDomainError = retry }
}
func WithLogger(l *zap.Logger) Option { return func(c *Config) { c.Logger = l } }

// SubmitOptions overrides engine defaults for one submission.
type SubmitOptions struct {
	Priority       int
	Label          string
	MaxAttempts    int            // 0 => engine default
	CommitStrategy CommitStrategy // only meaningful when explicitly set via WithSubmitCommitStrategy
	strategySet    bool
}

// SubmitOption mutates a SubmitOptions before a closure is enqueued.
type SubmitOption func(*SubmitOptions)

func WithPriority(p int) SubmitOption { return func(o *SubmitOptions) { o.Priority = p } }
func WithLabel(l string) SubmitOption { return func(o *SubmitOptions) { o.Label = l } }
func WithSubmitMaxAttempts(n int) SubmitOption {
	return func(o *SubmitOptions) { o.MaxAttempts = n }
}
func WithSubmitCommitStrategy(s CommitStrategy) SubmitOption {
	return func(o *SubmitOptions) { o.CommitStrategy = s; o.strategySet = true }
}
