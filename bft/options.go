package bft

import (
	"errors"
	"fmt"
	"time"
)

var (
	defaultMinParticipants    = 4
	defaultByzantineThreshold = 0.33
	defaultRoundTimeout       = 10 * time.Second
	defaultSlashingPenalty    = uint64(100)
)

// Option represents a configurable parameter of the engine.
type Option func(*options) error

type options struct {
	minParticipants    int
	byzantineThreshold float64
	roundTimeout       time.Duration
	slashingPenalty    uint64
}

func newOptions(o ...Option) (*options, error) {
	opts := &options{
		minParticipants:    defaultMinParticipants,
		byzantineThreshold: defaultByzantineThreshold,
		roundTimeout:       defaultRoundTimeout,
		slashingPenalty:    defaultSlashingPenalty,
	}
	for _, apply := range o {
		if err := apply(opts); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// WithMinParticipants sets the minimum number of active participants required
// to start a round and to transition to voting. Defaults to 4 if unspecified.
func WithMinParticipants(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("minimum participants must be at least 1, got %d", n)
		}
		o.minParticipants = n
		return nil
	}
}

// WithByzantineThreshold sets the assumed maximum fraction of faulty
// participants. The vote quorum is n - floor(n*threshold). Defaults to 0.33
// if unspecified; must be in [0, 1/3] for the quorum to guarantee agreement.
func WithByzantineThreshold(t float64) Option {
	return func(o *options) error {
		if t < 0 || t > 1.0/3.0 {
			return errors.New("byzantine threshold must be in [0, 1/3]")
		}
		o.byzantineThreshold = t
		return nil
	}
}

// WithRoundTimeout sets the deadline applied to the proposing and voting
// phases of each round. Defaults to 10 seconds if unspecified.
func WithRoundTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("round timeout must be positive")
		}
		o.roundTimeout = d
		return nil
	}
}

// WithSlashingPenalty sets the penalty recorded on each slashing event.
// Defaults to 100 if unspecified.
func WithSlashingPenalty(p uint64) Option {
	return func(o *options) error {
		o.slashingPenalty = p
		return nil
	}
}
