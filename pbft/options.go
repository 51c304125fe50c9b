package pbft

import (
	"fmt"
	"time"
)

const (
	defaultPipelineDepth        = 4
	defaultBatchSize            = 100
	defaultMaxPendingOperations = 1000
	defaultMaxBatchAge          = time.Second
	defaultBaseTimeout          = 500 * time.Millisecond
	defaultMaxTimeoutMultiplier = 8.0
	defaultAdaptationRate       = 0.1
	defaultRTTWindow            = 100
	defaultSignatureCacheSize   = 10_000
	defaultViewChangeTimeout    = 2 * time.Second
)

// Option customises engine behaviour.
type Option func(*options) error

type options struct {
	pipelineDepth        int
	batchSize            int
	maxPendingOperations int
	maxBatchAge          time.Duration
	baseTimeout          time.Duration
	maxTimeoutMultiplier float64
	adaptationRate       float64
	rttWindow            int
	signatureCacheSize   int
	viewChangeTimeout    time.Duration
	compression          CompressionMethod
	broadcaster          Broadcaster
	certificates         CertificateSink
}

func newOptions(o ...Option) (*options, error) {
	opts := &options{
		pipelineDepth:        defaultPipelineDepth,
		batchSize:            defaultBatchSize,
		maxPendingOperations: defaultMaxPendingOperations,
		maxBatchAge:          defaultMaxBatchAge,
		baseTimeout:          defaultBaseTimeout,
		maxTimeoutMultiplier: defaultMaxTimeoutMultiplier,
		adaptationRate:       defaultAdaptationRate,
		rttWindow:            defaultRTTWindow,
		signatureCacheSize:   defaultSignatureCacheSize,
		viewChangeTimeout:    defaultViewChangeTimeout,
		compression:          CompressionZstd,
	}
	for _, apply := range o {
		if err := apply(opts); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// WithPipelineDepth sets how many consensus instances may be in flight at
// once. Defaults to 4.
func WithPipelineDepth(depth int) Option {
	return func(o *options) error {
		if depth < 1 {
			return fmt.Errorf("pipeline depth must be at least 1, got %d", depth)
		}
		o.pipelineDepth = depth
		return nil
	}
}

// WithBatchSize sets the operation count at which a batch is cut. Defaults
// to 100.
func WithBatchSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return fmt.Errorf("batch size must be at least 1, got %d", size)
		}
		o.batchSize = size
		return nil
	}
}

// WithMaxPendingOperations bounds the backlog of unbatched operations.
// Defaults to 1000.
func WithMaxPendingOperations(limit int) Option {
	return func(o *options) error {
		if limit < 1 {
			return fmt.Errorf("pending operation limit must be at least 1, got %d", limit)
		}
		o.maxPendingOperations = limit
		return nil
	}
}

// WithMaxBatchAge sets how long the oldest pending operation may wait before
// a batch is cut regardless of size. Defaults to 1s.
func WithMaxBatchAge(age time.Duration) Option {
	return func(o *options) error {
		if age <= 0 {
			return fmt.Errorf("max batch age must be positive, got %s", age)
		}
		o.maxBatchAge = age
		return nil
	}
}

// WithBaseTimeout sets the unscaled consensus timeout. Defaults to 500ms.
func WithBaseTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("base timeout must be positive, got %s", d)
		}
		o.baseTimeout = d
		return nil
	}
}

// WithMaxTimeoutMultiplier caps the adaptive timeout multiplier. Defaults
// to 8.
func WithMaxTimeoutMultiplier(m float64) Option {
	return func(o *options) error {
		if m < 1 {
			return fmt.Errorf("max timeout multiplier must be at least 1, got %f", m)
		}
		o.maxTimeoutMultiplier = m
		return nil
	}
}

// WithAdaptationRate sets the per-event timeout adjustment rate. Defaults
// to 0.1.
func WithAdaptationRate(rate float64) Option {
	return func(o *options) error {
		if rate <= 0 || rate >= 1 {
			return fmt.Errorf("adaptation rate must be in (0, 1), got %f", rate)
		}
		o.adaptationRate = rate
		return nil
	}
}

// WithRTTWindow sets the size of the round-trip time sliding window used for
// the median estimate. Defaults to 100.
func WithRTTWindow(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return fmt.Errorf("RTT window must be at least 1, got %d", size)
		}
		o.rttWindow = size
		return nil
	}
}

// WithSignatureCacheSize sets the capacity of the verified-signature LRU.
// Defaults to 10000.
func WithSignatureCacheSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return fmt.Errorf("signature cache size must be at least 1, got %d", size)
		}
		o.signatureCacheSize = size
		return nil
	}
}

// WithViewChangeTimeout sets how long a replica stays in view change before
// giving up on the new view. Defaults to 2s.
func WithViewChangeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("view change timeout must be positive, got %s", d)
		}
		o.viewChangeTimeout = d
		return nil
	}
}

// WithCompression sets the batch payload compression. Defaults to zstd.
func WithCompression(m CompressionMethod) Option {
	return func(o *options) error {
		if m != CompressionNone && m != CompressionZstd {
			return fmt.Errorf("unsupported compression method %d", m)
		}
		o.compression = m
		return nil
	}
}

// WithBroadcaster sets the transport used to disseminate messages. Defaults
// to a loopback that delivers messages back to the local engine only.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *options) error {
		if b == nil {
			return fmt.Errorf("broadcaster must not be nil")
		}
		o.broadcaster = b
		return nil
	}
}

// WithCertificateSink attaches a store that receives every quorum
// certificate as it is built.
func WithCertificateSink(s CertificateSink) Option {
	return func(o *options) error {
		if s == nil {
			return fmt.Errorf("certificate sink must not be nil")
		}
		o.certificates = s
		return nil
	}
}
