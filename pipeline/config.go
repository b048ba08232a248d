package pipeline

import (
	"math"
	"runtime"

	"github.com/pkg/errors"
)

// Default configuration values.
const (
	DefaultShuffleWindow = 100
	DefaultEpsilon       = 0.1
	DefaultChunkSize     = 512
)

// Config of a Pipeline. Create it with NewConfig and adjust it with the WithX methods.
type Config struct {
	// SeqLen every retained source and target sequence has, start and end tokens included.
	SeqLen int

	// BatchSize is the number of examples per batch.
	BatchSize int

	// ShuffleWindow is the capacity of the shuffle buffer used in training. 1 or less disables shuffling.
	ShuffleWindow int

	// Seed of the training shuffle. Each epoch uses a different stream derived from it.
	Seed uint64

	// Epsilon of the label smoothing.
	Epsilon float64

	// Workers encoding lines in parallel. Order is always preserved.
	Workers int

	// ChunkSize is the number of line pairs read at once and distributed among the Workers.
	ChunkSize int

	// DropRemainder drops the last batch of an epoch if it has fewer than BatchSize examples.
	DropRemainder bool

	// Labels enables the computation of the smoothed one-hot Batch.Labels.
	Labels bool

	// Smoother applied to the one-hot labels.
	Smoother LabelSmoother
}

// NewConfig returns the default configuration for sequences of seqLen ids in batches of batchSize.
func NewConfig(seqLen, batchSize int) *Config {
	return &Config{
		SeqLen:        seqLen,
		BatchSize:     batchSize,
		ShuffleWindow: DefaultShuffleWindow,
		Epsilon:       DefaultEpsilon,
		Workers:       runtime.NumCPU(),
		ChunkSize:     DefaultChunkSize,
		Labels:        true,
		Smoother:      SmoothLabels,
	}
}

// WithShuffleWindow sets the capacity of the training shuffle buffer.
func (c *Config) WithShuffleWindow(window int) *Config {
	c.ShuffleWindow = window
	return c
}

// WithSeed sets the seed of the training shuffle.
func (c *Config) WithSeed(seed uint64) *Config {
	c.Seed = seed
	return c
}

// WithEpsilon sets the label smoothing epsilon.
func (c *Config) WithEpsilon(epsilon float64) *Config {
	c.Epsilon = epsilon
	return c
}

// WithWorkers sets the number of goroutines encoding lines. 1 or less encodes sequentially.
func (c *Config) WithWorkers(workers int) *Config {
	c.Workers = workers
	return c
}

// WithChunkSize sets the number of line pairs read at once.
func (c *Config) WithChunkSize(chunkSize int) *Config {
	c.ChunkSize = chunkSize
	return c
}

// WithDropRemainder configures whether the last incomplete batch of an epoch is dropped.
func (c *Config) WithDropRemainder(drop bool) *Config {
	c.DropRemainder = drop
	return c
}

// WithLabels configures whether Batch.Labels is computed. It's the largest part of a batch
// ([batch, seq_len-1, vocab_size]), so disable it if only the ids are used.
func (c *Config) WithLabels(labels bool) *Config {
	c.Labels = labels
	return c
}

// WithSmoother sets the label smoothing function.
func (c *Config) WithSmoother(smoother LabelSmoother) *Config {
	c.Smoother = smoother
	return c
}

// Validate the configuration.
func (c *Config) Validate() error {
	if c.SeqLen < 2 {
		return errors.Errorf("SeqLen must be at least 2 (start and end tokens), got %d", c.SeqLen)
	}
	if c.BatchSize < 1 {
		return errors.Errorf("BatchSize must be positive, got %d", c.BatchSize)
	}
	if c.ChunkSize < 1 {
		return errors.Errorf("ChunkSize must be positive, got %d", c.ChunkSize)
	}
	if math.IsNaN(c.Epsilon) || c.Epsilon < 0 || c.Epsilon > 1 {
		return errors.Errorf("Epsilon must be in [0, 1], got %g", c.Epsilon)
	}
	if c.Labels && c.Smoother == nil {
		return errors.New("Smoother must be set when Labels are enabled")
	}
	return nil
}
