package storage

import "go.uber.org/zap"

type options struct {
	logger    *zap.Logger
	indexType string
	dims      int
}

// Option configures a store.
type Option func(*options)

// WithLogger sets the storage logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithVectorIndex enables native k-NN for SQLite through in-process indexes of the given
// type ("memory" or "faiss"). An empty type leaves native search disabled.
func WithVectorIndex(indexType string, dimensions int) Option {
	return func(o *options) {
		o.indexType = indexType
		o.dims = dimensions
	}
}

// WithDimensions sets the vector size used for the pgvector column.
func WithDimensions(dimensions int) Option {
	return func(o *options) { o.dims = dimensions }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), dims: 384}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
