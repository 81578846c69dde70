package store

import (
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// Index kinds select how the collection is built for approximate search.
// Qdrant has no IVF family, so the IVF kinds map onto the closest native
// equivalent: ivf_flat uses the engine defaults and ivf_sq8 adds int8
// scalar quantization. flat disables the HNSW graph entirely for exact
// scans.
const (
	IndexDefault = "default"
	IndexIVFFlat = "ivf_flat"
	IndexHNSW    = "hnsw"
	IndexIVFSQ8  = "ivf_sq8"
	IndexFlat    = "flat"
)

const (
	hnswM           = 16
	hnswEfConstruct = 200
)

// IndexProvider yields the collection-level tuning for one index kind.
type IndexProvider interface {
	Name() string
	HnswConfig() *pb.HnswConfigDiff
	QuantizationConfig() *pb.QuantizationConfig
}

// NewIndexProvider resolves an index kind from the closed set. Unknown
// kinds are a configuration error.
func NewIndexProvider(kind string) (IndexProvider, error) {
	switch kind {
	case "", IndexDefault, IndexIVFFlat:
		return defaultIndex{name: IndexDefault}, nil
	case IndexHNSW:
		return hnswIndex{}, nil
	case IndexIVFSQ8:
		return quantizedIndex{}, nil
	case IndexFlat:
		return flatIndex{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", domain.ErrConfigurationError, kind)
	}
}

type defaultIndex struct{ name string }

func (d defaultIndex) Name() string                             { return d.name }
func (defaultIndex) HnswConfig() *pb.HnswConfigDiff             { return nil }
func (defaultIndex) QuantizationConfig() *pb.QuantizationConfig { return nil }

type hnswIndex struct{}

func (hnswIndex) Name() string { return IndexHNSW }

func (hnswIndex) HnswConfig() *pb.HnswConfigDiff {
	m := uint64(hnswM)
	ef := uint64(hnswEfConstruct)
	return &pb.HnswConfigDiff{M: &m, EfConstruct: &ef}
}

func (hnswIndex) QuantizationConfig() *pb.QuantizationConfig { return nil }

type quantizedIndex struct{}

func (quantizedIndex) Name() string                   { return IndexIVFSQ8 }
func (quantizedIndex) HnswConfig() *pb.HnswConfigDiff { return nil }

func (quantizedIndex) QuantizationConfig() *pb.QuantizationConfig {
	return &pb.QuantizationConfig{
		Quantization: &pb.QuantizationConfig_Scalar{
			Scalar: &pb.ScalarQuantization{Type: pb.QuantizationType_Int8},
		},
	}
}

type flatIndex struct{}

func (flatIndex) Name() string { return IndexFlat }

// A zero M disables graph construction, forcing exact search.
func (flatIndex) HnswConfig() *pb.HnswConfigDiff {
	m := uint64(0)
	return &pb.HnswConfigDiff{M: &m}
}

func (flatIndex) QuantizationConfig() *pb.QuantizationConfig { return nil }
