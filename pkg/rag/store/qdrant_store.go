package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/log"
)

const (
	connectTimeout = 30 * time.Second

	partitionKey = "partition"
)

var waitTrue = true

// Config selects the qdrant endpoint and the logical namespace. Database
// becomes a collection-name prefix; partitions are an indexed payload
// field inside the collection.
type Config struct {
	Host       string
	Port       int
	Database   string
	Collection string
	Index      string
}

// QdrantStore implements domain.VectorStore on a qdrant instance over
// gRPC.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	index       IndexProvider
	logger      *slog.Logger
}

// NewQdrantStore connects to qdrant and resolves the index kind. The
// collection itself is created lazily by EnsureCollection once the
// embedding dimensionality is known.
func NewQdrantStore(cfg Config) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrConfigurationError)
	}
	index, err := NewIndexProvider(cfg.Index)
	if err != nil {
		return nil, err
	}

	collection := cfg.Collection
	if cfg.Database != "" {
		collection = cfg.Database + "__" + collection
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: connect to qdrant at %s: %v", domain.ErrVectorStoreFailed, addr, err)
	}

	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		index:       index,
		logger:      log.WithModule("store"),
	}, nil
}

// EnsureCollection creates the collection if it does not exist, with the
// configured index kind, cosine distance and payload indexes on the
// fields the search layer filters by. Existing collections are left
// untouched.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	listResp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", domain.ErrVectorStoreFailed, err)
	}
	for _, col := range listResp.Collections {
		if col.Name == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig:         s.index.HnswConfig(),
		QuantizationConfig: s.index.QuantizationConfig(),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", domain.ErrVectorStoreFailed, s.collection, err)
	}
	s.logger.Info("created collection",
		"collection", s.collection, "dimensions", dimensions, "index", s.index.Name())

	for field, fieldType := range map[string]pb.FieldType{
		partitionKey:     pb.FieldType_FieldTypeKeyword,
		"file_id":        pb.FieldType_FieldTypeKeyword,
		"file_type":      pb.FieldType_FieldTypeKeyword,
		"chapter_labels": pb.FieldType_FieldTypeKeyword,
		"page_numbers":   pb.FieldType_FieldTypeInteger,
		"image_number":   pb.FieldType_FieldTypeInteger,
	} {
		ft := fieldType
		_, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      &ft,
			Wait:           &waitTrue,
		})
		if err != nil {
			return fmt.Errorf("%w: index payload field %s: %v", domain.ErrVectorStoreFailed, field, err)
		}
	}
	return nil
}

// EnsurePartition is a no-op beyond validation: partitions are payload
// values, not collection structure.
func (s *QdrantStore) EnsurePartition(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: partition name is required", domain.ErrInvalidInput)
	}
	return ctx.Err()
}

// InsertPrepared upserts prepared records into a partition. Point IDs
// are fresh UUIDs; re-ingesting the same document therefore appends.
func (s *QdrantStore) InsertPrepared(ctx context.Context, records []domain.Record, partition string) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(records))
	for _, rec := range records {
		vector := make([]float32, len(rec.Vector))
		for i, v := range rec.Vector {
			vector[i] = float32(v)
		}

		payload := make(map[string]*pb.Value, len(rec.Payload)+1)
		for k, v := range rec.Payload {
			val, err := payloadValue(v)
			if err != nil {
				return fmt.Errorf("%w: field %s: %v", domain.ErrInvalidInput, k, err)
			}
			payload[k] = val
		}
		if partition != "" {
			payload[partitionKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: partition}}
		}

		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.New().String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}},
			},
			Payload: payload,
		})
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           &waitTrue,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d points: %v", domain.ErrVectorStoreFailed, len(points), err)
	}
	return nil
}

// Search runs a similarity query scoped to a partition, optionally
// narrowed by a filter expression.
func (s *QdrantStore) Search(ctx context.Context, vector []float64, limit int, partition, filterExpr string) ([]domain.SearchHit, error) {
	parsed, err := ParseFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, vector, limit, combineFilters(partitionFilter(partition), parsed))
}

// SearchByPartition is Search without a filter expression.
func (s *QdrantStore) SearchByPartition(ctx context.Context, vector []float64, partition string, limit int) ([]domain.SearchHit, error) {
	return s.search(ctx, vector, limit, partitionFilter(partition))
}

func (s *QdrantStore) search(ctx context.Context, vector []float64, limit int, filter *pb.Filter) ([]domain.SearchHit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}

	query := make([]float32, len(vector))
	for i, v := range vector {
		query[i] = float32(v)
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         query,
		Filter:         filter,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrVectorStoreFailed, err)
	}

	hits := make([]domain.SearchHit, 0, len(resp.Result))
	for _, point := range resp.Result {
		hit := hitFromPayload(point.Id.GetUuid(), point.Payload)
		hit.Score = float64(point.Score)
		hits = append(hits, hit)
	}
	SortHits(hits)
	return hits, nil
}

// ScrollPartition pages through a partition without a query vector,
// returning up to limit records (all of them when limit <= 0).
func (s *QdrantStore) ScrollPartition(ctx context.Context, partition string, limit int) ([]domain.SearchHit, error) {
	filter := partitionFilter(partition)

	var hits []domain.SearchHit
	var offset *pb.PointId
	pageSize := uint32(256)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          &pageSize,
			Offset:         offset,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scroll partition %s: %v", domain.ErrVectorStoreFailed, partition, err)
		}
		for _, point := range resp.Result {
			hits = append(hits, hitFromPayload(point.Id.GetUuid(), point.Payload))
			if limit > 0 && len(hits) >= limit {
				return hits, nil
			}
		}
		if resp.NextPageOffset == nil {
			return hits, nil
		}
		offset = resp.NextPageOffset
	}
}

// CountByFileID counts stored records carrying a document ID, across all
// partitions.
func (s *QdrantStore) CountByFileID(ctx context.Context, fileID string) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Filter:         fileIDFilter(fileID),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count file %s: %v", domain.ErrVectorStoreFailed, fileID, err)
	}
	return int(resp.Result.GetCount()), nil
}

// DeleteByFileID removes every record of a document, across all
// partitions.
func (s *QdrantStore) DeleteByFileID(ctx context.Context, fileID string) error {
	if fileID == "" {
		return fmt.Errorf("%w: file ID is required", domain.ErrInvalidInput)
	}
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: fileIDFilter(fileID)},
		},
		Wait: &waitTrue,
	})
	if err != nil {
		return fmt.Errorf("%w: delete file %s: %v", domain.ErrVectorStoreFailed, fileID, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func partitionFilter(partition string) *pb.Filter {
	if partition == "" {
		return nil
	}
	return &pb.Filter{Must: []*pb.Condition{
		fieldCondition(partitionKey, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: partition}}, nil),
	}}
}

func fileIDFilter(fileID string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{
		fieldCondition("file_id", &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fileID}}, nil),
	}}
}

func combineFilters(a, b *pb.Filter) *pb.Filter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return &pb.Filter{Must: []*pb.Condition{filterCondition(a), filterCondition(b)}}
	}
}

func payloadValue(v interface{}) (*pb.Value, error) {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}, nil
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}, nil
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}, nil
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}, nil
	case []int:
		values := make([]*pb.Value, len(val))
		for i, n := range val {
			values[i] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}, nil
	case []string:
		values := make([]*pb.Value, len(val))
		for i, str := range val {
			values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: str}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

func hitFromPayload(id string, payload map[string]*pb.Value) domain.SearchHit {
	hit := domain.SearchHit{
		ID:      id,
		Payload: make(map[string]interface{}, len(payload)),
	}
	for k, v := range payload {
		hit.Payload[k] = flattenValue(v)
	}
	if v, ok := payload["text"]; ok {
		hit.Text = v.GetStringValue()
	}
	if v, ok := payload["file_id"]; ok {
		hit.FileID = v.GetStringValue()
	}
	if v, ok := payload["file_name"]; ok {
		hit.FileName = v.GetStringValue()
	}
	if v, ok := payload["file_type"]; ok {
		hit.FileType = v.GetStringValue()
	}
	if v, ok := payload["pages"]; ok {
		hit.Pages = v.GetStringValue()
	}
	if v, ok := payload["chapters"]; ok {
		hit.Chapters = v.GetStringValue()
	}
	return hit
}

func flattenValue(v *pb.Value) interface{} {
	switch kind := v.Kind.(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_ListValue:
		items := make([]interface{}, 0, len(kind.ListValue.Values))
		for _, item := range kind.ListValue.Values {
			items = append(items, flattenValue(item))
		}
		return items
	default:
		return nil
	}
}

// SortHits orders hits by descending score, breaking ties by ID so
// result order is stable.
func SortHits(hits []domain.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
