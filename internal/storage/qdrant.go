/**
 * Qdrant Vector Store for Similar-Form Lookup
 *
 * Indexes an embedding of each processed form's OCR text so the worker can
 * surface previously seen forms with a similar layout. Lookup is advisory;
 * the extraction pipeline never depends on it.
 */

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantClient wraps qdrant gRPC operations for the form vector index
type QdrantClient struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	vectorSize  uint64
}

// SimilarForm is one hit from a similarity search
type SimilarForm struct {
	FormID  string
	Score   float32
	Payload map[string]interface{}
}

// NewQdrantClient connects to qdrant and ensures the collection exists
func NewQdrantClient(url, collection string, vectorSize int) (*QdrantClient, error) {
	if url == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("vector size must be positive, got %d", vectorSize)
	}

	addr := strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")

	conn, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(10*1024*1024)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	client := &QdrantClient{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		vectorSize:  uint64(vectorSize),
	}

	if err := client.ensureCollection(); err != nil {
		conn.Close()
		return nil, err
	}

	return client, nil
}

func (q *QdrantClient) ensureCollection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listResp, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, c := range listResp.Collections {
		if c.Name == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     q.vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}

	return nil
}

// IndexForm upserts a form's embedding keyed by its content-derived form ID
func (q *QdrantClient) IndexForm(ctx context.Context, formID string, vector []float32, payload map[string]interface{}) error {
	if len(vector) != int(q.vectorSize) {
		return fmt.Errorf("vector size mismatch: expected %d, got %d", q.vectorSize, len(vector))
	}

	qdrantPayload := make(map[string]*pb.Value, len(payload)+1)
	qdrantPayload["form_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: formID}}
	for k, v := range payload {
		qdrantPayload[k] = toQdrantValue(v)
	}

	point := &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: formID},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: vector},
			},
		},
		Payload: qdrantPayload,
	}

	waitUpsert := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points:         []*pb.PointStruct{point},
		Wait:           &waitUpsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert form vector: %w", err)
	}

	return nil
}

// SearchSimilar returns up to limit previously indexed forms ranked by
// cosine similarity to the given embedding
func (q *QdrantClient) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]SimilarForm, error) {
	if limit <= 0 {
		limit = 5
	}

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	results := make([]SimilarForm, 0, len(resp.Result))
	for _, hit := range resp.Result {
		form := SimilarForm{
			Score:   hit.Score,
			Payload: fromQdrantPayload(hit.Payload),
		}
		if id, ok := form.Payload["form_id"].(string); ok {
			form.FormID = id
		} else if uid := hit.Id.GetUuid(); uid != "" {
			form.FormID = uid
		}
		results = append(results, form)
	}

	return results, nil
}

// Close closes the gRPC connection
func (q *QdrantClient) Close() error {
	return q.conn.Close()
}

func toQdrantValue(v interface{}) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromQdrantPayload(payload map[string]*pb.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch kind := v.Kind.(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		}
	}
	return out
}
