package services

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/docuquery/docuquery/model"
)

// VectorStore is the sole owner of all Qdrant operations: collection
// management, uuid-keyed upserts and cosine top-k search.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// NewVectorStore connects to Qdrant at the given gRPC address
func NewVectorStore(addr, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", model.ErrStore, addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. The
// dimension is fixed at creation time.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", model.ErrStore, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", model.ErrStore, v.collection, err)
	}
	return nil
}

// Healthy reports whether the collection listing round-trips
func (v *VectorStore) Healthy(ctx context.Context) error {
	_, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	return err
}

// Upsert stores vector records. Upserts are idempotent at the record level
// since point ids are uuids chosen by the caller.
func (v *VectorStore) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := map[string]*pb.Value{
			"text":              {Kind: &pb.Value_StringValue{StringValue: r.Payload.Text}},
			"page":              {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Payload.Page)}},
			"chunk_index":       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Payload.ChunkIndex)}},
			"has_title_context": {Kind: &pb.Value_BoolValue{BoolValue: r.Payload.HasTitleContext}},
		}
		if r.Payload.Title != "" {
			payload["title"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Payload.Title}}
		}
		if r.Payload.Section != "" {
			payload["section"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Payload.Section}}
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d points: %v", model.ErrStore, len(records), err)
	}
	return nil
}

// Search performs cosine top-k similarity search
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]model.RetrievalResult, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", model.ErrStore, err)
	}

	results := make([]model.RetrievalResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		res := model.RetrievalResult{Score: float64(r.GetScore())}
		payload := r.GetPayload()
		if val, ok := payload["text"]; ok {
			res.Text = val.GetStringValue()
		}
		if val, ok := payload["page"]; ok {
			res.Page = int(val.GetIntegerValue())
		}
		results[i] = res
	}
	return results, nil
}
