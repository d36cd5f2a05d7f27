// Package semantic mirrors atom embeddings into a Qdrant collection for
// approximate nearest-neighbor retrieval. Postgres stays the record of
// truth; this index is rebuildable, so mirror failures never fail a
// session.
package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// Mirror is the sole owner of all Qdrant operations.
type Mirror struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a Mirror connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*Mirror, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Mirror{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (m *Mirror) Close() error {
	return m.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (m *Mirror) EnsureCollection(ctx context.Context, dims int) error {
	list, err := m.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == m.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = m.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", m.collection, err)
	}
	return nil
}

// UpsertAtoms mirrors stored atoms into the collection. Point ids are
// derived from atom ids so re-ingestion overwrites in place.
func (m *Mirror) UpsertAtoms(ctx context.Context, atoms []domain.Atom) error {
	if len(atoms) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(atoms))
	for _, a := range atoms {
		if len(a.Embedding) == 0 {
			continue
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(a.AtomID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: a.Embedding},
				},
			},
			Payload: atomPayload(a),
		})
	}
	if len(points) == 0 {
		return nil
	}

	wait := true
	_, err := m.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: m.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteBySource removes all points for a source URL. The ingestion
// pipeline does not call it.
func (m *Mirror) DeleteBySource(ctx context.Context, sourceURL string) error {
	wait := true
	_, err := m.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: m.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("source_url", sourceURL),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by source %s: %w", sourceURL, err)
	}
	return nil
}

// PointID derives the stable Qdrant point UUID for an atom id.
func PointID(atomID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("atom:"+atomID)).String()
}

func atomPayload(a domain.Atom) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"atom_id":              strValue(a.AtomID),
		"title":                strValue(a.Title),
		"vendor":               strValue(a.Vendor),
		"type":                 strValue(string(a.Type)),
		"manual_type":          strValue(string(a.ManualType)),
		"source_url":           strValue(a.SourceURL),
		"manual_quality_score": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(a.ManualQualityScore)}},
	}
	if a.EquipmentType != "" {
		payload["equipment_type"] = strValue(a.EquipmentType)
	}
	return payload
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
