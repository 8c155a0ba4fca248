// Package mongo persists safety nodes and vehicles in MongoDB, one document
// per node with its events embedded.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/couchcryptid/minesafe-service/internal/domain"
)

const (
	nodesCollection    = "safety_nodes"
	vehiclesCollection = "vehicles"
)

// Store is a tenant-scoped MongoDB store.
type Store struct {
	client   *mongo.Client
	nodes    *mongo.Collection
	vehicles *mongo.Collection
	logger   *slog.Logger
}

// vehicleDoc adds the normalized registration key the unique index is built on.
type vehicleDoc struct {
	domain.Vehicle  `bson:",inline"`
	RegistrationKey string `bson:"registration_key"`
}

// Connect opens a client, verifies it with a ping and ensures indexes.
func Connect(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		nodes:    db.Collection(nodesCollection),
		vehicles: db.Collection(vehiclesCollection),
		logger:   logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("mongo store connected", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.nodes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create node index: %w", err)
	}
	_, err = s.vehicles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "registration_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("tenant_registration_unique"),
	})
	if err != nil {
		return fmt.Errorf("create vehicle index: %w", err)
	}
	return nil
}

// CheckReadiness pings the primary.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) InsertNode(ctx context.Context, node domain.SafetyNode) error {
	if node.Events == nil {
		// $push needs an array to append to.
		node.Events = []domain.ClassifiedEvent{}
	}
	if _, err := s.nodes.InsertOne(ctx, node); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: node %s", domain.ErrDuplicate, node.ID)
		}
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, tenantID, nodeID string) (domain.SafetyNode, error) {
	var node domain.SafetyNode
	err := s.nodes.FindOne(ctx, nodeFilter(tenantID, nodeID)).Decode(&node)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.SafetyNode{}, fmt.Errorf("%w: safety node %s", domain.ErrNotFound, nodeID)
	}
	if err != nil {
		return domain.SafetyNode{}, fmt.Errorf("find node: %w", err)
	}
	return normalizeNode(node), nil
}

func (s *Store) ListNodes(ctx context.Context, tenantID string) ([]domain.SafetyNode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.nodes.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	nodes := []domain.SafetyNode{}
	if err := cur.All(ctx, &nodes); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	for i := range nodes {
		nodes[i] = normalizeNode(nodes[i])
	}
	return nodes, nil
}

// AppendNodeEvent pushes the event in a single-document update. A filter
// miss means the node is absent or belongs to another tenant; nothing is
// written in that case.
func (s *Store) AppendNodeEvent(ctx context.Context, tenantID, nodeID string, event domain.ClassifiedEvent) error {
	update := bson.M{
		"$push": bson.M{"events": event},
		"$set":  bson.M{"updated_at": event.RecordedAt},
	}
	res, err := s.nodes.UpdateOne(ctx, nodeFilter(tenantID, nodeID), update)
	if err != nil {
		return fmt.Errorf("append node event: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: safety node %s", domain.ErrNotFound, nodeID)
	}
	return nil
}

// InsertVehicle relies on the unique (tenant_id, registration_key) index, so
// concurrent registrations of the same number cannot both succeed.
func (s *Store) InsertVehicle(ctx context.Context, v domain.Vehicle) error {
	doc := vehicleDoc{Vehicle: v, RegistrationKey: domain.RegistrationKey(v.RegistrationNumber)}
	if _, err := s.vehicles.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: vehicle %q already registered", domain.ErrDuplicate, v.RegistrationNumber)
		}
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

func (s *Store) ListVehicles(ctx context.Context, tenantID string) ([]domain.Vehicle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "assigned_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.vehicles.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	var docs []vehicleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	out := make([]domain.Vehicle, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Vehicle)
	}
	return out, nil
}

func (s *Store) VehicleByRegistration(ctx context.Context, tenantID, registration string) (domain.Vehicle, error) {
	var doc vehicleDoc
	err := s.vehicles.FindOne(ctx, vehicleFilter(tenantID, registration)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle %q", domain.ErrNotFound, registration)
	}
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("find vehicle: %w", err)
	}
	return doc.Vehicle, nil
}

func (s *Store) UpdateVehicleLocation(ctx context.Context, tenantID, registration string, loc domain.LatLng) (domain.Vehicle, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc vehicleDoc
	err := s.vehicles.FindOneAndUpdate(ctx,
		vehicleFilter(tenantID, registration),
		bson.M{"$set": bson.M{"location": loc}},
		opts,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle %q", domain.ErrNotFound, registration)
	}
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("update vehicle location: %w", err)
	}
	return doc.Vehicle, nil
}

func nodeFilter(tenantID, nodeID string) bson.M {
	return bson.M{"_id": nodeID, "tenant_id": tenantID}
}

func vehicleFilter(tenantID, registration string) bson.M {
	return bson.M{"tenant_id": tenantID, "registration_key": domain.RegistrationKey(registration)}
}

func normalizeNode(n domain.SafetyNode) domain.SafetyNode {
	if n.Events == nil {
		n.Events = []domain.ClassifiedEvent{}
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	for i := range n.Events {
		n.Events[i].RecordedAt = n.Events[i].RecordedAt.UTC()
	}
	return n
}
