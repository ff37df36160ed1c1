package message

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tofu_chat/internal/model"
)

type (
	MongoRepo struct {
		collection *mongo.Collection
	}
)

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{
		collection: db.Collection("messages"),
	}
}

func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "from", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "to", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *MongoRepo) Insert(ctx context.Context, packet *model.Packet) error {
	_, err := r.collection.InsertOne(ctx, packet)
	return err
}

func (r *MongoRepo) History(ctx context.Context, username string, limit int) ([]*model.Packet, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"from": username},
			bson.M{"to": username},
		},
	}
	// _id breaks ties between packets stamped in the same instant.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.Packet
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

var _ Repository = (*MongoRepo)(nil)
