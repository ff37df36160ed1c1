package publickey

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
		collection: db.Collection("public_keys"),
	}
}

func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepo) Get(ctx context.Context, username string) (*model.PublicKeyRecord, error) {
	filter := bson.M{
		"username": username,
	}

	var rec model.PublicKeyRecord
	err := r.collection.FindOne(ctx, filter).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *MongoRepo) Put(ctx context.Context, record *model.PublicKeyRecord) error {
	filter := bson.M{
		"username": record.Username,
	}
	_, err := r.collection.ReplaceOne(ctx, filter, record, options.Replace().SetUpsert(true))
	return err
}

var _ Repository = (*MongoRepo)(nil)
