package db

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore backs the engine with a MongoDB database.
type MongoStore struct {
	database *mongo.Database
}

var Client *mongo.Client

// ConnectMongo dials MongoDB and returns a store over the named database.
func ConnectMongo(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	Client = client
	log.Println("✅ Connected to MongoDB at", uri)
	return &MongoStore{database: client.Database(database)}, nil
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.database.Collection(name)}
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Get(ctx context.Context, id string, out any) error {
	err := c.coll.FindOne(ctx, bson.M{"id": id}).Decode(out)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	return err
}

func (c *mongoCollection) Put(ctx context.Context, id string, doc any) error {
	// full replacement; $set would leave omitempty fields of the prior
	// document in place
	_, err := c.coll.ReplaceOne(ctx,
		bson.M{"id": id},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (c *mongoCollection) Patch(ctx context.Context, id string, fields map[string]any) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id string) error {
	_, err := c.coll.DeleteOne(ctx, bson.M{"id": id})
	return err
}

func (c *mongoCollection) FindOne(ctx context.Context, filter Filter, out any) error {
	err := c.coll.FindOne(ctx, bson.M(filter)).Decode(out)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	return err
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter, out any) error {
	cur, err := c.coll.Find(ctx, bson.M(filter))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	return cur.All(ctx, out)
}

func (c *mongoCollection) IncrementWithLimit(ctx context.Context, id, field string, delta, limit int64) (bool, error) {
	// Make sure the counter document exists before the guarded increment.
	_, err := c.coll.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$setOnInsert": bson.M{field: int64(0)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, err
	}

	if delta <= 0 {
		_, err := c.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$inc": bson.M{field: delta}})
		return err == nil, err
	}

	// prevent oversell: only increment while the result stays within limit
	res, err := c.coll.UpdateOne(ctx,
		bson.M{"id": id, field: bson.M{"$lte": limit - delta}},
		bson.M{"$inc": bson.M{field: delta}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
