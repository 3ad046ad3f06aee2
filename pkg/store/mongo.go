package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var ErrMongoConnect = errors.New("store.mongo_connect")

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URL             string        `env:"MONGODB_URL"`
	Database        string        `env:"MONGODB_DATABASE" envDefault:"billing"`
	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryAttempts   int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`
}

// ConnectMongo dials MongoDB and pings it, retrying up to cfg.RetryAttempts
// times. It gives up early when ctx is done.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, error) {
	if cfg.URL == "" {
		return nil, errors.Join(ErrMongoConnect, errors.New("MONGODB_URL is empty"))
	}
	var lastErr error
	for attempt := range max(cfg.RetryAttempts, 1) {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}
			_ = client.Disconnect(context.WithoutCancel(ctx))
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrMongoConnect, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrMongoConnect, lastErr)
}

// MongoStore keeps each collection in a MongoDB collection of the same name.
// Documents are converted through relaxed extended JSON so reads return the
// same shapes the Memory backend does.
type MongoStore struct {
	db *mongo.Database
}

// NewMongo stores each collection as a MongoDB collection of db keyed by _id.
func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := s.db.Collection(collection).FindOne(ctx, byID(id)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mongoErr(err)
	}
	return fromBSON(raw)
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, doc Document) error {
	d, err := toBSON(id, doc)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).ReplaceOne(ctx, byID(id), d, options.Replace().SetUpsert(true))
	return mongoErr(err)
}

func (s *MongoStore) Create(ctx context.Context, collection, id string, doc Document) error {
	d, err := toBSON(id, doc)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return mongoErr(err)
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Document) error {
	set, err := toBSON("", fields)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, byID(id), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return mongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, byID(id))
	return mongoErr(err)
}

func (s *MongoStore) QueryEquals(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	want, err := normalize(value)
	if err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(collection).Find(ctx, bson.D{{Key: field, Value: want}}, opts)
	if err != nil {
		return nil, mongoErr(err)
	}
	defer cur.Close(ctx)

	var out []Document
	for cur.Next(ctx) {
		doc, err := fromBSON(cur.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, mongoErr(err)
	}
	return out, nil
}

// MongoHealthcheck pings the server.
func MongoHealthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return errors.Join(ErrUnavailable, err)
		}
		return nil
	}
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

// toBSON converts doc to an ordered BSON document. Integers stay integers
// because the JSON is parsed as extended JSON rather than into float64.
func toBSON(id string, doc Document) (bson.D, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(b, false, &d); err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	out := make(bson.D, 0, len(d)+1)
	if id != "" {
		out = append(out, bson.E{Key: "_id", Value: id})
	}
	for _, e := range d {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return out, nil
}

func fromBSON(raw bson.Raw) (Document, error) {
	b, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	doc, err := unmarshalDoc(b)
	if err != nil {
		return nil, err
	}
	delete(doc, "_id")
	return doc, nil
}

func mongoErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrUnavailable, err)
}
