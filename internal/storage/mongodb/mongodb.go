package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"subtrack/internal/domain/models"
	"subtrack/internal/storage"
)

type Storage struct {
	client   *mongo.Client
	database *mongo.Database
	accounts *mongo.Collection
	counters *mongo.Collection
}

type accountDoc struct {
	ID               int64           `bson:"_id"`
	Email            string          `bson:"email"`
	Name             string          `bson:"name"`
	PassHash         []byte          `bson:"pass_hash"`
	Preferences      *preferencesDoc `bson:"preferences,omitempty"`
	Generation       int64           `bson:"generation"`
	RefreshDigest    string          `bson:"refresh_digest,omitempty"`
	RefreshExpiresAt *time.Time      `bson:"refresh_expires_at,omitempty"`
	Version          int64           `bson:"version"`
	CreatedAt        time.Time       `bson:"created_at"`
	UpdatedAt        time.Time       `bson:"updated_at"`
}

// preferencesDoc is absent on documents written before preferences existed.
type preferencesDoc struct {
	Currency      string           `bson:"currency"`
	Notifications notificationsDoc `bson:"notifications"`
}

type notificationsDoc struct {
	Email bool `bson:"email"`
	Push  bool `bson:"push"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		database: db,
		accounts: db.Collection("accounts"),
		counters: db.Collection("counters"),
	}

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

// EnsureIndexes creates the indexes the account invariants rely on.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	// accounts.email unique
	_, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("accounts.email index: %w", err)
	}

	// accounts.refresh_digest unique among accounts that hold one
	_, err = s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "refresh_digest", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.D{{Key: "refresh_digest", Value: bson.D{{Key: "$type", Value: "string"}}}}),
	})
	if err != nil {
		return fmt.Errorf("accounts.refresh_digest index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID atomically increments and returns the next ID for a given collection.
func (s *Storage) nextID(ctx context.Context, collectionName string) (int64, error) {
	filter := bson.D{{Key: "_id", Value: collectionName}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// AccountByEmail retrieves an account by its normalized email.
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.mongodb.AccountByEmail"

	return s.findOne(ctx, op, bson.D{{Key: "email", Value: email}})
}

// AccountByID retrieves an account by ID.
func (s *Storage) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	const op = "storage.mongodb.AccountByID"

	return s.findOne(ctx, op, bson.D{{Key: "_id", Value: id}})
}

// AccountByRefreshDigest retrieves the account currently holding digest.
func (s *Storage) AccountByRefreshDigest(ctx context.Context, digest string) (*models.Account, error) {
	const op = "storage.mongodb.AccountByRefreshDigest"

	if digest == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
	}

	return s.findOne(ctx, op, bson.D{{Key: "refresh_digest", Value: digest}})
}

func (s *Storage) findOne(ctx context.Context, op string, filter bson.D) (*models.Account, error) {
	var doc accountDoc
	err := s.accounts.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return toModel(doc), nil
}

// SaveAccount inserts a new account (Version == 0) or replaces the stored
// snapshot if its version still matches.
func (s *Storage) SaveAccount(ctx context.Context, acc *models.Account) error {
	const op = "storage.mongodb.SaveAccount"

	now := time.Now().UTC()

	if acc.Version == 0 {
		id, err := s.nextID(ctx, "accounts")
		if err != nil {
			return fmt.Errorf("%s: nextID: %w", op, err)
		}

		doc := toDoc(acc)
		doc.ID = id
		doc.Version = 1
		doc.CreatedAt = now
		doc.UpdatedAt = now

		if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("%s: %w", op, storage.ErrAccountExists)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		acc.ID = id
		acc.Version = 1
		acc.CreatedAt = now
		acc.UpdatedAt = now

		return nil
	}

	set := bson.D{
		{Key: "email", Value: acc.Email},
		{Key: "name", Value: acc.Name},
		{Key: "pass_hash", Value: acc.PassHash},
		{Key: "preferences", Value: toPreferencesDoc(acc.Preferences)},
		{Key: "generation", Value: int64(acc.Generation)},
		{Key: "version", Value: acc.Version + 1},
		{Key: "updated_at", Value: now},
	}
	update := bson.D{}

	if acc.HasRefresh() {
		set = append(set,
			bson.E{Key: "refresh_digest", Value: acc.RefreshDigest},
			bson.E{Key: "refresh_expires_at", Value: acc.RefreshExpiresAt.UTC()},
		)
	} else {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{
			{Key: "refresh_digest", Value: ""},
			{Key: "refresh_expires_at", Value: ""},
		}})
	}
	update = append(update, bson.E{Key: "$set", Value: set})

	res, err := s.accounts.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: acc.ID}, {Key: "version", Value: acc.Version}},
		update,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAccountExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
	}

	acc.Version++
	acc.UpdatedAt = now

	return nil
}

// DeleteStaleRefreshDigests drops refresh digests that expired before now.
func (s *Storage) DeleteStaleRefreshDigests(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.mongodb.DeleteStaleRefreshDigests"

	res, err := s.accounts.UpdateMany(ctx,
		bson.D{{Key: "refresh_expires_at", Value: bson.D{{Key: "$lte", Value: now.UTC()}}}},
		bson.D{
			{Key: "$unset", Value: bson.D{
				{Key: "refresh_digest", Value: ""},
				{Key: "refresh_expires_at", Value: ""},
			}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: int64(1)}}},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.ModifiedCount, nil
}

func toDoc(acc *models.Account) accountDoc {
	doc := accountDoc{
		ID:          acc.ID,
		Email:       acc.Email,
		Name:        acc.Name,
		PassHash:    acc.PassHash,
		Preferences: toPreferencesDoc(acc.Preferences),
		Generation:  int64(acc.Generation),
		Version:     acc.Version,
		CreatedAt:   acc.CreatedAt,
		UpdatedAt:   acc.UpdatedAt,
	}
	if acc.HasRefresh() {
		exp := acc.RefreshExpiresAt.UTC()
		doc.RefreshDigest = acc.RefreshDigest
		doc.RefreshExpiresAt = &exp
	}
	return doc
}

func toModel(doc accountDoc) *models.Account {
	acc := &models.Account{
		ID:          doc.ID,
		Email:       doc.Email,
		Name:        doc.Name,
		PassHash:    doc.PassHash,
		Preferences: models.DefaultPreferences(),
		Generation:  models.Generation(doc.Generation),
		Version:     doc.Version,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if p := doc.Preferences; p != nil {
		acc.Preferences = models.Preferences{
			Currency: models.Currency(p.Currency),
			Notifications: models.Notifications{
				Email: p.Notifications.Email,
				Push:  p.Notifications.Push,
			},
		}
	}
	if doc.RefreshDigest != "" && doc.RefreshExpiresAt != nil {
		acc.SetRefresh(doc.RefreshDigest, *doc.RefreshExpiresAt)
	}
	return acc
}

func toPreferencesDoc(p models.Preferences) *preferencesDoc {
	return &preferencesDoc{
		Currency: string(p.Currency),
		Notifications: notificationsDoc{
			Email: p.Notifications.Email,
			Push:  p.Notifications.Push,
		},
	}
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
