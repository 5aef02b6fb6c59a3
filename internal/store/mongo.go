package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	dialogCollection   = "englishDialog"
	settingsCollection = "userSettings"
	promptCollection   = "prompts"
)

// MongoStore persists dialogs and settings in MongoDB, using the collection
// layout of the original chatbot database.
type MongoStore struct {
	client   *mongo.Client
	dialogs  *mongo.Collection
	settings *mongo.Collection
	prompts  *mongo.Collection
}

type settingsDoc struct {
	UserKey  string           `bson:"telegramId"`
	Language *LanguageProfile `bson:"language,omitempty"`
	Role     *string          `bson:"systemRoleInfo,omitempty"`
	Speed    *string          `bson:"speed,omitempty"`
	Model    *string          `bson:"gptVersion,omitempty"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		dialogs:  db.Collection(dialogCollection),
		settings: db.Collection(settingsCollection),
		prompts:  db.Collection(promptCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.dialogs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "telegramId", Value: 1}, {Key: "contentType", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create dialog index: %w", err)
	}
	_, err = s.settings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "telegramId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create settings index: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertDialog(ctx context.Context, record DialogRecord) error {
	record = prepare(record)
	if _, err := s.dialogs.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("insert dialog: %w", err)
	}
	return nil
}

func (s *MongoStore) CountDialogsSince(ctx context.Context, userKey, contentType string, since time.Time) (int, error) {
	filter := bson.M{
		"telegramId": userKey,
		"createdAt":  bson.M{"$gte": since.UTC()},
	}
	if contentType != "" {
		filter["contentType"] = contentType
	}
	n, err := s.dialogs.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count dialogs: %w", err)
	}
	return int(n), nil
}

func (s *MongoStore) LanguageProfile(ctx context.Context, userKey string) (LanguageProfile, error) {
	doc, err := s.findSettings(ctx, userKey)
	if err != nil {
		return LanguageProfile{}, err
	}
	if doc.Language == nil {
		return LanguageProfile{}, ErrNotFound
	}
	return *doc.Language, nil
}

func (s *MongoStore) UpsertLanguageProfile(ctx context.Context, userKey string, profile LanguageProfile) error {
	return s.setField(ctx, userKey, "language", profile)
}

func (s *MongoStore) SystemRole(ctx context.Context, userKey string) (string, error) {
	doc, err := s.findSettings(ctx, userKey)
	if err != nil {
		return "", err
	}
	return deref(doc.Role)
}

func (s *MongoStore) UpsertSystemRole(ctx context.Context, userKey, role string) error {
	return s.setField(ctx, userKey, "systemRoleInfo", role)
}

func (s *MongoStore) Speed(ctx context.Context, userKey string) (string, error) {
	doc, err := s.findSettings(ctx, userKey)
	if err != nil {
		return "", err
	}
	return deref(doc.Speed)
}

func (s *MongoStore) UpsertSpeed(ctx context.Context, userKey, rate string) error {
	return s.setField(ctx, userKey, "speed", rate)
}

func (s *MongoStore) ModelOverride(ctx context.Context, userKey string) (string, error) {
	doc, err := s.findSettings(ctx, userKey)
	if err != nil {
		return "", err
	}
	return deref(doc.Model)
}

func (s *MongoStore) UpsertModelOverride(ctx context.Context, userKey, model string) error {
	return s.setField(ctx, userKey, "gptVersion", model)
}

func (s *MongoStore) SearchPrompts(ctx context.Context, keywords string, limit int) ([]PromptRecord, error) {
	terms := Keywords(keywords)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	and := make(bson.A, 0, len(terms))
	for _, term := range terms {
		pattern := regexp.QuoteMeta(term)
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"prompt": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"act": bson.M{"$regex": pattern, "$options": "i"}},
		}})
	}

	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.prompts.Find(ctx, bson.M{"$and": and}, opts)
	if err != nil {
		return nil, fmt.Errorf("search prompts: %w", err)
	}
	var out []PromptRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	return out, nil
}

func (s *MongoStore) UpsertPrompt(ctx context.Context, prompt PromptRecord) error {
	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	_, err := s.prompts.ReplaceOne(ctx,
		bson.M{"_id": prompt.ID},
		prompt,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert prompt: %w", err)
	}
	return nil
}

func (s *MongoStore) Mode() string { return "mongo" }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findSettings(ctx context.Context, userKey string) (settingsDoc, error) {
	var doc settingsDoc
	err := s.settings.FindOne(ctx, bson.M{"telegramId": userKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return settingsDoc{}, ErrNotFound
	}
	if err != nil {
		return settingsDoc{}, fmt.Errorf("find settings: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) setField(ctx context.Context, userKey, field string, value any) error {
	_, err := s.settings.UpdateOne(ctx,
		bson.M{"telegramId": userKey},
		bson.M{"$set": bson.M{field: value}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", field, err)
	}
	return nil
}

func deref(v *string) (string, error) {
	if v == nil {
		return "", ErrNotFound
	}
	return *v, nil
}
