// Package mongorepo persists sources, user settings and site config in MongoDB.
package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/registry"
)

const (
	sourcesCollection  = "source_configs"
	settingsCollection = "user_settings"
	siteCollection     = "settings"
	countersCollection = "counters"

	siteDocID    = "site_config"
	sourceSeqKey = "source_configs"
)

type Store struct {
	client   *mongo.Client
	sources  *mongo.Collection
	settings *mongo.Collection
	site     *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// Connect dials uri, pings the server and ensures indexes on database dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	store := NewStore(client.Database(dbName))
	store.client = client
	if err := store.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// clientOptions traces every command through the global tracer provider.
func clientOptions(uri string) *options.ClientOptions {
	return options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor())
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		sources:  db.Collection(sourcesCollection),
		settings: db.Collection(settingsCollection),
		site:     db.Collection(siteCollection),
		counters: db.Collection(countersCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.sources.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "sortOrder", Value: 1}, {Key: "seq", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

type sourceDocument struct {
	Seq       int64     `bson:"seq"`
	Key       string    `bson:"key"`
	Name      string    `bson:"name"`
	API       string    `bson:"api"`
	Detail    string    `bson:"detail,omitempty"`
	From      string    `bson:"from"`
	Disabled  bool      `bson:"disabled"`
	IsAdult   bool      `bson:"isAdult"`
	SortOrder int       `bson:"sortOrder"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func toSourceDocument(source domain.Source) sourceDocument {
	from := string(source.From)
	if from == "" {
		from = string(domain.SourceOriginCustom)
	}
	return sourceDocument{
		Seq:       source.ID,
		Key:       source.Key,
		Name:      source.Name,
		API:       source.API,
		Detail:    source.Detail,
		From:      from,
		Disabled:  source.Disabled,
		IsAdult:   source.IsAdult,
		SortOrder: source.SortOrder,
		CreatedAt: source.CreatedAt,
		UpdatedAt: source.UpdatedAt,
	}
}

func (d sourceDocument) toSource() domain.Source {
	return domain.Source{
		ID:        d.Seq,
		Key:       d.Key,
		Name:      d.Name,
		API:       d.API,
		Detail:    d.Detail,
		From:      domain.SourceOrigin(d.From),
		Disabled:  d.Disabled,
		IsAdult:   d.IsAdult,
		SortOrder: d.SortOrder,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sortOrder", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := s.sources.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list sources: %w", err)
	}
	var docs []sourceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo list sources: %w", err)
	}
	out := make([]domain.Source, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toSource())
	}
	return out, nil
}

func (s *Store) GetSource(ctx context.Context, key string) (domain.Source, bool, error) {
	var doc sourceDocument
	err := s.sources.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Source{}, false, nil
	}
	if err != nil {
		return domain.Source{}, false, fmt.Errorf("mongo get source: %w", err)
	}
	return doc.toSource(), true, nil
}

func (s *Store) InsertSource(ctx context.Context, source domain.Source) (domain.Source, error) {
	seq, err := s.nextSeq(ctx, sourceSeqKey)
	if err != nil {
		return domain.Source{}, err
	}
	now := s.now()
	source.ID = seq
	source.CreatedAt = now
	source.UpdatedAt = now
	doc := toSourceDocument(source)
	if _, err := s.sources.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Source{}, registry.ErrSourceExists
		}
		return domain.Source{}, fmt.Errorf("mongo insert source: %w", err)
	}
	return doc.toSource(), nil
}

func (s *Store) UpdateSource(ctx context.Context, source domain.Source) (bool, error) {
	return s.updateSource(ctx, source.Key, bson.M{
		"name":    source.Name,
		"api":     source.API,
		"detail":  source.Detail,
		"isAdult": source.IsAdult,
	})
}

func (s *Store) SetSourceDisabled(ctx context.Context, key string, disabled bool) (bool, error) {
	return s.updateSource(ctx, key, bson.M{"disabled": disabled})
}

func (s *Store) updateSource(ctx context.Context, key string, fields bson.M) (bool, error) {
	fields["updatedAt"] = s.now()
	result, err := s.sources.UpdateOne(ctx, bson.M{"key": key}, bson.M{"$set": fields})
	if err != nil {
		return false, fmt.Errorf("mongo update source: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (s *Store) DeleteSource(ctx context.Context, key string) (bool, error) {
	result, err := s.sources.DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return false, fmt.Errorf("mongo delete source: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (s *Store) ReorderSources(ctx context.Context, order []string) error {
	if len(order) == 0 {
		return nil
	}
	now := s.now()
	models := make([]mongo.WriteModel, 0, len(order))
	for index, key := range order {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"key": key}).
			SetUpdate(bson.M{"$set": bson.M{"sortOrder": index, "updatedAt": now}}))
	}
	if _, err := s.sources.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("mongo reorder sources: %w", err)
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongo next seq: %w", err)
	}
	return counter.Seq, nil
}

// ---------------------------------------------------------------------------
// User settings
// ---------------------------------------------------------------------------

func (s *Store) GetUserSettings(ctx context.Context, username string) (domain.UserSettings, bool, error) {
	var doc struct {
		domain.UserSettings `bson:",inline"`
	}
	err := s.settings.FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.UserSettings{}, false, nil
	}
	if err != nil {
		return domain.UserSettings{}, false, fmt.Errorf("mongo get user settings: %w", err)
	}
	return doc.UserSettings, true, nil
}

func (s *Store) SaveUserSettings(ctx context.Context, settings domain.UserSettings) error {
	updated := settings.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.settings.UpdateOne(ctx,
		bson.M{"_id": settings.Username},
		bson.M{"$set": bson.M{
			"username":           settings.Username,
			"filterAdultContent": settings.FilterAdultContent,
			"theme":              settings.Theme,
			"language":           settings.Language,
			"autoPlay":           settings.AutoPlay,
			"videoQuality":       settings.VideoQuality,
			"updatedAt":          updated,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo save user settings: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Site config
// ---------------------------------------------------------------------------

func (s *Store) LoadSiteConfig(ctx context.Context) (domain.SiteConfig, bool, error) {
	var doc struct {
		domain.SiteConfig `bson:",inline"`
	}
	err := s.site.FindOne(ctx, bson.M{"_id": siteDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.SiteConfig{}, false, nil
	}
	if err != nil {
		return domain.SiteConfig{}, false, fmt.Errorf("mongo load site config: %w", err)
	}
	return doc.SiteConfig, true, nil
}

func (s *Store) SaveSiteConfig(ctx context.Context, cfg domain.SiteConfig) error {
	_, err := s.site.UpdateOne(ctx,
		bson.M{"_id": siteDocID},
		bson.M{"$set": siteConfigFields(cfg, s.now())},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo save site config: %w", err)
	}
	return nil
}

func siteConfigFields(cfg domain.SiteConfig, now time.Time) bson.M {
	return bson.M{
		"siteName":                cfg.SiteName,
		"announcement":            cfg.Announcement,
		"searchDownstreamMaxPage": cfg.SearchDownstreamMaxPage,
		"siteInterfaceCacheTime":  cfg.SiteInterfaceCacheTime,
		"imageProxy":              cfg.ImageProxy,
		"doubanProxy":             cfg.DoubanProxy,
		"updatedAt":               now.UnixMilli(),
	}
}
