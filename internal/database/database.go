package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"astra/backend/internal/apperr"
	"astra/backend/internal/models"
)

const opTimeout = 5 * time.Second

// MongoStore implements Store on top of a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*MongoStore)(nil)

// ConnectDB connects, pings the primary and makes sure the indexes exist.
func ConnectDB(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	// Ping the primary
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Info().Str("component", "database").Str("db", dbName).Msg("Successfully connected to MongoDB")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		"audiobooks": {
			{
				Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "voiceId", Value: 1}, {Key: "userId", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("ux_document_voice_user"),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		"documents": {{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "folderId", Value: 1}}}},
		"folders":   {{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "parentId", Value: 1}}}},
		"notes":     {{Keys: bson.D{{Key: "documentId", Value: 1}}}},
		"bookmarks": {{Keys: bson.D{{Key: "documentId", Value: 1}}}},
	}
	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func notFound(what, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", what, id, apperr.ErrNotFound)
	}
	return fmt.Errorf("find %s %s: %w", what, id, err)
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	cursor, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func findOne[T any](ctx context.Context, c *mongo.Collection, what string, filter bson.M) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var out T
	if err := c.FindOne(ctx, filter).Decode(&out); err != nil {
		return nil, notFound(what, fmt.Sprint(filter["_id"]), err)
	}
	return &out, nil
}

func updateOne(ctx context.Context, c *mongo.Collection, what string, filter, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := c.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %v: %w", what, filter["_id"], apperr.ErrNotFound)
	}
	return nil
}

func deleteOne(ctx context.Context, c *mongo.Collection, what string, filter bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := c.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s %v: %w", what, filter["_id"], apperr.ErrNotFound)
	}
	return nil
}

func insertOne(ctx context.Context, c *mongo.Collection, what string, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := c.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert %s: %w", what, apperr.ErrDuplicate)
		}
		return fmt.Errorf("insert %s: %w", what, err)
	}
	return nil
}

func byCreated() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
}

func nameRegex(field, query string) bson.M {
	return bson.M{field: bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}}
}

// Users

func (s *MongoStore) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"email":     u.Email,
			"name":      u.Name,
			"picture":   u.Picture,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out models.User
	if err := s.coll("users").FindOneAndUpdate(ctx, bson.M{"_id": u.ID}, update, opts).Decode(&out); err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return &out, nil
}

// Folders

func (s *MongoStore) CreateFolder(ctx context.Context, f *models.Folder) error {
	if f.ID == "" {
		f.ID = newID()
	}
	return insertOne(ctx, s.coll("folders"), "folder", f)
}

func (s *MongoStore) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	return findOne[models.Folder](ctx, s.coll("folders"), "folder", bson.M{"_id": id})
}

func (s *MongoStore) ListFolders(ctx context.Context, ownerID, parentID string) ([]models.Folder, error) {
	return findAll[models.Folder](ctx, s.coll("folders"), bson.M{"ownerId": ownerID, "parentId": parentID}, byCreated())
}

func (s *MongoStore) RenameFolder(ctx context.Context, id, ownerID, name string) error {
	update := bson.M{"$set": bson.M{"name": name, "updatedAt": time.Now().UTC()}}
	return updateOne(ctx, s.coll("folders"), "folder", bson.M{"_id": id, "ownerId": ownerID}, update)
}

func (s *MongoStore) DeleteFolder(ctx context.Context, id, ownerID string) error {
	return deleteOne(ctx, s.coll("folders"), "folder", bson.M{"_id": id, "ownerId": ownerID})
}

func (s *MongoStore) SearchFolders(ctx context.Context, ownerID, query string) ([]models.Folder, error) {
	filter := nameRegex("name", query)
	filter["ownerId"] = ownerID
	return findAll[models.Folder](ctx, s.coll("folders"), filter)
}

// Documents

func (s *MongoStore) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID == "" {
		d.ID = newID()
	}
	return insertOne(ctx, s.coll("documents"), "document", d)
}

func (s *MongoStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return findOne[models.Document](ctx, s.coll("documents"), "document", bson.M{"_id": id})
}

func (s *MongoStore) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	return findAll[models.Document](ctx, s.coll("documents"), bson.M{"ownerId": ownerID}, byCreated())
}

func (s *MongoStore) ListDocumentsInFolder(ctx context.Context, ownerID, folderID string) ([]models.Document, error) {
	return findAll[models.Document](ctx, s.coll("documents"), bson.M{"ownerId": ownerID, "folderId": folderID}, byCreated())
}

func (s *MongoStore) MoveDocument(ctx context.Context, id, folderID string) error {
	return updateOne(ctx, s.coll("documents"), "document", bson.M{"_id": id}, bson.M{"$set": bson.M{"folderId": folderID}})
}

func (s *MongoStore) UpdateDocumentProgress(ctx context.Context, id string, progress int) error {
	return updateOne(ctx, s.coll("documents"), "document", bson.M{"_id": id}, bson.M{"$set": bson.M{"progress": progress}})
}

func (s *MongoStore) DetachFolder(ctx context.Context, ownerID, folderID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.coll("documents").UpdateMany(ctx,
		bson.M{"ownerId": ownerID, "folderId": folderID},
		bson.M{"$set": bson.M{"folderId": ""}})
	if err != nil {
		return fmt.Errorf("detach documents from folder %s: %w", folderID, err)
	}
	return nil
}

func (s *MongoStore) DeleteDocument(ctx context.Context, id string) error {
	return deleteOne(ctx, s.coll("documents"), "document", bson.M{"_id": id})
}

func (s *MongoStore) SearchDocuments(ctx context.Context, ownerID, query string) ([]models.Document, error) {
	filter := nameRegex("title", query)
	filter["ownerId"] = ownerID
	return findAll[models.Document](ctx, s.coll("documents"), filter)
}

// Notes

func (s *MongoStore) CreateNote(ctx context.Context, n *models.Note) error {
	if n.ID == "" {
		n.ID = newID()
	}
	return insertOne(ctx, s.coll("notes"), "note", n)
}

func (s *MongoStore) GetNote(ctx context.Context, id string) (*models.Note, error) {
	return findOne[models.Note](ctx, s.coll("notes"), "note", bson.M{"_id": id})
}

func (s *MongoStore) ListNotes(ctx context.Context, documentID string) ([]models.Note, error) {
	opts := options.Find().SetSort(bson.D{{Key: "page", Value: 1}})
	return findAll[models.Note](ctx, s.coll("notes"), bson.M{"documentId": documentID}, opts)
}

func (s *MongoStore) UpdateNote(ctx context.Context, n *models.Note) error {
	update := bson.M{"$set": bson.M{
		"title":     n.Title,
		"content":   n.Content,
		"page":      n.Page,
		"updatedAt": n.UpdatedAt,
	}}
	return updateOne(ctx, s.coll("notes"), "note", bson.M{"_id": n.ID}, update)
}

func (s *MongoStore) DeleteNote(ctx context.Context, id string) error {
	return deleteOne(ctx, s.coll("notes"), "note", bson.M{"_id": id})
}

func (s *MongoStore) DeleteNotesForDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := s.coll("notes").DeleteMany(ctx, bson.M{"documentId": documentID}); err != nil {
		return fmt.Errorf("delete notes for document %s: %w", documentID, err)
	}
	return nil
}

// Bookmarks

func (s *MongoStore) CreateBookmark(ctx context.Context, b *models.Bookmark) error {
	if b.ID == "" {
		b.ID = newID()
	}
	return insertOne(ctx, s.coll("bookmarks"), "bookmark", b)
}

func (s *MongoStore) GetBookmark(ctx context.Context, id string) (*models.Bookmark, error) {
	return findOne[models.Bookmark](ctx, s.coll("bookmarks"), "bookmark", bson.M{"_id": id})
}

func (s *MongoStore) ListBookmarks(ctx context.Context, documentID string) ([]models.Bookmark, error) {
	opts := options.Find().SetSort(bson.D{{Key: "page", Value: 1}})
	return findAll[models.Bookmark](ctx, s.coll("bookmarks"), bson.M{"documentId": documentID}, opts)
}

func (s *MongoStore) DeleteBookmark(ctx context.Context, id string) error {
	return deleteOne(ctx, s.coll("bookmarks"), "bookmark", bson.M{"_id": id})
}

func (s *MongoStore) DeleteBookmarksForDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := s.coll("bookmarks").DeleteMany(ctx, bson.M{"documentId": documentID}); err != nil {
		return fmt.Errorf("delete bookmarks for document %s: %w", documentID, err)
	}
	return nil
}

// Voices

func (s *MongoStore) UpsertVoice(ctx context.Context, v *models.Voice) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.coll("voices").ReplaceOne(ctx, bson.M{"_id": v.ID}, v, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert voice %s: %w", v.ID, err)
	}
	return nil
}

func (s *MongoStore) GetVoice(ctx context.Context, id string) (*models.Voice, error) {
	return findOne[models.Voice](ctx, s.coll("voices"), "voice", bson.M{"_id": id})
}

func (s *MongoStore) ListVoices(ctx context.Context) ([]models.Voice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return findAll[models.Voice](ctx, s.coll("voices"), bson.M{}, opts)
}

// Audiobooks

func (s *MongoStore) CreateAudiobook(ctx context.Context, a *models.Audiobook) error {
	if a.ID == "" {
		a.ID = newID()
	}
	return insertOne(ctx, s.coll("audiobooks"), "audiobook", a)
}

func (s *MongoStore) GetAudiobook(ctx context.Context, id string) (*models.Audiobook, error) {
	return findOne[models.Audiobook](ctx, s.coll("audiobooks"), "audiobook", bson.M{"_id": id})
}

func (s *MongoStore) FindAudiobook(ctx context.Context, documentID, voiceID, userID string) (*models.Audiobook, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{"documentId": documentID, "voiceId": voiceID, "userId": userID}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	var out models.Audiobook
	if err := s.coll("audiobooks").FindOne(ctx, filter, opts).Decode(&out); err != nil {
		return nil, notFound("audiobook for document", documentID, err)
	}
	return &out, nil
}

func (s *MongoStore) ListAudiobooksByUser(ctx context.Context, userID string) ([]models.Audiobook, error) {
	return findAll[models.Audiobook](ctx, s.coll("audiobooks"), bson.M{"userId": userID}, byCreated())
}

func (s *MongoStore) ListAudiobooksByDocument(ctx context.Context, documentID string) ([]models.Audiobook, error) {
	return findAll[models.Audiobook](ctx, s.coll("audiobooks"), bson.M{"documentId": documentID}, byCreated())
}

func (s *MongoStore) UpdateAudiobookProgress(ctx context.Context, id string, progress float64) error {
	update := bson.M{"$set": bson.M{"progress": progress, "updatedAt": time.Now().UTC()}}
	return updateOne(ctx, s.coll("audiobooks"), "audiobook", bson.M{"_id": id}, update)
}

func (s *MongoStore) SetAudiobookStatus(ctx context.Context, id string, res models.AudiobookResult) error {
	set := bson.M{
		"status":    res.Status,
		"error":     res.Error,
		"updatedAt": time.Now().UTC(),
	}
	if res.Status == models.AudiobookCompleted {
		set["progress"] = 1.0
		set["duration"] = res.Duration
		set["remoteId"] = res.RemoteID
	}
	return updateOne(ctx, s.coll("audiobooks"), "audiobook", bson.M{"_id": id}, bson.M{"$set": set})
}

func (s *MongoStore) DeleteAudiobook(ctx context.Context, id string) error {
	return deleteOne(ctx, s.coll("audiobooks"), "audiobook", bson.M{"_id": id})
}

// Settings

func (s *MongoStore) GetSettings(ctx context.Context, userID string) (*models.Settings, error) {
	return findOne[models.Settings](ctx, s.coll("settings"), "settings", bson.M{"_id": userID})
}

func (s *MongoStore) SaveSettings(ctx context.Context, st *models.Settings) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.coll("settings").ReplaceOne(ctx, bson.M{"_id": st.UserID}, st, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save settings for %s: %w", st.UserID, err)
	}
	return nil
}
