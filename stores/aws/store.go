package aws

import (
	"bytes"
	"collabnotes/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
	// mu serialises read-modify-write cycles issued by this process.
	mu sync.Mutex
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

// objectKey builds the key of an object, rejecting ids that are paths.
func objectKey(kind, id string) (string, error) {
	if id == "" || id == "." || id == ".." || path.Base(id) != id {
		return "", fmt.Errorf("%q: %w", id, core.ErrInvalidID)
	}
	return path.Join(kind, id+".json"), nil
}

func (s *s3Store) getObject(ctx context.Context, key string, v any) error {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("object %s: %w", key, core.ErrNotFound)
		}
		return fmt.Errorf("failed to get object %s: %v", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %v", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal object %s: %v", key, err)
	}
	return nil
}

func (s *s3Store) putObject(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal object %s: %v", key, err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %v", key, err)
	}
	return nil
}

// listKeys returns every key under prefix, following continuation tokens.
func (s *s3Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %v", prefix, err)
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}
	return keys, nil
}

func (s *s3Store) getNote(ctx context.Context, id string) (*core.Note, error) {
	key, err := objectKey("notes", id)
	if err != nil {
		return nil, err
	}
	var note core.Note
	if err := s.getObject(ctx, key, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *s3Store) putNote(ctx context.Context, note *core.Note) error {
	key, err := objectKey("notes", note.ID)
	if err != nil {
		return err
	}
	return s.putObject(ctx, key, note)
}

func (s *s3Store) GetNote(ctx context.Context, id string) (*core.Note, error) {
	return s.getNote(ctx, id)
}

func (s *s3Store) ListNotes(ctx context.Context, filter core.NoteFilter) ([]*core.Note, error) {
	keys, err := s.listKeys(ctx, "notes/")
	if err != nil {
		return nil, err
	}

	notes := make([]*core.Note, 0, len(keys))
	for _, key := range keys {
		var note core.Note
		if err := s.getObject(ctx, key, &note); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to load note, skipping")
			continue
		}
		if filter.Match(&note) {
			notes = append(notes, &note)
		}
	}
	return notes, nil
}

func (s *s3Store) CreateNote(ctx context.Context, note *core.Note) error {
	if note.OwnerID == "" {
		return fmt.Errorf("owner cannot be empty")
	}

	now := time.Now()
	note.ID = ulid.Make().String()
	note.CreatedAt = now
	note.UpdatedAt = now
	if err := s.putNote(ctx, note); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"note_id": note.ID, "user_id": note.OwnerID}).Info("Note created successfully")
	return nil
}

func (s *s3Store) UpdateNote(ctx context.Context, ownerID string, note *core.Note) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getNote(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID != ownerID {
		return nil, fmt.Errorf("note %s for owner %s: %w", note.ID, ownerID, core.ErrNotFound)
	}
	existing.Title = note.Title
	existing.Content = note.Content
	existing.IsShared = note.IsShared
	existing.UpdatedAt = time.Now()
	if err := s.putNote(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *s3Store) DeleteNote(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getNote(ctx, id)
	if err != nil {
		return err
	}
	if existing.OwnerID != ownerID {
		return fmt.Errorf("note %s for owner %s: %w", id, ownerID, core.ErrNotFound)
	}
	key, _ := objectKey("notes", id)
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %v", id, err)
	}
	return nil
}

func (s *s3Store) SetContent(ctx context.Context, id, content string) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getNote(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.Content = content
	existing.UpdatedAt = time.Now()
	if err := s.putNote(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// storedUser keeps the password hash, which core.User hides from JSON.
type storedUser struct {
	core.User
	PasswordHash string `json:"passwordHash,omitempty"`
}

func (s *s3Store) getUser(ctx context.Context, key string) (*core.User, error) {
	var stored storedUser
	if err := s.getObject(ctx, key, &stored); err != nil {
		return nil, err
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}

// emailKey indexes users by email so lookups avoid a bucket scan.
func emailKey(email string) string {
	return path.Join("emails", strings.ReplaceAll(email, "/", "_")+".json")
}

func subjectKey(subject string) string {
	return path.Join("subjects", strings.ReplaceAll(subject, "/", "_")+".json")
}

type userRef struct {
	UserID string `json:"userId"`
}

func (s *s3Store) lookupRef(ctx context.Context, key string) (*core.User, error) {
	var ref userRef
	if err := s.getObject(ctx, key, &ref); err != nil {
		return nil, err
	}
	userKey, err := objectKey("users", ref.UserID)
	if err != nil {
		return nil, err
	}
	return s.getUser(ctx, userKey)
}

func (s *s3Store) createUserLocked(ctx context.Context, user *core.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email != "" {
		_, err := s.lookupRef(ctx, emailKey(email))
		if err == nil {
			return fmt.Errorf("user with email %s: %w", email, core.ErrConflict)
		}
		if !errors.Is(err, core.ErrNotFound) {
			return err
		}
	}

	user.ID = ulid.Make().String()
	user.Email = email
	user.CreatedAt = time.Now()

	key, err := objectKey("users", user.ID)
	if err != nil {
		return err
	}
	if err := s.putObject(ctx, key, storedUser{User: *user, PasswordHash: user.PasswordHash}); err != nil {
		return err
	}
	if email != "" {
		if err := s.putObject(ctx, emailKey(email), userRef{UserID: user.ID}); err != nil {
			return err
		}
	}
	if user.Subject != "" {
		if err := s.putObject(ctx, subjectKey(user.Subject), userRef{UserID: user.ID}); err != nil {
			return err
		}
	}
	logrus.WithField("user_id", user.ID).Info("User created successfully")
	return nil
}

func (s *s3Store) CreateUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(ctx, user)
}

func (s *s3Store) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.lookupRef(ctx, emailKey(email))
	if err != nil {
		return nil, fmt.Errorf("user with email %s: %w", email, err)
	}
	return user, nil
}

func (s *s3Store) UpsertExternalUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Subject != "" {
		existing, err := s.lookupRef(ctx, subjectKey(user.Subject))
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}
	if err := s.createUserLocked(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *s3Store) ResolveIdentities(ctx context.Context, ids []string) ([]core.Identity, error) {
	identities := make([]core.Identity, 0, len(ids))
	for _, id := range ids {
		key, err := objectKey("users", id)
		if err != nil {
			continue
		}
		user, err := s.getUser(ctx, key)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return identities, fmt.Errorf("%v: %w", err, core.ErrPartialResolution)
		}
		identities = append(identities, core.Identity{ID: user.ID, Username: user.Username})
	}
	return identities, nil
}
