package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/learnhub/identity-service/internal/core/domain"
)

const (
	collectionUsers  = "users"
	collectionAdmins = "admins"
)

// CredentialStore implements ports.CredentialStore over one collection. The
// same type backs both principal kinds; only the collection differs.
type CredentialStore struct {
	kind domain.Kind
	col  *mongo.Collection
}

// NewUserStore returns the store for end users.
func NewUserStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{kind: domain.KindUser, col: db.Collection(collectionUsers)}
}

// NewAdminStore returns the store for administrative operators.
func NewAdminStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{kind: domain.KindAdmin, col: db.Collection(collectionAdmins)}
}

type mongoRefreshToken struct {
	Token     string    `bson:"token"`
	IssuedAt  time.Time `bson:"issued_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type mongoPrincipal struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty"`
	Email          string              `bson:"email"`
	Name           string              `bson:"name,omitempty"`
	PasswordHash   string              `bson:"password_hash"`
	Role           string              `bson:"role"`
	IsActive       bool                `bson:"is_active"`
	FailedAttempts int                 `bson:"failed_attempts"`
	LockUntil      *time.Time          `bson:"lock_until"`
	RefreshTokens  []mongoRefreshToken `bson:"refresh_tokens"`
	LastLoginAt    *time.Time          `bson:"last_login_at,omitempty"`
	CreatedAt      time.Time           `bson:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at"`
}

func (s *CredentialStore) Kind() domain.Kind { return s.kind }

func (s *CredentialStore) Create(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoPrincipal{
		Email:         p.Email,
		Name:          p.Name,
		PasswordHash:  p.PasswordHash,
		Role:          string(p.Role),
		IsActive:      p.IsActive,
		RefreshTokens: []mongoRefreshToken{},
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	res, err := s.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrPrincipalExists
		}
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	doc.ID, _ = res.InsertedID.(primitive.ObjectID)
	return s.toDomain(&doc), nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrPrincipalNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *CredentialStore) findOne(ctx context.Context, filter bson.M) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoPrincipal
	if err := s.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("find principal: %w", err)
	}
	return s.toDomain(&doc), nil
}

// CompareAndSwapLoginState matches the expected counter and lock in the
// filter, so a concurrent writer makes the update match nothing.
func (s *CredentialStore) CompareAndSwapLoginState(ctx context.Context, id string, expected, next domain.LoginState) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, domain.ErrPrincipalNotFound
	}
	filter := bson.M{
		"_id":             oid,
		"failed_attempts": expected.FailedAttempts,
		"lock_until":      storedTime(expected.LockUntil),
	}
	update := bson.M{"$set": bson.M{
		"failed_attempts": next.FailedAttempts,
		"lock_until":      storedTime(next.LockUntil),
		"updated_at":      time.Now().UTC(),
	}}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("swap login state: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (s *CredentialStore) ResetLoginState(ctx context.Context, id string, at time.Time) error {
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{
		"failed_attempts": 0,
		"lock_until":      nil,
		"last_login_at":   at,
		"updated_at":      at,
	}})
}

func (s *CredentialStore) PushRefreshToken(ctx context.Context, id string, entry domain.RefreshTokenEntry) error {
	return s.updateByID(ctx, id, bson.M{
		"$push": bson.M{"refresh_tokens": toMongoToken(entry)},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

// ReplaceRefreshToken uses the positional operator on an $elemMatch filter:
// the membership check and the swap are one update.
func (s *CredentialStore) ReplaceRefreshToken(ctx context.Context, id, old string, next domain.RefreshTokenEntry, now time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrTokenNotRecognized
	}
	filter := bson.M{
		"_id": oid,
		"refresh_tokens": bson.M{"$elemMatch": bson.M{
			"token":      old,
			"expires_at": bson.M{"$gt": now},
		}},
	}
	update := bson.M{"$set": bson.M{
		"refresh_tokens.$": toMongoToken(next),
		"updated_at":       now,
	}}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTokenNotRecognized
	}
	return nil
}

func (s *CredentialStore) PullRefreshToken(ctx context.Context, id, token string) error {
	return s.updateByID(ctx, id, bson.M{
		"$pull": bson.M{"refresh_tokens": bson.M{"token": token}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (s *CredentialStore) ClearRefreshTokens(ctx context.Context, id string) error {
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{
		"refresh_tokens": []mongoRefreshToken{},
		"updated_at":     time.Now().UTC(),
	}})
}

func (s *CredentialStore) PurgeExpiredRefreshTokens(ctx context.Context, id string, now time.Time) error {
	return s.updateByID(ctx, id, bson.M{
		"$pull": bson.M{"refresh_tokens": bson.M{"expires_at": bson.M{"$lte": now}}},
	})
}

func (s *CredentialStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{
		"is_active":  active,
		"updated_at": time.Now().UTC(),
	}})
}

// EnsureIndexes creates the unique email index and the token lookup index.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "refresh_tokens.token", Value: 1}}},
	}
	_, err := s.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *CredentialStore) updateByID(ctx context.Context, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrPrincipalNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

func (s *CredentialStore) toDomain(doc *mongoPrincipal) *domain.Principal {
	tokens := make([]domain.RefreshTokenEntry, 0, len(doc.RefreshTokens))
	for _, t := range doc.RefreshTokens {
		tokens = append(tokens, domain.RefreshTokenEntry{
			Token:     t.Token,
			IssuedAt:  t.IssuedAt.UTC(),
			ExpiresAt: t.ExpiresAt.UTC(),
		})
	}
	return &domain.Principal{
		ID:            doc.ID.Hex(),
		Kind:          s.kind,
		Email:         doc.Email,
		Name:          doc.Name,
		PasswordHash:  doc.PasswordHash,
		Role:          domain.Role(doc.Role),
		IsActive:      doc.IsActive,
		Login:         domain.LoginState{FailedAttempts: doc.FailedAttempts, LockUntil: utcPtr(doc.LockUntil)},
		RefreshTokens: tokens,
		LastLoginAt:   utcPtr(doc.LastLoginAt),
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
}

func toMongoToken(e domain.RefreshTokenEntry) mongoRefreshToken {
	return mongoRefreshToken{Token: e.Token, IssuedAt: e.IssuedAt, ExpiresAt: e.ExpiresAt}
}

// storedTime truncates to the millisecond precision of BSON dates so that a
// value read back compares equal in a later filter.
func storedTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
