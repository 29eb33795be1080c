package store

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/fedinode/fedinode/types"
	"github.com/fedinode/fedinode/vocab"
)

var tracer = otel.Tracer("store")

// Store is the entity repository. It is the sole mutator of persistent
// state; handlers read snapshots and submit full-record writes.
type Store struct {
	db *gorm.DB
}

// NewStore returns a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// recipientPattern matches a full URI inside a JSON-encoded recipient
// column. The quotes keep the match exact: no URI is a quoted substring
// of another. LIKE metacharacters in the URI are escaped so `_` and `%`
// never act as wildcards; queries using the pattern must carry the
// matching ESCAPE clause.
func recipientPattern(id string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(id)
	return `%"` + escaped + `"%`
}

const recipientMatch = `to_recipients LIKE ? ESCAPE '\' OR cc_recipients LIKE ? ESCAPE '\'`

// ----------------------------------------------------------------- actors

func (s *Store) CreateActor(ctx context.Context, actor types.Actor) (types.Actor, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateActor")
	defer span.End()

	now := time.Now().UTC()
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = now
	}
	if actor.UpdatedAt.IsZero() {
		actor.UpdatedAt = now
	}

	result := s.db.WithContext(ctx).Create(&actor)
	return actor, classify(result.Error)
}

func (s *Store) GetActorByID(ctx context.Context, id string) (*types.Actor, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActorByID")
	defer span.End()

	var actor types.Actor
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&actor)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &actor, nil
}

func (s *Store) GetActorByUsername(ctx context.Context, username string) (*types.Actor, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActorByUsername")
	defer span.End()

	var actor types.Actor
	result := s.db.WithContext(ctx).Where("username = ?", username).First(&actor)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &actor, nil
}

// UpdateActor rewrites the mutable profile fields. A missing row is a no-op.
func (s *Store) UpdateActor(ctx context.Context, actor types.Actor) error {
	ctx, span := tracer.Start(ctx, "StoreUpdateActor")
	defer span.End()

	result := s.db.WithContext(ctx).Model(&types.Actor{}).Where("id = ?", actor.ID).Updates(map[string]any{
		"name":            actor.Name,
		"summary":         actor.Summary,
		"public_key_pem":  actor.PublicKeyPem,
		"private_key_pem": actor.PrivateKeyPem,
		"updated_at":      time.Now().UTC(),
	})
	return classify(result.Error)
}

func (s *Store) DeleteActor(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteActor")
	defer span.End()

	return classify(s.db.WithContext(ctx).Where("id = ?", id).Delete(&types.Actor{}).Error)
}

func (s *Store) CountActors(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreCountActors")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.Actor{}).Count(&count).Error
	return count, classify(err)
}

// ------------------------------------------------------------- activities

func (s *Store) CreateActivity(ctx context.Context, activity types.Activity) (types.Activity, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateActivity")
	defer span.End()

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if activity.Published.IsZero() {
		activity.Published = activity.CreatedAt
	}

	result := s.db.WithContext(ctx).Create(&activity)
	return activity, classify(result.Error)
}

func (s *Store) GetActivityByID(ctx context.Context, id string) (*types.Activity, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActivityByID")
	defer span.End()

	var activity types.Activity
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&activity)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &activity, nil
}

// GetActivitiesByActor returns the actor's authored activities, newest
// first, over the half-open window [offset, offset+limit).
func (s *Store) GetActivitiesByActor(ctx context.Context, actorID string, limit, offset int) ([]types.Activity, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActivitiesByActor")
	defer span.End()

	activities := []types.Activity{}
	if limit <= 0 {
		return activities, nil
	}

	err := s.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("published DESC").
		Limit(limit).Offset(offset).
		Find(&activities).Error
	return activities, classify(err)
}

// GetInboxActivities returns activities addressed to the actor in to or cc.
// Membership is an exact URI match.
func (s *Store) GetInboxActivities(ctx context.Context, actorID string, limit, offset int) ([]types.Activity, error) {
	ctx, span := tracer.Start(ctx, "StoreGetInboxActivities")
	defer span.End()

	activities := []types.Activity{}
	if limit <= 0 {
		return activities, nil
	}

	pattern := recipientPattern(actorID)
	err := s.db.WithContext(ctx).
		Where(recipientMatch, pattern, pattern).
		Order("published DESC").
		Limit(limit).Offset(offset).
		Find(&activities).Error
	return activities, classify(err)
}

func (s *Store) GetActorOutboxCount(ctx context.Context, actorID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActorOutboxCount")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.Activity{}).Where("actor_id = ?", actorID).Count(&count).Error
	return count, classify(err)
}

func (s *Store) GetActorInboxCount(ctx context.Context, actorID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActorInboxCount")
	defer span.End()

	pattern := recipientPattern(actorID)
	var count int64
	err := s.db.WithContext(ctx).Model(&types.Activity{}).
		Where(recipientMatch, pattern, pattern).
		Count(&count).Error
	return count, classify(err)
}

// ------------------------------------------------------------------ notes

func (s *Store) CreateNote(ctx context.Context, note types.Note) (types.Note, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateNote")
	defer span.End()

	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	if note.Published.IsZero() {
		note.Published = note.CreatedAt
	}

	result := s.db.WithContext(ctx).Create(&note)
	return note, classify(result.Error)
}

func (s *Store) GetNoteByID(ctx context.Context, id string) (*types.Note, error) {
	ctx, span := tracer.Start(ctx, "StoreGetNoteByID")
	defer span.End()

	var note types.Note
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&note)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &note, nil
}

func (s *Store) GetNotesByActor(ctx context.Context, actorID string, limit, offset int) ([]types.Note, error) {
	ctx, span := tracer.Start(ctx, "StoreGetNotesByActor")
	defer span.End()

	notes := []types.Note{}
	if limit <= 0 {
		return notes, nil
	}

	err := s.db.WithContext(ctx).
		Where("attributed_to = ?", actorID).
		Order("published DESC").
		Limit(limit).Offset(offset).
		Find(&notes).Error
	return notes, classify(err)
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteNote")
	defer span.End()

	return classify(s.db.WithContext(ctx).Where("id = ?", id).Delete(&types.Note{}).Error)
}

// ---------------------------------------------------------------- follows

func (s *Store) CreateFollow(ctx context.Context, follow types.FollowRelation) (types.FollowRelation, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateFollow")
	defer span.End()

	now := time.Now().UTC()
	if follow.CreatedAt.IsZero() {
		follow.CreatedAt = now
	}
	if follow.UpdatedAt.IsZero() {
		follow.UpdatedAt = now
	}
	if follow.Status == "" {
		follow.Status = vocab.FollowPending
	}

	result := s.db.WithContext(ctx).Create(&follow)
	return follow, classify(result.Error)
}

func (s *Store) GetFollowByID(ctx context.Context, id string) (*types.FollowRelation, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollowByID")
	defer span.End()

	var follow types.FollowRelation
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&follow)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &follow, nil
}

// GetFollowByPair returns the active (non-rejected) relation for a
// (follower, following) pair, if one exists.
func (s *Store) GetFollowByPair(ctx context.Context, followerID, followingID string) (*types.FollowRelation, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollowByPair")
	defer span.End()

	var follow types.FollowRelation
	result := s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ? AND status <> ?", followerID, followingID, vocab.FollowRejected).
		First(&follow)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &follow, nil
}

// GetFollowers returns accepted relations whose following_id is the actor.
func (s *Store) GetFollowers(ctx context.Context, actorID string, limit, offset int) ([]types.FollowRelation, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollowers")
	defer span.End()

	follows := []types.FollowRelation{}
	if limit <= 0 {
		return follows, nil
	}

	err := s.db.WithContext(ctx).
		Where("following_id = ? AND status = ?", actorID, vocab.FollowAccepted).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&follows).Error
	return follows, classify(err)
}

// GetFollowing returns accepted relations whose follower_id is the actor.
func (s *Store) GetFollowing(ctx context.Context, actorID string, limit, offset int) ([]types.FollowRelation, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollowing")
	defer span.End()

	follows := []types.FollowRelation{}
	if limit <= 0 {
		return follows, nil
	}

	err := s.db.WithContext(ctx).
		Where("follower_id = ? AND status = ?", actorID, vocab.FollowAccepted).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&follows).Error
	return follows, classify(err)
}

// UpdateFollowStatus transitions a relation. A missing row is a no-op.
func (s *Store) UpdateFollowStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "StoreUpdateFollowStatus")
	defer span.End()

	result := s.db.WithContext(ctx).Model(&types.FollowRelation{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
	return classify(result.Error)
}

func (s *Store) DeleteFollow(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteFollow")
	defer span.End()

	return classify(s.db.WithContext(ctx).Where("id = ?", id).Delete(&types.FollowRelation{}).Error)
}

func (s *Store) GetActorFollowersCount(ctx context.Context, actorID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActorFollowersCount")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.FollowRelation{}).
		Where("following_id = ? AND status = ?", actorID, vocab.FollowAccepted).
		Count(&count).Error
	return count, classify(err)
}

func (s *Store) GetActorFollowingCount(ctx context.Context, actorID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActorFollowingCount")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.FollowRelation{}).
		Where("follower_id = ? AND status = ?", actorID, vocab.FollowAccepted).
		Count(&count).Error
	return count, classify(err)
}

// ------------------------------------------------------------------- keys

// LoadPrivateKey parses the actor's PEM private key.
func (s *Store) LoadPrivateKey(ctx context.Context, actor types.Actor) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(actor.PrivateKeyPem))
	if block == nil {
		return nil, errors.WithMessage(ErrInvalidData, "failed to parse PEM block containing the key")
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.WithMessage(ErrInvalidData, "failed to parse DER encoded private key: "+err.Error())
	}

	return priv, nil
}
