// Package api is the operator-facing management surface: creating local
// actors, following remote accounts, and reading follow stats. It is not
// part of the federation protocol surface.
package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/fedinode/fedinode/apclient"
	"github.com/fedinode/fedinode/delivery"
	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
	"github.com/fedinode/fedinode/vocab"
)

var tracer = otel.Tracer("api")

// followListMax caps follow graph reads for the stats endpoint.
const followListMax = 10000

type Service struct {
	store    *store.Store
	apclient *apclient.ApClient
	delivery *delivery.Service
	config   types.NodeConfig
}

func NewService(
	store *store.Store,
	apclient *apclient.ApClient,
	deliverySvc *delivery.Service,
	config types.NodeConfig,
) *Service {
	return &Service{
		store,
		apclient,
		deliverySvc,
		config,
	}
}

// CreateActor provisions a local actor with a fresh RSA-2048 keypair. The
// private key never leaves the store.
func (s *Service) CreateActor(ctx context.Context, username, name, summary string) (types.Actor, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.CreateActor")
	defer span.End()

	existing, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.Actor{}, err
	}
	if existing != nil {
		return types.Actor{}, errors.Wrap(store.ErrAlreadyExists, "username taken")
	}

	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		span.RecordError(err)
		return types.Actor{}, err
	}

	privKeyBytes := x509.MarshalPKCS1PrivateKey(privKey)
	privKeyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: privKeyBytes,
		},
	)

	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	if err != nil {
		span.RecordError(err)
		return types.Actor{}, err
	}
	pubKeyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: pubKeyBytes,
		},
	)

	created, err := s.store.CreateActor(ctx, types.Actor{
		ID:            s.config.ActorID(username),
		Username:      username,
		Name:          name,
		Summary:       summary,
		PublicKeyPem:  string(pubKeyPEM),
		PrivateKeyPem: string(privKeyPEM),
	})
	if err != nil {
		span.RecordError(err)
		return types.Actor{}, err
	}

	created.PrivateKeyPem = ""
	return created, nil
}

// GetActor reads a local actor with the private key redacted.
func (s *Service) GetActor(ctx context.Context, username string) (types.Actor, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.GetActor")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.Actor{}, err
	}
	if actor == nil {
		return types.Actor{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	actor.PrivateKeyPem = ""
	return *actor, nil
}

// Follow resolves a remote handle, delivers a Follow on behalf of the
// local actor, and records the relation as pending until the Accept
// arrives.
func (s *Service) Follow(ctx context.Context, username, handle string) (types.FollowRelation, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.Follow")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}
	if actor == nil {
		return types.FollowRelation{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	targetActor, err := s.apclient.ResolveActor(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}

	targetPerson, err := s.apclient.FetchPerson(ctx, targetActor, actor)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}
	targetID := targetPerson.MustGetString("id")
	targetInbox := targetPerson.MustGetString("inbox")
	if targetID == "" || targetInbox == "" {
		return types.FollowRelation{}, errors.Wrap(store.ErrInvalidData, "remote actor document is incomplete")
	}

	existing, err := s.store.GetFollowByPair(ctx, actor.ID, targetID)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	followID := s.config.ServerURL + "/follows/" + uuid.New().String()
	followObject := types.ApObject{
		Context: vocab.ContextActivityStreams,
		Type:    "Follow",
		ID:      followID,
		Actor:   actor.ID,
		Object:  targetID,
	}
	payload, err := json.Marshal(followObject)
	if err != nil {
		return types.FollowRelation{}, err
	}

	result := s.delivery.Deliver(ctx, targetInbox, payload, *actor)
	if !result.Success {
		span.RecordError(errors.New(result.Error))
		return types.FollowRelation{}, errors.New("follow delivery failed: " + result.Error)
	}

	relation, err := s.store.CreateFollow(ctx, types.FollowRelation{
		ID:          followID,
		FollowerID:  actor.ID,
		FollowingID: targetID,
		Status:      vocab.FollowPending,
	})
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}

	return relation, nil
}

// Unfollow delivers an Undo for the stored follow and removes the
// relation.
func (s *Service) Unfollow(ctx context.Context, username, handle string) (types.FollowRelation, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.Unfollow")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}
	if actor == nil {
		return types.FollowRelation{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	targetActor, err := s.apclient.ResolveActor(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}

	targetPerson, err := s.apclient.FetchPerson(ctx, targetActor, actor)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}
	targetID := targetPerson.MustGetString("id")
	targetInbox := targetPerson.MustGetString("inbox")

	relation, err := s.store.GetFollowByPair(ctx, actor.ID, targetID)
	if err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}
	if relation == nil {
		return types.FollowRelation{}, errors.Wrap(store.ErrNotFound, "follow not found")
	}

	undoObject := types.ApObject{
		Context: vocab.ContextActivityStreams,
		Type:    "Undo",
		ID:      relation.ID + "/undo",
		Actor:   actor.ID,
		Object: types.ApObject{
			Type:   "Follow",
			ID:     relation.ID,
			Actor:  actor.ID,
			Object: targetID,
		},
	}
	payload, err := json.Marshal(undoObject)
	if err != nil {
		return types.FollowRelation{}, err
	}

	result := s.delivery.Deliver(ctx, targetInbox, payload, *actor)
	if !result.Success {
		span.RecordError(errors.New(result.Error))
		return types.FollowRelation{}, errors.New("undo delivery failed: " + result.Error)
	}

	if err := s.store.DeleteFollow(ctx, relation.ID); err != nil {
		span.RecordError(err)
		return types.FollowRelation{}, err
	}

	return *relation, nil
}

// GetStats summarizes an actor's follow graph.
func (s *Service) GetStats(ctx context.Context, username string) (types.AccountStats, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.GetStats")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.AccountStats{}, err
	}
	if actor == nil {
		return types.AccountStats{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	followerRelations, err := s.store.GetFollowers(ctx, actor.ID, followListMax, 0)
	if err != nil {
		span.RecordError(err)
		return types.AccountStats{}, err
	}
	followingRelations, err := s.store.GetFollowing(ctx, actor.ID, followListMax, 0)
	if err != nil {
		span.RecordError(err)
		return types.AccountStats{}, err
	}

	stats := types.AccountStats{
		Followers: make([]string, 0, len(followerRelations)),
		Following: make([]string, 0, len(followingRelations)),
	}
	for _, f := range followerRelations {
		stats.Followers = append(stats.Followers, f.FollowerID)
	}
	for _, f := range followingRelations {
		stats.Following = append(stats.Following, f.FollowingID)
	}
	stats.FollowerCount = int64(len(stats.Followers))
	stats.FollowingCount = int64(len(stats.Following))

	return stats, nil
}
