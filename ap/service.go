package ap

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/fedinode/fedinode/apclient"
	"github.com/fedinode/fedinode/delivery"
	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
	"github.com/fedinode/fedinode/vocab"
)

var tracer = otel.Tracer("activitypub")

// outboxPageSize is the number of items on a collection page.
const outboxPageSize = 20

// followListMax caps follower and following reads. Collections and fan-out
// share it; a node somehow past this many followers truncates silently.
const followListMax = 10000

type Service struct {
	store    *store.Store
	apclient *apclient.ApClient
	delivery *delivery.Service
	queue    *delivery.Queue
	config   types.NodeConfig
}

func NewService(
	store *store.Store,
	apclient *apclient.ApClient,
	deliverySvc *delivery.Service,
	queue *delivery.Queue,
	config types.NodeConfig,
) *Service {
	return &Service{
		store,
		apclient,
		deliverySvc,
		queue,
		config,
	}
}

// WebFinger answers an acct: resource lookup. The host must match this
// node; the account itself is not checked for existence, which keeps the
// endpoint from being an account oracle.
func (s *Service) WebFinger(ctx context.Context, resource string) (types.WebFinger, error) {
	_, span := tracer.Start(ctx, "Ap.Service.WebFinger")
	defer span.End()

	rt, id, found := strings.Cut(resource, ":")
	if !found {
		return types.WebFinger{}, errors.Wrap(store.ErrInvalidData, "invalid resource")
	}
	if rt != "acct" {
		return types.WebFinger{}, errors.Wrap(store.ErrInvalidData, "invalid resource type")
	}

	id = strings.TrimPrefix(id, "@")
	split := strings.Split(id, "@")
	if len(split) != 2 {
		return types.WebFinger{}, errors.Wrap(store.ErrInvalidData, "invalid resource")
	}
	username, domain := split[0], split[1]
	if domain != s.config.Host() {
		return types.WebFinger{}, errors.Wrap(store.ErrNotFound, "domain not found")
	}

	return types.WebFinger{
		Subject: resource,
		Links: []types.WebFingerLink{
			{
				Rel:  "self",
				Type: vocab.ContentTypeActivityJSON,
				Href: s.config.ActorID(username),
			},
			{
				Rel:  "http://webfinger.net/rel/profile-page",
				Type: "text/html",
				Href: s.config.ActorID(username),
			},
		},
	}, nil
}

func (s *Service) NodeInfo(ctx context.Context) (types.NodeInfo, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.NodeInfo")
	defer span.End()

	total, err := s.store.CountActors(ctx)
	if err != nil {
		span.RecordError(err)
		return types.NodeInfo{}, err
	}

	return types.NodeInfo{
		Version: "2.0",
		Software: types.NodeInfoSoftware{
			Name:    "fedinode",
			Version: s.config.Version,
		},
		Protocols:         []string{"activitypub"},
		OpenRegistrations: false,
		Usage: types.NodeInfoUsage{
			Users: types.NodeInfoUsers{Total: total},
		},
		Metadata: types.NodeInfoMetadata{
			NodeName: s.config.ServerName,
		},
	}, nil
}

func (s *Service) NodeInfoWellKnown(ctx context.Context) (types.WellKnown, error) {
	_, span := tracer.Start(ctx, "Ap.Service.NodeInfoWellKnown")
	defer span.End()
	return types.WellKnown{
		Links: []types.WellKnownLink{
			{
				Rel:  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				Href: s.config.ServerURL + "/nodeinfo/2.0",
			},
		},
	}, nil
}

// -

// Actor renders a local actor's Person document.
func (s *Service) Actor(ctx context.Context, username string) (types.ApObject, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Actor")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.ApObject{}, err
	}
	if actor == nil {
		return types.ApObject{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	id := s.config.ActorID(actor.Username)
	return types.ApObject{
		Context: []string{
			vocab.ContextActivityStreams,
			vocab.ContextSecurity,
		},
		Type:              vocab.TypePerson,
		ID:                id,
		PreferredUsername: actor.Username,
		Name:              actor.Name,
		Summary:           actor.Summary,
		URL:               s.config.ServerURL + "/@" + actor.Username,
		Inbox:             id + "/inbox",
		Outbox:            id + "/outbox",
		Followers:         id + "/followers",
		Following:         id + "/following",
		PublicKey: &types.Key{
			ID:           s.config.KeyID(actor.Username),
			Type:         vocab.TypeKey,
			Owner:        id,
			PublicKeyPem: actor.PublicKeyPem,
		},
	}, nil
}

// Note renders a stored note document.
func (s *Service) Note(ctx context.Context, noteID string) (types.ApObject, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Note")
	defer span.End()

	note, err := s.store.GetNoteByID(ctx, noteID)
	if err != nil {
		span.RecordError(err)
		return types.ApObject{}, err
	}
	if note == nil {
		return types.ApObject{}, errors.Wrap(store.ErrNotFound, "note not found")
	}

	return noteToObject(*note), nil
}

func noteToObject(note types.Note) types.ApObject {
	return types.ApObject{
		Context:      vocab.ContextActivityStreams,
		Type:         vocab.TypeNote,
		ID:           note.ID,
		AttributedTo: note.AttributedTo,
		Content:      note.Content,
		Published:    note.Published.Format(time.RFC3339),
		InReplyTo:    note.InReplyTo,
		To:           note.To,
		CC:           note.CC,
	}
}

func activityToObject(a types.Activity) types.ApObject {
	obj := types.ApObject{
		Context:   vocab.ContextActivityStreams,
		Type:      a.Type,
		ID:        a.ID,
		Actor:     a.ActorID,
		Published: a.Published.Format(time.RFC3339),
		To:        a.To,
		CC:        a.CC,
	}
	if a.Object != "" {
		obj.Object = json.RawMessage(a.Object)
	}
	return obj
}

// -

// Outbox renders an actor's outbox. With page unset it returns the
// collection envelope; with page set it returns the newest items.
func (s *Service) Outbox(ctx context.Context, username string, page bool) (types.OrderedCollection, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Outbox")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}
	if actor == nil {
		return types.OrderedCollection{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	collectionID := s.config.ActorID(username) + "/outbox"
	total, err := s.store.GetActorOutboxCount(ctx, actor.ID)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}

	activities, err := s.store.GetActivitiesByActor(ctx, actor.ID, outboxPageSize, 0)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}

	items := make([]any, 0, len(activities))
	for _, a := range activities {
		items = append(items, activityToObject(a))
	}

	if page {
		return types.OrderedCollection{
			Context:      vocab.ContextActivityStreams,
			ID:           collectionID + "?page=true",
			Type:         "OrderedCollectionPage",
			TotalItems:   total,
			OrderedItems: items,
		}, nil
	}

	return types.OrderedCollection{
		Context:      vocab.ContextActivityStreams,
		ID:           collectionID,
		Type:         vocab.TypeOrderedCollection,
		TotalItems:   total,
		First:        collectionID + "?page=true",
		Last:         collectionID + "?page=true",
		OrderedItems: items,
	}, nil
}

// InboxCollection renders the activities addressed to an actor.
func (s *Service) InboxCollection(ctx context.Context, username string, page bool) (types.OrderedCollection, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.InboxCollection")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}
	if actor == nil {
		return types.OrderedCollection{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	collectionID := s.config.ActorID(username) + "/inbox"
	total, err := s.store.GetActorInboxCount(ctx, actor.ID)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}

	activities, err := s.store.GetInboxActivities(ctx, actor.ID, outboxPageSize, 0)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}

	items := make([]any, 0, len(activities))
	for _, a := range activities {
		items = append(items, activityToObject(a))
	}

	if page {
		return types.OrderedCollection{
			Context:      vocab.ContextActivityStreams,
			ID:           collectionID + "?page=true",
			Type:         "OrderedCollectionPage",
			TotalItems:   total,
			OrderedItems: items,
		}, nil
	}

	return types.OrderedCollection{
		Context:      vocab.ContextActivityStreams,
		ID:           collectionID,
		Type:         vocab.TypeOrderedCollection,
		TotalItems:   total,
		First:        collectionID + "?page=true",
		Last:         collectionID + "?page=true",
		OrderedItems: items,
	}, nil
}

// Followers renders the accepted followers of an actor as a collection of
// actor ids.
func (s *Service) Followers(ctx context.Context, username string) (types.OrderedCollection, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Followers")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}
	if actor == nil {
		return types.OrderedCollection{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	follows, err := s.store.GetFollowers(ctx, actor.ID, followListMax, 0)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}

	items := make([]any, 0, len(follows))
	for _, f := range follows {
		items = append(items, f.FollowerID)
	}

	return types.OrderedCollection{
		Context:      vocab.ContextActivityStreams,
		ID:           s.config.ActorID(username) + "/followers",
		Type:         vocab.TypeOrderedCollection,
		TotalItems:   int64(len(items)),
		OrderedItems: items,
	}, nil
}

// Following renders the actors an actor follows.
func (s *Service) Following(ctx context.Context, username string) (types.OrderedCollection, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Following")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}
	if actor == nil {
		return types.OrderedCollection{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	follows, err := s.store.GetFollowing(ctx, actor.ID, followListMax, 0)
	if err != nil {
		span.RecordError(err)
		return types.OrderedCollection{}, err
	}

	items := make([]any, 0, len(follows))
	for _, f := range follows {
		items = append(items, f.FollowingID)
	}

	return types.OrderedCollection{
		Context:      vocab.ContextActivityStreams,
		ID:           s.config.ActorID(username) + "/following",
		Type:         vocab.TypeOrderedCollection,
		TotalItems:   int64(len(items)),
		OrderedItems: items,
	}, nil
}

// -

// PostActivity handles a client posting to its own outbox. A Create with a
// Note object mints ids for both, persists them, and fans the activity out
// to every accepted follower's inbox. Anything else is acknowledged without
// being persisted. The returned document is the stored activity.
func (s *Service) PostActivity(ctx context.Context, username string, raw *types.RawApObj) (types.ApObject, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.PostActivity")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.ApObject{}, errors.New("Internal server error")
	}
	if actor == nil {
		return types.ApObject{}, errors.Wrap(store.ErrNotFound, "actor not found")
	}

	activityType := raw.MustGetString("type")
	if activityType == "" {
		return types.ApObject{}, errors.Wrap(store.ErrInvalidData, "activity has no type")
	}

	activityID := s.config.ServerURL + "/activities/" + uuid.New().String()
	published := time.Now().UTC()
	to := raw.GetStringList("to")
	cc := raw.GetStringList("cc")

	// only Create/Note is persisted; anything else is acknowledged and
	// dropped, reserved for later
	objType, _ := raw.GetString("object.type")
	if activityType != "Create" || objType != vocab.TypeNote {
		slog.Info("outbox: accepting unhandled activity",
			slog.String("type", activityType), slog.String("actor", actor.ID))
		return types.ApObject{}, nil
	}

	noteID := s.config.ServerURL + "/notes/" + uuid.New().String()
	note := types.Note{
		ID:           noteID,
		AttributedTo: actor.ID,
		Content:      raw.MustGetString("object.content"),
		To:           to,
		CC:           cc,
		Published:    published,
		InReplyTo:    raw.MustGetString("object.inReplyTo"),
		Tags:         tagNames(raw, "object.tag"),
	}
	if _, err := s.store.CreateNote(ctx, note); err != nil {
		span.RecordError(err)
		return types.ApObject{}, errors.New("Failed to create note")
	}

	// the stored activity embeds the payload object as supplied, with the
	// minted identity fields overwritten
	objData := map[string]any{}
	if obj, ok := raw.GetRaw("object"); ok {
		for k, v := range obj.GetData() {
			objData[k] = v
		}
	}
	objData["id"] = noteID
	objData["attributedTo"] = actor.ID
	objData["published"] = published.Format(time.RFC3339)
	objectJSON := mustMarshal(objData)

	activity := types.Activity{
		ID:        activityID,
		ActorID:   actor.ID,
		Type:      activityType,
		Object:    objectJSON,
		To:        to,
		CC:        cc,
		Published: published,
	}
	stored, err := s.store.CreateActivity(ctx, activity)
	if err != nil {
		span.RecordError(err)
		// do not leave an orphaned note behind
		if noteID != "" {
			if derr := s.store.DeleteNote(ctx, noteID); derr != nil {
				slog.Error("orphaned note cleanup failed",
					slog.String("note", noteID), slog.String("error", derr.Error()))
			}
		}
		return types.ApObject{}, errors.New("Failed to create activity")
	}

	result := activityToObject(stored)
	s.fanOut(ctx, *actor, stored, result)
	return result, nil
}

// fanOut enqueues a stored activity for delivery to every accepted
// follower. Delivery failures never fail the originating request.
func (s *Service) fanOut(ctx context.Context, actor types.Actor, activity types.Activity, doc types.ApObject) {
	if s.queue == nil {
		return
	}

	follows, err := s.store.GetFollowers(ctx, actor.ID, followListMax, 0)
	if err != nil {
		slog.Error("fan-out: listing followers failed",
			slog.String("actor", actor.ID), slog.String("error", err.Error()))
		return
	}
	if len(follows) == 0 {
		return
	}

	// shared inboxes collapse followers on the same host to one delivery
	seen := map[string]bool{}
	inboxes := make([]string, 0, len(follows))
	for _, f := range follows {
		inbox, err := s.followerInbox(ctx, actor, f.FollowerID)
		if err != nil {
			slog.Warn("fan-out: skipping follower",
				slog.String("follower", f.FollowerID), slog.String("error", err.Error()))
			continue
		}
		if seen[inbox] {
			continue
		}
		seen[inbox] = true
		inboxes = append(inboxes, inbox)
	}
	if len(inboxes) == 0 {
		return
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		slog.Error("fan-out: marshal failed", slog.String("error", err.Error()))
		return
	}

	err = s.queue.Enqueue(ctx, delivery.Job{
		ActivityID: activity.ID,
		ActorID:    actor.ID,
		Activity:   payload,
		Inboxes:    inboxes,
	})
	if err != nil {
		slog.Error("fan-out: enqueue failed",
			slog.String("activity", activity.ID), slog.String("error", err.Error()))
	}
}

func (s *Service) followerInbox(ctx context.Context, execActor types.Actor, followerID string) (string, error) {
	person, err := s.apclient.FetchPerson(ctx, followerID, &execActor)
	if err != nil {
		return "", err
	}
	if shared, ok := person.GetString("endpoints.sharedInbox"); ok && shared != "" {
		return shared, nil
	}
	inbox, ok := person.GetString("inbox")
	if !ok || inbox == "" {
		return "", errors.New("actor document carries no inbox")
	}
	return inbox, nil
}

// -

// Inbox dispatches one inbound activity addressed to a local actor. The
// handler has already authenticated (or logged) the request; dispatch is
// tolerant, and unknown activity types are logged and dropped.
func (s *Service) Inbox(ctx context.Context, username string, raw *types.RawApObj) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.Inbox")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if actor == nil {
		return errors.Wrap(store.ErrNotFound, "actor not found")
	}

	kind := vocab.ParseActivityKind(raw.MustGetString("type"))
	var dispatchErr error
	switch kind {
	case vocab.KindCreate:
		dispatchErr = s.inboxCreate(ctx, *actor, raw)
	case vocab.KindFollow:
		dispatchErr = s.inboxFollow(ctx, *actor, raw)
	case vocab.KindAccept:
		dispatchErr = s.inboxAccept(ctx, *actor, raw)
	case vocab.KindUndo:
		dispatchErr = s.inboxUndo(ctx, *actor, raw)
	default:
		slog.Info("inbox: ignoring activity",
			slog.String("type", raw.MustGetString("type")),
			slog.String("actor", raw.MustGetString("actor")))
		return nil
	}

	if dispatchErr != nil {
		if errors.Is(dispatchErr, store.ErrInvalidData) {
			return dispatchErr
		}
		// store failures stay on our side; the peer can redeliver
		span.RecordError(dispatchErr)
		slog.Error("inbox: dispatch failed",
			slog.String("type", kind.String()),
			slog.String("error", dispatchErr.Error()))
	}
	return nil
}

func (s *Service) inboxCreate(ctx context.Context, actor types.Actor, raw *types.RawApObj) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.InboxCreate")
	defer span.End()

	objectID := raw.MustGetString("object.id")
	if objectID == "" {
		return errors.Wrap(store.ErrInvalidData, "create has no object id")
	}

	// redelivery is a no-op
	existing, err := s.store.GetNoteByID(ctx, objectID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if existing != nil {
		return nil
	}

	published := time.Now().UTC()
	if ts, ok := raw.GetString("object.published"); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			published = parsed.UTC()
		}
	}

	note := types.Note{
		ID:           objectID,
		AttributedTo: raw.MustGetString("object.attributedTo"),
		Content:      raw.MustGetString("object.content"),
		To:           raw.GetStringList("object.to"),
		CC:           raw.GetStringList("object.cc"),
		Published:    published,
		InReplyTo:    raw.MustGetString("object.inReplyTo"),
		Tags:         tagNames(raw, "object.tag"),
	}
	if note.AttributedTo == "" {
		note.AttributedTo = raw.MustGetString("actor")
	}
	if _, err := s.store.CreateNote(ctx, note); err != nil {
		span.RecordError(err)
		return err
	}

	activityID := raw.MustGetString("id")
	if activityID == "" {
		activityID = s.config.ServerURL + "/activities/" + uuid.New().String()
	}

	var objectJSON string
	if obj, ok := raw.GetRaw("object"); ok {
		objectJSON = mustMarshal(obj.GetData())
	}

	_, err = s.store.CreateActivity(ctx, types.Activity{
		ID:        activityID,
		ActorID:   raw.MustGetString("actor"),
		Type:      "Create",
		Object:    objectJSON,
		To:        raw.GetStringList("to"),
		CC:        raw.GetStringList("cc"),
		Published: published,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *Service) inboxFollow(ctx context.Context, actor types.Actor, raw *types.RawApObj) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.InboxFollow")
	defer span.End()

	requester := raw.MustGetString("actor")
	if requester == "" {
		return errors.Wrap(store.ErrInvalidData, "follow has no actor")
	}

	target := raw.MustGetString("object")
	if target != actor.ID {
		slog.Info("inbox: follow targets someone else",
			slog.String("target", target), slog.String("actor", actor.ID))
		return nil
	}

	// a pending or accepted relation already covers this pair
	existing, err := s.store.GetFollowByPair(ctx, requester, actor.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if existing != nil {
		return nil
	}

	relation := types.FollowRelation{
		ID:          s.config.ServerURL + "/follows/" + uuid.New().String(),
		FollowerID:  requester,
		FollowingID: actor.ID,
		Status:      vocab.FollowPending,
	}
	if _, err := s.store.CreateFollow(ctx, relation); err != nil {
		span.RecordError(err)
		return err
	}

	if s.config.AutoAcceptFollows {
		if err := s.acceptFollow(ctx, actor, relation, raw); err != nil {
			slog.Error("auto-accept failed",
				slog.String("follower", requester), slog.String("error", err.Error()))
			// the relation stays pending; the operator can retry
		}
	}
	return nil
}

// acceptFollow delivers an Accept for the stored follow and marks the
// relation accepted.
func (s *Service) acceptFollow(ctx context.Context, actor types.Actor, relation types.FollowRelation, follow *types.RawApObj) error {
	if s.delivery == nil {
		return errors.New("delivery not configured")
	}

	person, err := s.apclient.FetchPerson(ctx, relation.FollowerID, &actor)
	if err != nil {
		return err
	}
	inbox, ok := person.GetString("inbox")
	if !ok || inbox == "" {
		return errors.New("follower document carries no inbox")
	}

	accept := types.ApObject{
		Context: vocab.ContextActivityStreams,
		ID:      s.config.ServerURL + "/accepts/" + uuid.New().String(),
		Type:    "Accept",
		Actor:   actor.ID,
		Object:  follow.GetData(),
	}
	payload, err := json.Marshal(accept)
	if err != nil {
		return err
	}

	result := s.delivery.Deliver(ctx, inbox, payload, actor)
	if !result.Success {
		return errors.New("accept delivery failed: " + result.Error)
	}

	return s.store.UpdateFollowStatus(ctx, relation.ID, vocab.FollowAccepted)
}

func (s *Service) inboxAccept(ctx context.Context, actor types.Actor, raw *types.RawApObj) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.InboxAccept")
	defer span.End()

	// the accepted Follow arrives as its id or as the embedded document
	followID, _ := raw.GetString("object")
	if followID == "" {
		followID = raw.MustGetString("object.id")
	}

	if followID != "" {
		relation, err := s.store.GetFollowByID(ctx, followID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if relation != nil {
			return s.store.UpdateFollowStatus(ctx, relation.ID, vocab.FollowAccepted)
		}
	}

	// fall back to the pair when the id is unknown
	remote := raw.MustGetString("actor")
	relation, err := s.store.GetFollowByPair(ctx, actor.ID, remote)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if relation == nil {
		slog.Info("accept for unknown follow", slog.String("follow", followID))
		return nil
	}
	return s.store.UpdateFollowStatus(ctx, relation.ID, vocab.FollowAccepted)
}

func (s *Service) inboxUndo(ctx context.Context, actor types.Actor, raw *types.RawApObj) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.InboxUndo")
	defer span.End()

	objType := raw.MustGetString("object.type")
	if objType != "Follow" {
		slog.Info("inbox: ignoring undo", slog.String("objectType", objType))
		return nil
	}

	follower := raw.MustGetString("object.actor")
	if follower == "" {
		follower = raw.MustGetString("actor")
	}

	relation, err := s.store.GetFollowByPair(ctx, follower, actor.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if relation == nil {
		// already gone; undo is idempotent
		return nil
	}
	return s.store.DeleteFollow(ctx, relation.ID)
}

// tagNames flattens a wire tag list to its names for storage.
func tagNames(raw *types.RawApObj, key string) pq.StringArray {
	var names pq.StringArray
	for _, tag := range raw.GetObjectList(key) {
		if name, ok := tag.GetString("name"); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
