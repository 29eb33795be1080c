package ap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
	"github.com/fedinode/fedinode/vocab"
)

type testEnv struct {
	echo    *echo.Echo
	handler Handler
	store   *store.Store
	config  types.NodeConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&types.Actor{},
		&types.Activity{},
		&types.Note{},
		&types.FollowRelation{},
	))

	st := store.NewStore(db)
	config := types.NodeConfig{
		ServerName: "Test Node",
		ServerURL:  "https://example.com",
		ActorName:  "alice",
		Version:    "test",
	}
	service := NewService(st, nil, nil, nil, config)

	return &testEnv{
		echo:    echo.New(),
		handler: NewHandler(service, nil),
		store:   st,
		config:  config,
	}
}

func (env *testEnv) seedActor(t *testing.T, username string) types.Actor {
	t.Helper()
	actor, err := env.store.CreateActor(context.Background(), types.Actor{
		ID:       env.config.ActorID(username),
		Username: username,
		Name:     strings.ToUpper(username[:1]) + username[1:],
	})
	require.NoError(t, err)
	return actor
}

func (env *testEnv) request(method, target string, body string, accept string) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, vocab.ContentTypeActivityJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req, httptest.NewRecorder()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWebFinger(t *testing.T) {
	env := newTestEnv(t)

	req, rec := env.request(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@example.com", "", "")
	c := env.echo.NewContext(req, rec)
	require.NoError(t, env.handler.WebFinger(c))

	require.Equal(t, http.StatusOK, rec.Code)
	var finger types.WebFinger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finger))
	assert.Equal(t, "acct:alice@example.com", finger.Subject)

	var self string
	for _, link := range finger.Links {
		if link.Rel == "self" {
			self = link.Href
		}
	}
	assert.Equal(t, "https://example.com/users/alice", self)
}

func TestWebFingerWrongHost(t *testing.T) {
	env := newTestEnv(t)

	req, rec := env.request(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@elsewhere.com", "", "")
	c := env.echo.NewContext(req, rec)
	require.NoError(t, env.handler.WebFinger(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestActorDocument(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	req, rec := env.request(http.MethodGet, "/users/alice", "", vocab.ContentTypeActivityJSON)
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.Actor(c))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Person", body["type"])
	assert.Equal(t, "https://example.com/users/alice", body["id"])
	assert.Equal(t, "alice", body["preferredUsername"])
	assert.Equal(t, "https://example.com/users/alice/inbox", body["inbox"])
	assert.Equal(t, "https://example.com/users/alice/outbox", body["outbox"])

	publicKey, ok := body["publicKey"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/users/alice#main-key", publicKey["id"])
}

func TestActorNotFound(t *testing.T) {
	env := newTestEnv(t)

	req, rec := env.request(http.MethodGet, "/users/ghost", "", vocab.ContentTypeActivityJSON)
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("ghost")
	require.NoError(t, env.handler.Actor(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Actor not found", decodeBody(t, rec)["error"])
}

func TestPostOutboxCreateNote(t *testing.T) {
	env := newTestEnv(t)
	actor := env.seedActor(t, "alice")

	payload := `{
		"type": "Create",
		"to": ["` + vocab.PublicAddressee + `"],
		"object": {"type": "Note", "content": "hello world", "sensitive": true}
	}`
	req, rec := env.request(http.MethodPost, "/users/alice/outbox", payload, "")
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.PostOutbox(c))

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Create", body["type"])
	assert.Equal(t, actor.ID, body["actor"])

	activityID, _ := body["id"].(string)
	assert.True(t, strings.HasPrefix(activityID, "https://example.com/activities/"))

	object, ok := body["object"].(map[string]any)
	require.True(t, ok)
	noteID, _ := object["id"].(string)
	assert.True(t, strings.HasPrefix(noteID, "https://example.com/notes/"))
	assert.Equal(t, actor.ID, object["attributedTo"])
	// client-supplied object fields survive in the stored activity
	assert.Equal(t, true, object["sensitive"])

	note, err := env.store.GetNoteByID(context.Background(), noteID)
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "hello world", note.Content)

	activity, err := env.store.GetActivityByID(context.Background(), activityID)
	require.NoError(t, err)
	require.NotNil(t, activity)
}

func TestPostOutboxNonNoteCreateAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	payload := `{"type": "Create", "object": {"type": "Video"}}`
	req, rec := env.request(http.MethodPost, "/users/alice/outbox", payload, "")
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.PostOutbox(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	count, err := env.store.GetActorOutboxCount(context.Background(), "https://example.com/users/alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOutboxCollection(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	for _, content := range []string{"first", "second"} {
		payload := `{"type": "Create", "object": {"type": "Note", "content": "` + content + `"}}`
		req, rec := env.request(http.MethodPost, "/users/alice/outbox", payload, "")
		c := env.echo.NewContext(req, rec)
		c.SetParamNames("username")
		c.SetParamValues("alice")
		require.NoError(t, env.handler.PostOutbox(c))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req, rec := env.request(http.MethodGet, "/users/alice/outbox", "", "")
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.Outbox(c))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "OrderedCollection", body["type"])
	assert.Equal(t, float64(2), body["totalItems"])
	assert.Equal(t, "https://example.com/users/alice/outbox?page=true", body["first"])

	// the base collection carries the newest page, newest first
	items, ok := body["orderedItems"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	newest := items[0].(map[string]any)
	object := newest["object"].(map[string]any)
	assert.True(t, strings.HasPrefix(object["id"].(string), "https://example.com/notes/"))

	req, rec = env.request(http.MethodGet, "/users/alice/outbox?page=true", "", "")
	c = env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.Outbox(c))

	body = decodeBody(t, rec)
	assert.Equal(t, "OrderedCollectionPage", body["type"])
	items, ok = body["orderedItems"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestPostOutboxOtherTypesAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	payload := `{"type": "Announce", "object": "https://remote.example/notes/9"}`
	req, rec := env.request(http.MethodPost, "/users/alice/outbox", payload, "")
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.PostOutbox(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	// nothing was persisted for the unhandled type
	count, err := env.store.GetActorOutboxCount(context.Background(), "https://example.com/users/alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func (env *testEnv) postInbox(t *testing.T, username, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := env.request(http.MethodPost, "/users/"+username+"/inbox", payload, "")
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues(username)
	require.NoError(t, env.handler.Inbox(c))
	return rec
}

func TestInboxCreateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	payload := `{
		"id": "https://remote.example/activities/1",
		"type": "Create",
		"actor": "https://remote.example/users/bob",
		"to": ["https://example.com/users/alice"],
		"object": {
			"id": "https://remote.example/notes/1",
			"type": "Note",
			"content": "hi alice",
			"published": "2025-06-01T12:00:00Z"
		}
	}`

	rec := env.postInbox(t, "alice", payload)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	note, err := env.store.GetNoteByID(context.Background(), "https://remote.example/notes/1")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "hi alice", note.Content)
	assert.Equal(t, "https://remote.example/users/bob", note.AttributedTo)

	// redelivery answers 202 and changes nothing
	rec = env.postInbox(t, "alice", payload)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	count, err := env.store.GetActorInboxCount(context.Background(), "https://example.com/users/alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInboxFollowAndUndo(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedActor(t, "alice")
	bob := "https://remote.example/users/bob"

	follow := `{
		"id": "https://remote.example/follows/1",
		"type": "Follow",
		"actor": "` + bob + `",
		"object": "` + alice.ID + `"
	}`
	rec := env.postInbox(t, "alice", follow)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	relation, err := env.store.GetFollowByPair(context.Background(), bob, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, relation)
	assert.Equal(t, vocab.FollowPending, relation.Status)
	// the relation id is minted locally, never taken from the activity
	assert.True(t, strings.HasPrefix(relation.ID, "https://example.com/follows/"))

	// once accepted, the followers collection lists bob
	require.NoError(t, env.store.UpdateFollowStatus(context.Background(), relation.ID, vocab.FollowAccepted))

	req, frec := env.request(http.MethodGet, "/users/alice/followers", "", "")
	c := env.echo.NewContext(req, frec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.Followers(c))
	body := decodeBody(t, frec)
	items, ok := body["orderedItems"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, bob, items[0])

	// Undo removes the relation; a second Undo is a no-op
	undo := `{
		"type": "Undo",
		"actor": "` + bob + `",
		"object": {
			"id": "https://remote.example/follows/1",
			"type": "Follow",
			"actor": "` + bob + `",
			"object": "` + alice.ID + `"
		}
	}`
	rec = env.postInbox(t, "alice", undo)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	relation, err = env.store.GetFollowByPair(context.Background(), bob, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, relation)

	rec = env.postInbox(t, "alice", undo)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestInboxAcceptTransitionsOutboundFollow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedActor(t, "alice")
	bob := "https://remote.example/users/bob"

	// alice follows bob, pending until bob's Accept arrives
	relation, err := env.store.CreateFollow(context.Background(), types.FollowRelation{
		ID:          "https://example.com/follows/out-1",
		FollowerID:  alice.ID,
		FollowingID: bob,
		Status:      vocab.FollowPending,
	})
	require.NoError(t, err)

	accept := `{
		"type": "Accept",
		"actor": "` + bob + `",
		"object": "` + relation.ID + `"
	}`
	rec := env.postInbox(t, "alice", accept)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	updated, err := env.store.GetFollowByID(context.Background(), relation.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, vocab.FollowAccepted, updated.Status)
}

func TestInboxAcceptFallsBackToPair(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedActor(t, "alice")
	bob := "https://remote.example/users/bob"

	relation, err := env.store.CreateFollow(context.Background(), types.FollowRelation{
		ID:          "https://example.com/follows/out-2",
		FollowerID:  alice.ID,
		FollowingID: bob,
		Status:      vocab.FollowPending,
	})
	require.NoError(t, err)

	// some peers echo the Follow back with their own id; the pair still resolves
	accept := `{
		"type": "Accept",
		"actor": "` + bob + `",
		"object": {
			"id": "https://remote.example/unknown/9",
			"type": "Follow",
			"actor": "` + alice.ID + `",
			"object": "` + bob + `"
		}
	}`
	rec := env.postInbox(t, "alice", accept)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	updated, err := env.store.GetFollowByID(context.Background(), relation.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, vocab.FollowAccepted, updated.Status)
}

func TestInboxCreatePreservesEmptyRecipients(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	payload := `{
		"id": "https://remote.example/activities/7",
		"type": "Create",
		"actor": "https://remote.example/users/bob",
		"to": [],
		"cc": [],
		"object": {
			"id": "https://remote.example/notes/7",
			"type": "Note",
			"content": "quiet"
		}
	}`
	rec := env.postInbox(t, "alice", payload)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	activity, err := env.store.GetActivityByID(context.Background(), "https://remote.example/activities/7")
	require.NoError(t, err)
	require.NotNil(t, activity)
	assert.Empty(t, activity.To)
	assert.Empty(t, activity.CC)
}

func TestInboxUnknownTypeIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	rec := env.postInbox(t, "alice", `{"type": "Like", "actor": "https://remote.example/users/bob"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestInboxUnknownActor(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postInbox(t, "ghost", `{"type": "Like"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Actor not found", decodeBody(t, rec)["error"])
}

func TestInboxRejectsBadJSON(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	rec := env.postInbox(t, "alice", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	payload := `{"type": "Create", "object": {"type": "Note", "content": "findable"}}`
	req, rec := env.request(http.MethodPost, "/users/alice/outbox", payload, "")
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.PostOutbox(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	object := decodeBody(t, rec)["object"].(map[string]any)
	noteID := object["id"].(string)
	shortID := strings.TrimPrefix(noteID, "https://example.com/notes/")

	req, rec = env.request(http.MethodGet, "/notes/"+shortID, "", vocab.ContentTypeActivityJSON)
	c = env.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(shortID)
	require.NoError(t, env.handler.Note(c))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Note", body["type"])
	assert.Equal(t, "findable", body["content"])

	// without an ActivityPub Accept the note renders as HTML
	req, rec = env.request(http.MethodGet, "/notes/"+shortID, "", "text/html")
	c = env.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(shortID)
	require.NoError(t, env.handler.Note(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "findable")

	req, rec = env.request(http.MethodGet, "/notes/missing", "", vocab.ContentTypeActivityJSON)
	c = env.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	require.NoError(t, env.handler.Note(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfilePage(t *testing.T) {
	env := newTestEnv(t)
	env.seedActor(t, "alice")

	req, rec := env.request(http.MethodGet, "/@alice", "", "text/html")
	c := env.echo.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("alice")
	require.NoError(t, env.handler.ProfilePage(c))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "@alice@example.com")
}
