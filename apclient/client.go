// Package apclient fetches remote ActivityPub documents: actor documents
// (cached in memcached), notes, and WebFinger resolutions.
package apclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/fedinode/fedinode/signature"
	"github.com/fedinode/fedinode/types"
)

var tracer = otel.Tracer("apclient")

const (
	personCachePrefix = "person:"
	personCacheTTL    = 1800 // seconds
)

type ApClient struct {
	mc     *memcache.Client
	signer *signature.Signer
	config types.NodeConfig
	client *http.Client
}

func NewApClient(mc *memcache.Client, signer *signature.Signer, config types.NodeConfig) *ApClient {
	return &ApClient{
		mc:     mc,
		signer: signer,
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ApClient) userAgent() string {
	return "Fedinode/" + c.config.Version
}

// FetchPerson fetches a remote actor document. Results are cached for 30
// minutes. When execActor is non-nil the request is signed on its behalf.
func (c *ApClient) FetchPerson(ctx context.Context, actorURL string, execActor *types.Actor) (*types.RawApObj, error) {
	ctx, span := tracer.Start(ctx, "FetchPerson")
	defer span.End()

	cacheKey := personCachePrefix + actorURL
	if c.mc != nil {
		if cache, err := c.mc.Get(cacheKey); err == nil {
			person, err := types.LoadAsRawApObj(cache.Value)
			if err == nil {
				return person, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", actorURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("User-Agent", c.userAgent())

	if execActor != nil {
		if err := c.signer.SignRequest(ctx, req, nil, *execActor); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch person %s: status %d", actorURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	person, err := types.LoadAsRawApObj(body)
	if err != nil {
		return nil, err
	}

	if c.mc != nil {
		c.mc.Set(&memcache.Item{Key: cacheKey, Value: body, Expiration: personCacheTTL})
	}

	return person, nil
}

// FetchNote fetches a remote object document. Not cached.
func (c *ApClient) FetchNote(ctx context.Context, noteURL string, execActor *types.Actor) (*types.RawApObj, error) {
	ctx, span := tracer.Start(ctx, "FetchNote")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, "GET", noteURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("User-Agent", c.userAgent())

	if execActor != nil {
		if err := c.signer.SignRequest(ctx, req, nil, *execActor); err != nil {
			return nil, err
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch note %s: status %d", noteURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return types.LoadAsRawApObj(body)
}

// ResolvePublicKeyPem dereferences a signature keyId to the owning actor's
// published public key. The fragment is stripped before the fetch.
func (c *ApClient) ResolvePublicKeyPem(ctx context.Context, keyID string) (string, error) {
	ctx, span := tracer.Start(ctx, "ResolvePublicKeyPem")
	defer span.End()

	actorURL := keyID
	if i := strings.Index(actorURL, "#"); i >= 0 {
		actorURL = actorURL[:i]
	}

	person, err := c.FetchPerson(ctx, actorURL, nil)
	if err != nil {
		return "", err
	}

	pem, ok := person.GetString("publicKey.publicKeyPem")
	if !ok || pem == "" {
		return "", errors.New("actor document carries no publicKeyPem")
	}
	return pem, nil
}

// ResolveActor resolves an acct handle (user@host, with or without a
// leading @) to the actor URL via the host's WebFinger endpoint.
func (c *ApClient) ResolveActor(ctx context.Context, handle string) (string, error) {
	ctx, span := tracer.Start(ctx, "ResolveActor")
	defer span.End()

	handle = strings.TrimPrefix(handle, "@")
	parts := strings.Split(handle, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", errors.Errorf("invalid handle %q", handle)
	}
	user, host := parts[0], parts[1]

	wfURL := "https://" + host + "/.well-known/webfinger?resource=" +
		url.QueryEscape("acct:"+user+"@"+host)

	req, err := http.NewRequestWithContext(ctx, "GET", wfURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("webfinger %s: status %d", handle, resp.StatusCode)
	}

	var finger types.WebFinger
	if err := json.NewDecoder(resp.Body).Decode(&finger); err != nil {
		return "", err
	}

	for _, link := range finger.Links {
		if link.Rel == "self" && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", errors.Errorf("no self link in webfinger response for %s", handle)
}
