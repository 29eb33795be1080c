package types

import "strings"

// NodeConfig is the read-only node identity shared by every handler.
type NodeConfig struct {
	ServerName              string
	ServerURL               string
	ActorName               string
	PrivateKeyPath          string
	PublicKeyPath           string
	AutoAcceptFollows       bool
	AllowInsecureSignatures bool
	Version                 string
}

// Host returns the configured host, derived by stripping the scheme
// from ServerURL. WebFinger matches resources against this value.
func (c NodeConfig) Host() string {
	host := strings.TrimPrefix(c.ServerURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// ActorID returns the canonical id of a local actor.
func (c NodeConfig) ActorID(username string) string {
	return c.ServerURL + "/users/" + username
}

// KeyID returns the fragment id of a local actor's public key.
func (c NodeConfig) KeyID(username string) string {
	return c.ActorID(username) + "#main-key"
}
