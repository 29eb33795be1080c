package main

import (
	"strconv"

	"github.com/kelseyhightower/envconfig"

	"github.com/fedinode/fedinode/types"
)

// Config is the process configuration, read from the environment.
type Config struct {
	ServerName     string `envconfig:"SERVER_NAME" default:"Fediverse Node"`
	ServerURL      string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	Port           string `envconfig:"PORT" default:"8080"`
	ActorName      string `envconfig:"ACTOR_NAME" default:"alice"`
	PrivateKeyPath string `envconfig:"PRIVATE_KEY_PATH"`
	PublicKeyPath  string `envconfig:"PUBLIC_KEY_PATH"`

	DSN           string `envconfig:"DSN" default:"host=localhost user=postgres password=postgres dbname=fedinode port=5432"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	MemcachedAddr string `envconfig:"MEMCACHED_ADDR" default:"localhost:11211"`

	EnableTrace   bool   `envconfig:"ENABLE_TRACE" default:"false"`
	TraceEndpoint string `envconfig:"TRACE_ENDPOINT" default:"localhost:4318"`

	AutoAcceptFollows       bool `envconfig:"AUTO_ACCEPT_FOLLOWS" default:"false"`
	AllowInsecureSignatures bool `envconfig:"ALLOW_INSECURE_SIGNATURES" default:"false"`
}

func LoadConfig() (Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	return config, err
}

// PortNumber parses PORT. Anything that is not a usable port number falls
// back to 8080 rather than failing startup.
func (c Config) PortNumber() int {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return 8080
	}
	return port
}

// NodeConfig derives the identity shared with the handlers.
func (c Config) NodeConfig(version string) types.NodeConfig {
	return types.NodeConfig{
		ServerName:              c.ServerName,
		ServerURL:               c.ServerURL,
		ActorName:               c.ActorName,
		PrivateKeyPath:          c.PrivateKeyPath,
		PublicKeyPath:           c.PublicKeyPath,
		AutoAcceptFollows:       c.AutoAcceptFollows,
		AllowInsecureSignatures: c.AllowInsecureSignatures,
		Version:                 version,
	}
}
