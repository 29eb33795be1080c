package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
)

// ensureLocalActor makes sure the configured default actor exists. Keys
// come from the configured PEM files when set; without paths a fresh
// keypair is generated. A configured but unreadable key is fatal unless
// insecure signatures are explicitly allowed.
func ensureLocalActor(ctx context.Context, storeService *store.Store, config types.NodeConfig) error {
	existing, err := storeService.GetActorByUsername(ctx, config.ActorName)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	privPEM, pubPEM, err := loadOrGenerateKeys(config)
	if err != nil {
		if !config.AllowInsecureSignatures {
			return err
		}
		slog.Warn("starting without a private key, outbound requests will carry placeholder signatures",
			slog.String("error", err.Error()))
		privPEM, pubPEM = "", ""
	}

	_, err = storeService.CreateActor(ctx, types.Actor{
		ID:            config.ActorID(config.ActorName),
		Username:      config.ActorName,
		Name:          config.ActorName,
		PublicKeyPem:  pubPEM,
		PrivateKeyPem: privPEM,
	})
	if err != nil {
		return err
	}

	slog.Info("local actor created", slog.String("actor", config.ActorID(config.ActorName)))
	return nil
}

func loadOrGenerateKeys(config types.NodeConfig) (string, string, error) {
	if config.PrivateKeyPath != "" {
		privPEM, err := os.ReadFile(config.PrivateKeyPath)
		if err != nil {
			return "", "", errors.WithMessage(err, "reading private key")
		}
		pubPEM, err := os.ReadFile(config.PublicKeyPath)
		if err != nil {
			return "", "", errors.WithMessage(err, "reading public key")
		}
		return string(privPEM), string(pubPEM), nil
	}

	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", err
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privKey),
	})

	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	if err != nil {
		return "", "", err
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})

	return string(privPEM), string(pubPEM), nil
}
