package main

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"nhbchain/config"
	nhbcrypto "nhbchain/crypto"
)

func TestLoadValidatorKeyFromHex(t *testing.T) {
	key, err := nhbcrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := &config.EngineConfig{ValidatorKey: hex.EncodeToString(key.Bytes())}

	got, err := loadValidatorKey(cfg)
	if err != nil {
		t.Fatalf("loadValidatorKey: %v", err)
	}
	if got.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("expected recovered key to match the configured hex key")
	}
}

func TestLoadValidatorKeyFromKeystore(t *testing.T) {
	key, err := nhbcrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir := t.TempDir()
	keystorePath := filepath.Join(dir, "validator.keystore")
	if err := nhbcrypto.SaveToKeystore(keystorePath, key, "correct horse battery staple"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}

	t.Setenv(validatorPassEnv, "correct horse battery staple")
	cfg := &config.EngineConfig{ValidatorKeystorePath: keystorePath}

	got, err := loadValidatorKey(cfg)
	if err != nil {
		t.Fatalf("loadValidatorKey: %v", err)
	}
	if got.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("expected recovered key to match the keystore-encrypted key")
	}
}

func TestLoadValidatorKeyKeystoreTakesPriority(t *testing.T) {
	hexKey, err := nhbcrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate hex key: %v", err)
	}
	ksKey, err := nhbcrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate keystore key: %v", err)
	}
	dir := t.TempDir()
	keystorePath := filepath.Join(dir, "validator.keystore")
	if err := nhbcrypto.SaveToKeystore(keystorePath, ksKey, "pw"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}

	t.Setenv(validatorPassEnv, "pw")
	cfg := &config.EngineConfig{
		ValidatorKey:          hex.EncodeToString(hexKey.Bytes()),
		ValidatorKeystorePath: keystorePath,
	}

	got, err := loadValidatorKey(cfg)
	if err != nil {
		t.Fatalf("loadValidatorKey: %v", err)
	}
	if got.PubKey().Address().String() != ksKey.PubKey().Address().String() {
		t.Fatalf("expected the keystore key to take priority over the hex key")
	}
}
