package crypto

import (
	"errors"
	"testing"
)

const testSecret = "test-master-secret-that-is-long-xxx"

func TestRoundTrip(t *testing.T) {
	fe, err := DeriveFieldEncryptor([]byte(testSecret), PurposeProviderKeys)
	if err != nil {
		t.Fatalf("DeriveFieldEncryptor: %v", err)
	}

	original := "sk-proj-abc123xyz"
	encrypted, err := fe.Encrypt(original)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted == original {
		t.Fatal("encrypted should differ from plaintext")
	}
	if !IsEncrypted(encrypted) {
		t.Fatalf("expected enc:v1: prefix, got %q", encrypted)
	}

	decrypted, err := fe.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != original {
		t.Fatalf("round-trip failed: got %q, want %q", decrypted, original)
	}
}

func TestPlaintextPassthrough(t *testing.T) {
	fe, err := DeriveFieldEncryptor([]byte(testSecret), PurposeProviderKeys)
	if err != nil {
		t.Fatalf("DeriveFieldEncryptor: %v", err)
	}
	result, err := fe.Decrypt("sk-legacy")
	if err != nil {
		t.Fatalf("Decrypt plaintext: %v", err)
	}
	if result != "sk-legacy" {
		t.Fatalf("plaintext passthrough failed: got %q", result)
	}
}

func TestDifferentPurposesProduceDifferentKeys(t *testing.T) {
	fe1, _ := DeriveFieldEncryptor([]byte(testSecret), "purpose-a")
	fe2, _ := DeriveFieldEncryptor([]byte(testSecret), "purpose-b")

	enc, _ := fe1.Encrypt("sk-test")
	if _, err := fe2.Decrypt(enc); err == nil {
		t.Fatal("expected decryption to fail with different purpose")
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := DeriveFieldEncryptor(nil, PurposeProviderKeys); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestNewDecrypterWithoutSecret(t *testing.T) {
	d, err := NewDecrypter("")
	if err != nil {
		t.Fatalf("NewDecrypter: %v", err)
	}
	if got, err := d.Decrypt("sk-plain"); err != nil || got != "sk-plain" {
		t.Fatalf("expected plaintext passthrough, got %q %v", got, err)
	}

	fe, _ := DeriveFieldEncryptor([]byte(testSecret), PurposeProviderKeys)
	enc, _ := fe.Encrypt("sk-secret")
	if _, err := d.Decrypt(enc); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestNewDecrypterWithSecret(t *testing.T) {
	d, err := NewDecrypter(testSecret)
	if err != nil {
		t.Fatalf("NewDecrypter: %v", err)
	}
	fe, _ := DeriveFieldEncryptor([]byte(testSecret), PurposeProviderKeys)
	enc, _ := fe.Encrypt("sk-secret")
	got, err := d.Decrypt(enc)
	if err != nil || got != "sk-secret" {
		t.Fatalf("expected sk-secret, got %q %v", got, err)
	}
}
