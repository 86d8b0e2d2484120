package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func TestKnownHostsCallbackRejectsUnknownHost(t *testing.T) {
	dir := t.TempDir()
	kh := filepath.Join(dir, "nested", "known_hosts")

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	hostKey, err := xssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if err := EnsureKnownHostsFile(kh); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	line := knownhosts.Line([]string{"catalog.example:22"}, hostKey) + "\n"
	if err := os.WriteFile(kh, []byte(line), 0600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}

	cb, err := LoadKnownHostsCallback(kh)
	if err != nil {
		t.Fatalf("load callback: %v", err)
	}
	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}
	if err := cb("catalog.example:22", addr, hostKey); err != nil {
		t.Fatalf("known host rejected: %v", err)
	}
	if err := cb("other.example:22", addr, hostKey); err == nil {
		t.Fatalf("expected unknown host to be rejected")
	}
}

func TestDialRequiresSigner(t *testing.T) {
	if _, err := (&Client{Addr: "127.0.0.1"}).makeConfig(); err == nil {
		t.Fatalf("expected error without signer")
	}
}

func TestLoadPrivateKeySignerMissingFile(t *testing.T) {
	if _, err := LoadPrivateKeySigner(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
