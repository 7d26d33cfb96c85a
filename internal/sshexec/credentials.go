package sshexec

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"golang.org/x/crypto/ssh"
)

// Credential is one-shot SSH key material. Each execution attempt gets its
// own credential; nothing is shared between attempts or callers.
type Credential struct {
	Signer         ssh.Signer
	PublicKey      string
	PrivateKeyPath string

	dir string
}

// CredentialSource issues short-lived credentials for one SSH attempt.
// The default source generates an ephemeral ed25519 keypair on disk; tests
// inject an in-memory fake.
type CredentialSource interface {
	Issue() (*Credential, error)
}

// EphemeralKeySource generates a fresh ed25519 keypair per attempt under a
// private temp directory. Cleanup removes every file it wrote.
type EphemeralKeySource struct{}

// Issue generates the keypair and writes it in OpenSSH PEM format with 0600
// permissions. The caller must invoke Cleanup on every exit path.
func (EphemeralKeySource) Issue() (*Credential, error) {
	dir, err := os.MkdirTemp("", "deploy-doctor-key-")
	if err != nil {
		return nil, cerr.Wrap(err, "create credential dir")
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "generate ed25519 key")
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "create ssh public key")
	}

	privPEM, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "marshal private key")
	}

	privPath := filepath.Join(dir, "id_ed25519")
	f, err := os.OpenFile(privPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "create private key file")
	}
	if err := pem.Encode(f, privPEM); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "encode private key")
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "close private key file")
	}

	pubStr := string(ssh.MarshalAuthorizedKey(sshPubKey))
	pubPath := privPath + ".pub"
	if err := os.WriteFile(pubPath, []byte(pubStr), 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "write public key")
	}

	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		os.RemoveAll(dir)
		return nil, cerr.Wrap(err, "create signer")
	}

	return &Credential{
		Signer:         signer,
		PublicKey:      pubStr,
		PrivateKeyPath: privPath,
		dir:            dir,
	}, nil
}

// Cleanup deletes the credential material from disk. Safe to call more
// than once.
func (c *Credential) Cleanup() {
	if c == nil || c.dir == "" {
		return
	}
	os.RemoveAll(c.dir)
	c.dir = ""
}
