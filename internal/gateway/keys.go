package gateway

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// parsePrivateKey validates and parses a client-supplied PEM private key
// (spec §4.4 step 2). Grounded on the teacher's KeyManager.LoadPrivateKey,
// adapted from a server-generated system key to an untrusted client-supplied
// one: trimmed, checked for BEGIN/END markers before ever reaching the SSH
// library, and with CRLF normalized the way editors on Windows commonly
// produce them.
func parsePrivateKey(raw, passphrase string) (ssh.Signer, error) {
	key := strings.TrimSpace(raw)
	if !strings.Contains(key, "-----BEGIN") || !strings.Contains(key, "-----END") {
		return nil, fmt.Errorf("invalid private key format")
	}
	key = strings.ReplaceAll(key, "\r\n", "\n")

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("invalid private key format: %w", err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("invalid private key format: %w", err)
	}
	return signer, nil
}

// validateConnectParams enforces the required-field contract of spec §4.4
// step 1 / end-to-end scenario 1.
func validateConnectParams(p ConnectParams) error {
	if p.Host == "" || p.Username == "" || p.PrivateKey == "" {
		return fmt.Errorf("missing required connection parameters")
	}
	return nil
}
