package gateway

import "golang.org/x/crypto/ssh"

// sshAlgorithms returns the kex/cipher/MAC preference lists from spec §6.
// golang.org/x/crypto/ssh has no compression knob (it only ever negotiates
// "none"), so the compression list from spec §6 has no corresponding field
// here; that is a library limitation, not a design choice, and is noted so
// a future swap to a library that does support it knows where to wire it.
func sshAlgorithms() ssh.Config {
	return ssh.Config{
		KeyExchanges: []string{
			"curve25519-sha256",
			"curve25519-sha256@libssh.org",
			"ecdh-sha2-nistp256",
			"ecdh-sha2-nistp384",
			"ecdh-sha2-nistp521",
			"diffie-hellman-group-exchange-sha256",
			"diffie-hellman-group14-sha1",
		},
		Ciphers: []string{
			"aes128-gcm@openssh.com",
			"aes256-gcm@openssh.com",
			"aes128-ctr",
			"aes192-ctr",
			"aes256-ctr",
			"aes128-cbc",
			"aes256-cbc",
		},
		MACs: []string{
			"hmac-sha2-256-etm@openssh.com",
			"hmac-sha2-512-etm@openssh.com",
			"hmac-sha2-256",
			"hmac-sha2-512",
			"hmac-sha1",
		},
	}
}

// hostKeyAlgorithms is the preferred host-key algorithm order from spec §6.
func hostKeyAlgorithms() []string {
	return []string{
		"ssh-rsa",
		"rsa-sha2-512",
		"rsa-sha2-256",
		"ecdsa-sha2-nistp256",
		"ecdsa-sha2-nistp384",
		"ecdsa-sha2-nistp521",
		"ssh-ed25519",
	}
}

// HostKeyPolicy resolves to an ssh.HostKeyCallback. Exposed as an
// injectable hook per SPEC_FULL §13's resolution of the "no host-key
// verification" design note: the default wiring uses InsecureHostKeyPolicy,
// matching spec.md's documented weakness, but a deployer can substitute a
// known-hosts-backed policy without touching the core.
type HostKeyPolicy interface {
	Callback() ssh.HostKeyCallback
}

// InsecureHostKeyPolicy accepts any host key, as spec §9 documents.
type InsecureHostKeyPolicy struct{}

// Callback implements HostKeyPolicy.
func (InsecureHostKeyPolicy) Callback() ssh.HostKeyCallback {
	return ssh.InsecureIgnoreHostKey()
}
