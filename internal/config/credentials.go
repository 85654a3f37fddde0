package config

import "errors"

var ErrMissingCredentials = errors.New("missing_credentials")

// Credentials is one terminal key / secret pair for a single environment.
type Credentials struct {
	TerminalKey string
	SecretKey   string
}

// ResolveCredentials returns the credential pair for the given mode.
// Precedence is explicit: the requested mode's dedicated variables win and
// there is no silent fallback to the other environment's keys. A partial
// pair (key without secret or vice versa) is a configuration error.
func (g GatewayConfig) ResolveCredentials(mode string) (Credentials, error) {
	var creds Credentials
	switch normalizeMode(mode) {
	case ModeLive:
		creds = Credentials{TerminalKey: g.LiveTerminalKey, SecretKey: g.LiveSecretKey}
	default:
		creds = Credentials{TerminalKey: g.TestTerminalKey, SecretKey: g.TestSecretKey}
	}
	if creds.TerminalKey == "" || creds.SecretKey == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

// ActiveCredentials resolves the credential pair for the configured mode.
func (g GatewayConfig) ActiveCredentials() (Credentials, error) {
	return g.ResolveCredentials(g.Mode)
}

// CredentialsForTerminal returns the pair whose terminal key matches the
// given key. Notifications carry the terminal key, so this is how the
// webhook verifier picks the right secret without guessing.
func (g GatewayConfig) CredentialsForTerminal(terminalKey string) (Credentials, bool) {
	switch terminalKey {
	case "":
		return Credentials{}, false
	case g.LiveTerminalKey:
		return Credentials{TerminalKey: g.LiveTerminalKey, SecretKey: g.LiveSecretKey}, true
	case g.TestTerminalKey:
		return Credentials{TerminalKey: g.TestTerminalKey, SecretKey: g.TestSecretKey}, true
	default:
		return Credentials{}, false
	}
}

// KnownSecrets lists every configured secret, live first. The verifier falls
// back to trying each of these when the notification's terminal key does not
// match a configured terminal.
func (g GatewayConfig) KnownSecrets() []string {
	secrets := make([]string, 0, 2)
	if g.LiveSecretKey != "" {
		secrets = append(secrets, g.LiveSecretKey)
	}
	if g.TestSecretKey != "" {
		secrets = append(secrets, g.TestSecretKey)
	}
	return secrets
}
