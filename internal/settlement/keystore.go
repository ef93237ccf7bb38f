package settlement

import "github.com/dyike/RightOfWay/config"

// KeyStore resolves the signing key for a paying agent.
type KeyStore interface {
	SigningKey(agentID int) (string, bool)
}

// StaticKeys is a KeyStore backed by a fixed map.
type StaticKeys map[int]string

func (k StaticKeys) SigningKey(agentID int) (string, bool) {
	key, ok := k[agentID]
	return key, ok && key != ""
}

// KeysFromConfig maps agent 1 and agent 2 onto the configured keys.
func KeysFromConfig(cfg *config.Config) StaticKeys {
	keys := StaticKeys{}
	if cfg.AgentAPrivateKey != "" {
		keys[1] = cfg.AgentAPrivateKey
	}
	if cfg.AgentBPrivateKey != "" {
		keys[2] = cfg.AgentBPrivateKey
	}
	return keys
}
