package audit

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata included in every export archive.
type Manifest struct {
	Version          string    `yaml:"version"`
	CreatedAt        time.Time `yaml:"created_at"`
	WindowFrom       time.Time `yaml:"window_from"`
	WindowTo         time.Time `yaml:"window_to"`
	EventCount       int       `yaml:"event_count"`
	EventsSHA256     string    `yaml:"events_sha256"`
	Signer           string    `yaml:"signer,omitempty"`
	SigningPublicKey string    `yaml:"signing_public_key,omitempty"`
	Signature        string    `yaml:"signature,omitempty"`
}

// SigningBytes marshals the manifest without its signature for signing and
// verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}
