package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// proposalIDBytes is the entropy of a proposal identifier; hex-encoding
// yields 32 characters, effectively collision-free for the system lifetime.
const proposalIDBytes = 16

// GenerateProposalID creates a random hex proposal identifier.
func GenerateProposalID() (string, error) {
	secret := make([]byte, proposalIDBytes)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate proposal id: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

// GenerateStateToken returns a random hex token for OAuth state and
// pending-registration stash keys.
func GenerateStateToken() (string, error) {
	secret := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return hex.EncodeToString(secret), nil
}
