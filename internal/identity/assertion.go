package identity

// Profile attribute keys populated by provider mappings.
const (
	ProfileEmail  = "email"
	ProfileName   = "name"
	ProfileAvatar = "avatar_url"
	ProfileLogin  = "login"
)

// Assertion is a federated identity assertion: the (provider, uid) pair and
// the profile attributes mapped out of the provider's own response shape.
// RawExtra carries the full provider payload for the current request only;
// it is never written to the pending-registration stash.
type Assertion struct {
	Provider string            `json:"provider"`
	UID      string            `json:"uid"`
	Profile  map[string]string `json:"profile"`
	RawExtra []byte            `json:"-"`
}

// Email returns the mapped email attribute, if any.
func (a Assertion) Email() string {
	return a.Profile[ProfileEmail]
}

// Name returns the mapped display name attribute, falling back to the
// provider login when the provider does not expose a real name.
func (a Assertion) Name() string {
	if name := a.Profile[ProfileName]; name != "" {
		return name
	}
	return a.Profile[ProfileLogin]
}
