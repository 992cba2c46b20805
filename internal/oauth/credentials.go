package oauth

const redacted = "****************"

// Secret holds a client secret. Its String and JSON forms are redacted so it
// can't leak through logs or serialized config.
type Secret string

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Reveal returns the raw secret for the token request body.
func (s Secret) Reveal() string { return string(s) }

// Credentials are one provider's OAuth client id and secret.
type Credentials struct {
	Provider     ProviderID
	ClientID     string
	ClientSecret Secret
}

// CredentialStore maps providers to their client credentials. It is built
// once at startup and only read afterwards.
type CredentialStore struct {
	creds   map[ProviderID]Credentials
	missing map[ProviderID]string
}

// NewCredentialStore records the credentials for each provider. A provider
// with an empty client id or secret is remembered as misconfigured.
func NewCredentialStore(list ...Credentials) *CredentialStore {
	s := &CredentialStore{
		creds:   make(map[ProviderID]Credentials),
		missing: make(map[ProviderID]string),
	}
	for _, c := range list {
		switch {
		case c.ClientID == "":
			s.missing[c.Provider] = "client id"
		case c.ClientSecret == "":
			s.missing[c.Provider] = "client secret"
		default:
			s.creds[c.Provider] = c
		}
	}
	return s
}

// CredentialsFor returns the credentials for id or a *MissingConfigurationError.
func (s *CredentialStore) CredentialsFor(id ProviderID) (Credentials, error) {
	if c, ok := s.creds[id]; ok {
		return c, nil
	}
	field, ok := s.missing[id]
	if !ok {
		field = "client id and client secret"
	}
	return Credentials{}, &MissingConfigurationError{Provider: id, Field: field}
}

// Configured reports whether id has usable credentials.
func (s *CredentialStore) Configured(id ProviderID) bool {
	_, ok := s.creds[id]
	return ok
}
