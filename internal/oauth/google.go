package oauth

type googleAdapter struct{ bearerFetcher }

// googleProfile is the OpenID Connect userinfo response.
type googleProfile struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
}

func (googleAdapter) Normalize(raw RawProfile) (*User, error) {
	var p googleProfile
	if err := decodeProfile(Google, raw, &p); err != nil {
		return nil, err
	}
	if p.Sub == "" {
		return nil, &ProfileFieldMissingError{Provider: Google, Field: "sub"}
	}
	return &User{
		Provider:    Google,
		ExternalID:  p.Sub,
		DisplayName: p.Name,
		AvatarURL:   p.Picture,
		Email:       p.Email,
	}, nil
}
