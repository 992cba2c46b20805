package oauth

import "strconv"

type githubAdapter struct{ bearerFetcher }

type githubProfile struct {
	ID        *int64  `json:"id"`
	Login     string  `json:"login"`
	AvatarURL string  `json:"avatar_url"`
	Email     *string `json:"email"`
}

func (githubAdapter) Normalize(raw RawProfile) (*User, error) {
	var p githubProfile
	if err := decodeProfile(GitHub, raw, &p); err != nil {
		return nil, err
	}
	if p.ID == nil {
		return nil, &ProfileFieldMissingError{Provider: GitHub, Field: "id"}
	}
	return &User{
		Provider:    GitHub,
		ExternalID:  strconv.FormatInt(*p.ID, 10),
		DisplayName: p.Login,
		AvatarURL:   p.AvatarURL,
		Email:       deref(p.Email),
	}, nil
}
