package oauth

import "net/http"

type slackAdapter struct{ bearerFetcher }

// slackProfile is the openid.connect.userInfo response. Slack reports API
// errors with HTTP 200 and ok=false.
type slackProfile struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
}

func (slackAdapter) Normalize(raw RawProfile) (*User, error) {
	var p slackProfile
	if err := decodeProfile(Slack, raw, &p); err != nil {
		return nil, err
	}
	if !p.OK {
		return nil, &ProfileFetchError{Provider: Slack, HTTPStatus: http.StatusOK, Reason: "slack userinfo: " + p.Error}
	}
	if p.Sub == "" {
		return nil, &ProfileFieldMissingError{Provider: Slack, Field: "sub"}
	}
	return &User{
		Provider:    Slack,
		ExternalID:  p.Sub,
		DisplayName: p.Name,
		AvatarURL:   p.Picture,
		Email:       p.Email,
	}, nil
}
