package oauth

import "strings"

const discordCDN = "https://cdn.discordapp.com"

type discordAdapter struct{ bearerFetcher }

type discordProfile struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
	Avatar     *string `json:"avatar"`
	Email      *string `json:"email"`
}

func (discordAdapter) Normalize(raw RawProfile) (*User, error) {
	var p discordProfile
	if err := decodeProfile(Discord, raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &ProfileFieldMissingError{Provider: Discord, Field: "id"}
	}

	name := deref(p.GlobalName)
	if name == "" {
		name = p.Username
	}
	return &User{
		Provider:    Discord,
		ExternalID:  p.ID,
		DisplayName: name,
		AvatarURL:   discordAvatarURL(p.ID, deref(p.Avatar)),
		Email:       deref(p.Email),
	}, nil
}

// discordAvatarURL assembles the CDN URL from the user id and avatar hash.
// Animated avatars (hash prefixed "a_") are served as gif.
func discordAvatarURL(userID, hash string) string {
	if hash == "" {
		return ""
	}
	ext := "png"
	if strings.HasPrefix(hash, "a_") {
		ext = "gif"
	}
	return discordCDN + "/avatars/" + userID + "/" + hash + "." + ext
}
