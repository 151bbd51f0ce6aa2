package discord

import (
	"fmt"
	"strconv"

	"github.com/goliatone/go-guild-auth"
	"github.com/goliatone/go-guild-auth/social"
)

type discordUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	GlobalName    string `json:"global_name"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Email         string `json:"email"`
	Verified      bool   `json:"verified"`
	Locale        string `json:"locale"`
}

func mapProfile(info *discordUser, cdnURL string) *social.SocialProfile {
	if info == nil {
		return nil
	}

	name := info.GlobalName
	if name == "" {
		name = info.Username
	}

	return &social.SocialProfile{
		ProviderUserID: info.ID,
		Provider:       auth.ProviderDiscord,
		Email:          info.Email,
		EmailVerified:  info.Verified,
		Name:           name,
		Username:       info.Username,
		AvatarURL:      avatarURL(info, cdnURL),
		Raw: map[string]any{
			"id":            info.ID,
			"username":      info.Username,
			"global_name":   info.GlobalName,
			"discriminator": info.Discriminator,
			"avatar":        info.Avatar,
			"email":         info.Email,
			"verified":      info.Verified,
			"locale":        info.Locale,
		},
	}
}

// avatarURL returns the custom avatar when set, otherwise one of the
// default embed avatars picked the way the Discord client does.
func avatarURL(info *discordUser, cdnURL string) string {
	if info.Avatar != "" {
		format := "png"
		if len(info.Avatar) > 2 && info.Avatar[:2] == "a_" {
			format = "gif"
		}
		return fmt.Sprintf("%s/avatars/%s/%s.%s", cdnURL, info.ID, info.Avatar, format)
	}

	var index uint64
	if info.Discriminator == "" || info.Discriminator == "0" {
		id, err := strconv.ParseUint(info.ID, 10, 64)
		if err == nil {
			index = (id >> 22) % 6
		}
	} else {
		d, err := strconv.ParseUint(info.Discriminator, 10, 64)
		if err == nil {
			index = d % 5
		}
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnURL, index)
}
