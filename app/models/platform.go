package models

import "fmt"

// Platform identifies one external publish target.
type Platform string

const (
	PlatformInstagram    Platform = "instagram_business"
	PlatformFacebookPage Platform = "facebook_page"
	PlatformLinkedIn     Platform = "linkedin"
	PlatformYouTubeDraft Platform = "youtube_draft"
)

// AllPlatforms lists every publish target the system supports, in stable order.
var AllPlatforms = []Platform{
	PlatformInstagram,
	PlatformFacebookPage,
	PlatformLinkedIn,
	PlatformYouTubeDraft,
}

// ParsePlatform converts user input into a Platform, rejecting unknown values.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) String() string {
	return string(p)
}
