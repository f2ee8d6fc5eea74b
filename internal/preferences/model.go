// Package preferences stores per-user settings from the profile panel.
package preferences

import (
	"errors"
	"fmt"
	"slices"
	"time"
	_ "time/tzdata"
)

var (
	ErrInvalidPreference = errors.New("preferences: invalid value")
	ErrUserRequired      = errors.New("preferences: user id required")
)

var (
	Themes              = []string{"light", "dark", "system"}
	Languages           = []string{"en", "es", "fr", "de", "zh"}
	CompressionQuality  = []string{"fast", "balanced", "maximum"}
	AccuracyFloors      = []string{"1-3", "3-5", "5-10", "10-15"}
	APIKeyExpiryOptions = []string{"7", "30", "90", "never"}
)

// Preferences is the full settings document for one user.
type Preferences struct {
	Theme                string `json:"theme"`
	Language             string `json:"language"`
	Timezone             string `json:"timezone"`
	EmailNotifications   bool   `json:"email_notifications"`
	PushNotifications    bool   `json:"push_notifications"`
	ProjectUpdates       bool   `json:"project_updates"`
	MarketingEmails      bool   `json:"marketing_emails"`
	AutoSave             bool   `json:"auto_save"`
	CompressionQuality   string `json:"compression_quality"`
	DefaultAccuracyFloor string `json:"default_accuracy_floor"`
	APIKeyExpiry         string `json:"api_key_expiry"`
}

// Defaults returns the settings a user starts with.
func Defaults() Preferences {
	return Preferences{
		Theme:                "dark",
		Language:             "en",
		Timezone:             "UTC",
		EmailNotifications:   true,
		PushNotifications:    false,
		ProjectUpdates:       true,
		MarketingEmails:      false,
		AutoSave:             true,
		CompressionQuality:   "balanced",
		DefaultAccuracyFloor: "3-5",
		APIKeyExpiry:         "30",
	}
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Theme                *string `json:"theme,omitempty"`
	Language             *string `json:"language,omitempty"`
	Timezone             *string `json:"timezone,omitempty"`
	EmailNotifications   *bool   `json:"email_notifications,omitempty"`
	PushNotifications    *bool   `json:"push_notifications,omitempty"`
	ProjectUpdates       *bool   `json:"project_updates,omitempty"`
	MarketingEmails      *bool   `json:"marketing_emails,omitempty"`
	AutoSave             *bool   `json:"auto_save,omitempty"`
	CompressionQuality   *string `json:"compression_quality,omitempty"`
	DefaultAccuracyFloor *string `json:"default_accuracy_floor,omitempty"`
	APIKeyExpiry         *string `json:"api_key_expiry,omitempty"`
}

// Apply returns p with the patch applied and validated.
func (p Preferences) Apply(patch Patch) (Preferences, error) {
	setString(&p.Theme, patch.Theme)
	setString(&p.Language, patch.Language)
	setString(&p.Timezone, patch.Timezone)
	setBool(&p.EmailNotifications, patch.EmailNotifications)
	setBool(&p.PushNotifications, patch.PushNotifications)
	setBool(&p.ProjectUpdates, patch.ProjectUpdates)
	setBool(&p.MarketingEmails, patch.MarketingEmails)
	setBool(&p.AutoSave, patch.AutoSave)
	setString(&p.CompressionQuality, patch.CompressionQuality)
	setString(&p.DefaultAccuracyFloor, patch.DefaultAccuracyFloor)
	setString(&p.APIKeyExpiry, patch.APIKeyExpiry)
	if err := p.Validate(); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

// Validate rejects values outside the panel's option lists.
func (p Preferences) Validate() error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"theme", p.Theme, Themes},
		{"language", p.Language, Languages},
		{"compression_quality", p.CompressionQuality, CompressionQuality},
		{"default_accuracy_floor", p.DefaultAccuracyFloor, AccuracyFloors},
		{"api_key_expiry", p.APIKeyExpiry, APIKeyExpiryOptions},
	}
	for _, c := range checks {
		if !slices.Contains(c.allowed, c.value) {
			return fmt.Errorf("%w: %s %q", ErrInvalidPreference, c.field, c.value)
		}
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil || p.Timezone == "" || p.Timezone == "Local" {
		return fmt.Errorf("%w: timezone %q", ErrInvalidPreference, p.Timezone)
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC.
func (p Preferences) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		return time.UTC
	}
	return loc
}

// APIKeyTTL returns how long new API keys stay valid; zero means no expiry.
func (p Preferences) APIKeyTTL() time.Duration {
	switch p.APIKeyExpiry {
	case "7":
		return 7 * 24 * time.Hour
	case "90":
		return 90 * 24 * time.Hour
	case "never":
		return 0
	default:
		return 30 * 24 * time.Hour
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
