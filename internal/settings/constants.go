package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback UI site name.
	DefaultSiteName = "CFP Hub"
	// RegistrationEnabledKey toggles self-service registration.
	RegistrationEnabledKey = "REGISTRATION_ENABLED"
	// DefaultRegistrationEnabled is the fallback registration toggle.
	DefaultRegistrationEnabled = true
	// AnnouncementKey is the DB config key for the front-page announcement.
	AnnouncementKey = "ANNOUNCEMENT"
)
