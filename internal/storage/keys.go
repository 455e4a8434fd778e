package storage

// Keys shared with the browser storage layout.
const (
	KeyCurrentUser      = "currentUser"
	KeyCurrentUserEmail = "currentUserEmail"
	KeyThemeColor       = "themeColor"
	KeyDarkMode         = "isDarkMode"
	KeyCustomColor      = "customColor"
	KeySavedInputs      = "fluxmare_saved_inputs"
	KeyComparisons      = "fluxmare_comparisons"
	KeyFontSize         = "fontSize"
	KeyNotifications    = "notifications"
	KeySoundEnabled     = "soundEnabled"
	KeyAutoSave         = "autoSave"
	KeyLanguage         = "language"
)

// ConversationsKey is the key holding a user's conversation list.
func ConversationsKey(username string) string { return "conversations_" + username }

// UserPasswordKey is the registration key holding a user's password.
func UserPasswordKey(username string) string { return "user_" + username }

// UserEmailKey is the registration key holding a user's email.
func UserEmailKey(username string) string { return "email_" + username }
