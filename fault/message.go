package fault

var userMessages = map[Category]string{
	CategoryNetwork:        "Network connection failed. Please check your internet connection and try again.",
	CategoryFilesystem:     "A file system error occurred. Please check that the file or folder exists and that there is enough disk space.",
	CategoryAuthentication: "Authentication failed. Please sign in again or check your credentials.",
	CategoryScanning:       "The security scan could not be completed. Please try again or check the scan configuration.",
	CategoryConfiguration:  "Configuration error. Please check your settings.",
	CategoryMemory:         "The operation ran out of memory. Try closing other applications or scanning fewer files.",
	CategoryPermission:     "Permission denied. Please check file permissions and try again.",
	CategoryUnknown:        "An unexpected error occurred. Please try again.",
}

// MessageFor returns the fixed user-facing sentence for a category.
func MessageFor(c Category) string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

// FormatMessage prefixes msg according to severity: "Critical Error: " for
// critical, "Error: " for high, and no prefix otherwise.
func FormatMessage(msg string, s Severity) string {
	switch s {
	case SeverityCritical:
		return "Critical Error: " + msg
	case SeverityHigh:
		return "Error: " + msg
	default:
		return msg
	}
}

// UserMessage returns the sentence shown to users in place of the raw error
// text. It hides internal categories and stack traces.
func UserMessage(err error) string {
	return FormatMessage(MessageFor(Classify(err)), SeverityOf(err))
}
