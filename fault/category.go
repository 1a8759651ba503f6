package fault

// Category identifies the subsystem a fault most likely originates from.
type Category string

const (
	// CategoryNetwork covers connectivity failures, timeouts and DNS errors.
	CategoryNetwork Category = "network"

	// CategoryFilesystem covers missing files, directories and I/O failures.
	CategoryFilesystem Category = "filesystem"

	// CategoryAuthentication covers rejected or expired credentials.
	CategoryAuthentication Category = "authentication"

	// CategoryScanning covers failures raised by security scanners.
	CategoryScanning Category = "scanning"

	// CategoryConfiguration covers invalid or missing settings.
	CategoryConfiguration Category = "configuration"

	// CategoryMemory covers allocation failures and heap exhaustion.
	CategoryMemory Category = "memory"

	// CategoryPermission covers authorization and access-control failures.
	CategoryPermission Category = "permission"

	// CategoryUnknown is the fallthrough when no rule matches.
	CategoryUnknown Category = "unknown"
)

// Categories returns every category in classification order, ending with CategoryUnknown.
func Categories() []Category {
	return []Category{
		CategoryNetwork,
		CategoryFilesystem,
		CategoryAuthentication,
		CategoryScanning,
		CategoryConfiguration,
		CategoryMemory,
		CategoryPermission,
		CategoryUnknown,
	}
}

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// IsValid reports whether c is one of the closed set of categories.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}
