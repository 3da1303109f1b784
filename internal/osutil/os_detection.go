package osutil

import (
	"os"
	"runtime"
)

// OS type constants
const (
	Windows = "windows"
	MacOS   = "darwin"
	Linux   = "linux"
)

// GetOSType returns the current operating system type
func GetOSType() string {
	return runtime.GOOS
}

// IsWindows returns true if running on Windows
func IsWindows() bool {
	return GetOSType() == Windows
}

// SupportsSymlinks reports whether unprivileged processes can usually create
// symbolic links on this platform
func SupportsSymlinks() bool {
	return !IsWindows()
}

// IsDevEnvironment checks if the application is running in a development environment
// based on environment variables
func IsDevEnvironment() bool {
	return os.Getenv("TACKLEBOX_ENV") == "development" ||
		os.Getenv("TACKLEBOX_DEV") == "true"
}

// IsRunningInPipeline returns true if running in a CI/CD pipeline environment
func IsRunningInPipeline() bool {
	return os.Getenv("CI") == "true" ||
		os.Getenv("PIPELINE") == "true" ||
		os.Getenv("GITHUB_ACTIONS") == "true" ||
		os.Getenv("JENKINS_URL") != ""
}
