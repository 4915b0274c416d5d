package sandbox

import "runtime"

// PlatformInfo is the detected host platform and its recommended
// sandbox implementations platform table.
type PlatformInfo struct {
	OS                      string
	Arch                    string
	Supported               bool
	RecommendedAppSandbox   string
	RecommendedToolSandbox  string
}

// DetectPlatform inspects the running host and returns its recommended
// sandbox implementations.
func DetectPlatform() PlatformInfo {
	os := runtime.GOOS
	arch := runtime.GOARCH

	switch os {
	case PlatformWindows:
		return PlatformInfo{OS: os, Arch: arch, Supported: true, RecommendedAppSandbox: ImplAppContainer, RecommendedToolSandbox: ImplWSL2GVisor}
	case PlatformLinux:
		return PlatformInfo{OS: os, Arch: arch, Supported: true, RecommendedAppSandbox: ImplLandlockNono, RecommendedToolSandbox: ImplGVisorDocker}
	case PlatformMacOS:
		return PlatformInfo{OS: os, Arch: arch, Supported: true, RecommendedAppSandbox: ImplSeatbeltNono, RecommendedToolSandbox: ImplGVisorDocker}
	default:
		return PlatformInfo{OS: os, Arch: arch, Supported: false}
	}
}

// ToolSandboxFallback returns the less-isolating substitute implementation
// for the recommended tool sandbox on this platform, used only when
// AllowInsecureFallback is set and the primary implementation fails to
// create.
func ToolSandboxFallback(primary string) string {
	switch primary {
	case ImplGVisorDocker, ImplWSL2GVisor:
		return ImplPlainDocker
	default:
		return ImplPlainDocker
	}
}
