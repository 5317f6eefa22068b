// Package version reports the build version of threadview.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version can be set at build time:
// -ldflags="-X github.com/wethinkt/go-threadview/internal/version.Version=v1.0.0"
var Version = ""

// Info describes a build.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Read collects the build information of the running binary.
func Read(name string) Info {
	info := Info{Name: name, Version: Version}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		if info.Version == "" {
			info.Version = "dev"
		}
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if info.Version == "" {
		info.Version = "dev"
		if len(info.Revision) >= 7 {
			info.Version = "dev-" + info.Revision[:7]
		}
	}
	return info
}

func (i Info) String() string {
	s := fmt.Sprintf("%s version %s", i.Name, i.Version)
	if i.GoVersion != "" {
		s += " (" + i.GoVersion + ")"
	}
	if i.Modified {
		s += " +dirty"
	}
	return s
}
