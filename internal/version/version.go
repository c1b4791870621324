// Package version reports the build version of gamebridge.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

// Name is the program name reported to tool clients.
const Name = "gamebridge"

const (
	defaultModule  = "pkt.systems/gamebridge"
	unknownVersion = "v0.0.0-unknown"
	dirtySuffix    = "+dirty"
)

// buildVersion is set via -ldflags "-X pkt.systems/gamebridge/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running binary.
type Info struct {
	Module   string
	Version  string
	Revision string
	Time     time.Time
	Modified bool
}

// Get collects build information. Version carries a +dirty suffix when the
// working tree was modified at build time.
func Get() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Module: defaultModule}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.time":
				out.Time, _ = time.Parse(time.RFC3339, setting.Value)
			case "vcs.modified":
				out.Modified = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(override) != "":
		out.Version = strings.TrimSpace(override)
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = info.Main.Version
	default:
		out.Version = out.pseudo()
	}
	return out
}

// pseudo builds a module pseudo-version from the VCS stamp.
func (i Info) pseudo() string {
	if i.Revision == "" || i.Time.IsZero() {
		return unknownVersion
	}
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v := "v0.0.0-" + i.Time.UTC().Format("20060102150405") + "-" + rev
	if i.Modified {
		v += dirtySuffix
	}
	return v
}

// Current returns the version without the dirty suffix.
func Current() string {
	return strings.TrimSuffix(Get().Version, dirtySuffix)
}

// Summary returns "<name> <version> (<module>)" for banners and tool
// server metadata.
func Summary() string {
	info := Get()
	return Name + " " + info.Version + " (" + info.Module + ")"
}
