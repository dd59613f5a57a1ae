package version

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
)

// Build is what the running binary knows about how it was built.
type Build struct {
	Revision string // first 12 chars of vcs.revision
	Modified bool
	Sum      string // first 12 hex chars of sha256(executable)
}

// String joins the known parts as rev[-dirty][+sum], or "unknown".
func (b Build) String() string {
	out := b.Revision
	if out != "" && b.Modified {
		out += "-dirty"
	}
	switch {
	case out != "" && b.Sum != "":
		return out + "+" + b.Sum
	case b.Sum != "":
		return b.Sum
	case out != "":
		return out
	}
	return "unknown"
}

var readBuild = sync.OnceValue(func() Build {
	b := vcsBuild()
	b.Sum = fileSum(executable())
	return b
})

func vcsBuild() Build {
	var b Build
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = shorten(setting.Value)
		case "vcs.modified":
			b.Modified = setting.Value == "true"
		}
	}
	return b
}

// Identity changes whenever the binary is rebuilt, so a CLI can tell that
// the daemon it is talking to is stale even when SemVer is unchanged.
func Identity() string {
	return readBuild().String()
}

// ForBinary is the Identity another binary from the same build would report,
// given its path. forge uses it to predict the version of the forged it
// would launch.
func ForBinary(path string) string {
	b := vcsBuild()
	b.Sum = fileSum(path)
	return b.String()
}

func executable() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe
}

func fileSum(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return shorten(hex.EncodeToString(h.Sum(nil)))
}

func shorten(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
