package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
	// GitCommit and BuildDate are optional
	_ = GitCommit
	_ = BuildDate
}

func TestColored(t *testing.T) {
	origVersion, origNoColor := Version, color.NoColor
	t.Cleanup(func() {
		Version, color.NoColor = origVersion, origNoColor
	})

	Version = "1.2.3-rc.1"
	color.NoColor = true
	if got := Colored(); got != "1.2.3-rc.1" {
		t.Errorf("Colored() without color = %q", got)
	}

	color.NoColor = false
	got := Colored()
	if !strings.Contains(got, "\x1b[") || !strings.HasSuffix(got, "-rc.1") {
		t.Errorf("Colored() = %q, want escape codes and the -rc.1 suffix", got)
	}

	Version = "nightly"
	if got := Colored(); got != "nightly" {
		t.Errorf("Colored() for non-semver = %q", got)
	}
}
