package version

import (
	"strings"
	"testing"
)

func TestVersionCarriesFlag(t *testing.T) {
	if Flag != "" && !strings.Contains(Version, "-"+Flag) {
		t.Fatalf("Version %s does not carry flag %s", Version, Flag)
	}
}
