package changelog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/relman-dev/relman/pkg/utils/changelog"
)

const sample = `<a name="v1.2.3"></a>

## v1.2.3 (2026-01-15)

### Release notes

Fixed many bugs.

#### Features

- feat: shiny new thing

<a name="v1.2.3-rc.1"></a>

## v1.2.3-rc.1 (2026-01-01)

### Release notes

First candidate.
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	gt.NoError(t, os.WriteFile(path, []byte(sample), 0644))
	return path
}

func TestParse(t *testing.T) {
	path := writeSample(t)
	notes := gt.R1(changelog.Parse(path)).NoError(t)

	final := notes["v1.2.3"]
	gt.Value(t, final.Version).Equal("v1.2.3")
	gt.Value(t, final.Date).Equal("2026-01-15")
	gt.Value(t, final.Header).Equal("### Release notes")
	gt.Value(t, final.Notes).Equal("Fixed many bugs.")
	gt.True(t, strings.Contains(final.Changelog, "#### Features"))
	gt.True(t, strings.Contains(final.Changelog, "- feat: shiny new thing"))

	rc := notes["v1.2.3-rc.1"]
	gt.Value(t, rc.Notes).Equal("First candidate.")
	gt.Value(t, rc.Changelog).Equal("")
}

func TestParseSkipsBareVersionHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	gt.NoError(t, os.WriteFile(path, []byte("## \n\n"+sample), 0644))

	notes := gt.R1(changelog.Parse(path)).NoError(t)
	gt.Value(t, notes["v1.2.3"].Notes).Equal("Fixed many bugs.")
	gt.True(t, gt.R1(changelog.Has(path, "v1.2.3-rc.1")).NoError(t))
}

func TestGetAndHas(t *testing.T) {
	path := writeSample(t)

	gt.True(t, gt.R1(changelog.Has(path, "v1.2.3")).NoError(t))
	gt.False(t, gt.R1(changelog.Has(path, "v9.9.9")).NoError(t))

	notes := gt.R1(changelog.Get(path, "v1.2.3")).NoError(t)
	gt.Value(t, notes.Notes).Equal("Fixed many bugs.")

	_, err := changelog.Get(path, "v9.9.9")
	gt.Error(t, err)
}

func TestFormatted(t *testing.T) {
	path := writeSample(t)
	notes := gt.R1(changelog.Get(path, "v1.2.3")).NoError(t)

	formatted := notes.Formatted()
	gt.True(t, strings.HasPrefix(formatted, "### Release notes\n"))
	gt.True(t, strings.Contains(formatted, "Fixed many bugs."))
	gt.True(t, strings.Contains(formatted, "#### Features"))
}

func TestSetNotes(t *testing.T) {
	path := writeSample(t)

	updated := "### Release notes\n\nBetter notes."
	gt.NoError(t, changelog.SetNotes(path, "v1.2.3-rc.1", updated))

	notes := gt.R1(changelog.Get(path, "v1.2.3-rc.1")).NoError(t)
	gt.Value(t, notes.Notes).Equal("Better notes.")

	// The other version is untouched.
	final := gt.R1(changelog.Get(path, "v1.2.3")).NoError(t)
	gt.Value(t, final.Notes).Equal("Fixed many bugs.")
}
