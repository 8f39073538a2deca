// Package changelog reads and edits the per-version release notes kept
// in CHANGELOG.md. The file is a sequence of version sections:
//
//	## v0.1.3-rc.1 (2025-02-14)
//	### Release notes
//	Some release notes here.
//	#### Features
//	...changelog entries until the next <a name=...> anchor.
package changelog

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultPath is the conventional changelog location.
const DefaultPath = "CHANGELOG.md"

// ReleaseNotes is one version's section of the changelog.
type ReleaseNotes struct {
	Version   string
	Date      string
	Header    string
	Notes     string
	Changelog string
}

// Formatted renders the section the way it appears in the forge release
// body: header, then notes, then the generated changelog.
func (r ReleaseNotes) Formatted() string {
	text := r.Header + "\n"
	if r.Notes != "" {
		text += "\n" + r.Notes + "\n"
	}
	if r.Changelog != "" {
		text += "\n" + r.Changelog + "\n"
	}
	return text
}

// Parse reads the changelog file and returns the release notes of every
// version found, keyed by version string.
func Parse(path string) (map[string]ReleaseNotes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read changelog", goerr.V("path", path))
	}
	return parseLines(strings.Split(string(data), "\n")), nil
}

func parseLines(lines []string) map[string]ReleaseNotes {
	notes := make(map[string]ReleaseNotes)

	var version, date, header, body, changes string
	inNotes, inChanges := false, false

	flush := func() {
		if version != "" {
			notes[version] = ReleaseNotes{
				Version:   version,
				Date:      date,
				Header:    header,
				Notes:     strings.TrimSpace(body),
				Changelog: strings.TrimSpace(changes),
			}
		}
	}

	for _, line := range lines {
		if inNotes {
			switch {
			case strings.HasPrefix(line, "####"):
				inNotes = false
				inChanges = true
			case strings.HasPrefix(line, "<a name="):
				inNotes = false
				flush()
			default:
				body += line + "\n"
				continue
			}
		}
		if inChanges {
			if strings.HasPrefix(line, "<a name=") {
				inChanges = false
				flush()
			} else {
				changes += line + "\n"
				continue
			}
		}
		if strings.HasPrefix(line, "## ") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				// A bare "## " header carries no version; skip it.
				continue
			}
			flush()
			version = fields[1]
			date = ""
			if open := strings.Index(line, "("); open != -1 {
				if end := strings.Index(line[open:], ")"); end != -1 {
					date = line[open+1 : open+end]
				}
			}
			header, body, changes = "", "", ""
		}
		if strings.HasPrefix(line, "### ") {
			header = line
			body = ""
			inNotes = true
		}
	}
	flush()

	return notes
}

// Get returns the release notes for a version.
func Get(path, version string) (ReleaseNotes, error) {
	all, err := Parse(path)
	if err != nil {
		return ReleaseNotes{}, err
	}
	notes, ok := all[version]
	if !ok {
		return ReleaseNotes{}, goerr.New("no release notes for version",
			goerr.V("version", version), goerr.V("path", path))
	}
	return notes, nil
}

// Has reports whether the changelog contains a section for version.
func Has(path, version string) (bool, error) {
	all, err := Parse(path)
	if err != nil {
		return false, err
	}
	_, ok := all[version]
	return ok, nil
}

// SetNotes inserts or replaces the release notes of a version. The notes
// go between the "## <version>" header and the next anchor or "####"
// changelog header.
func SetNotes(path, version, notes string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "failed to read changelog", goerr.V("path", path))
	}
	lines := strings.Split(string(data), "\n")

	var updated []string
	inNotes, wrote := false, false
	for _, line := range lines {
		if inNotes {
			if !wrote {
				updated = append(updated, "\n"+strings.TrimSpace(notes)+"\n")
				wrote = true
			}
			if strings.HasPrefix(line, "<a name=") || strings.HasPrefix(line, "####") {
				inNotes = false
			} else {
				continue
			}
		}
		updated = append(updated, line)
		if strings.HasPrefix(line, "## "+version) {
			inNotes = true
		}
	}

	out := strings.TrimRight(strings.Join(updated, "\n"), "\n") + "\n"
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return goerr.Wrap(err, "failed to write changelog", goerr.V("path", path))
	}
	return nil
}
