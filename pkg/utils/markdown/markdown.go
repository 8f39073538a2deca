// Package markdown provides idempotent in-place edits of markdown
// documents: header-scoped section replacement for issue bodies and
// sentinel-delimited section replacement for PR bodies.
package markdown

import "strings"

// Sentinels delimiting the machine-owned part of a PR body. Everything
// outside them belongs to humans and is never touched.
const (
	SentinelStart = "<!-- Releaser:start -->"
	SentinelEnd   = "<!-- Releaser:end -->"
)

// headerLevel returns the number of leading '#' of a header line, or 0
// when the line is not a header.
func headerLevel(line string) int {
	trimmed := strings.TrimLeft(line, "#")
	n := len(line) - len(trimmed)
	if n == 0 || !strings.HasPrefix(trimmed, " ") {
		return 0
	}
	return n
}

// PatchSection replaces the section of body starting at the given header
// line. The section extends to the next header of equal or higher level,
// or to the end of the body. When the header is absent, the new section
// is prepended. Patching the same content twice is a no-op.
func PatchSection(body, header, content string) string {
	level := headerLevel(header)
	lines := strings.Split(body, "\n")

	start := -1
	for i, line := range lines {
		if strings.TrimRight(line, " ") == header {
			start = i
			break
		}
	}
	if start == -1 {
		section := header + "\n\n" + strings.TrimRight(content, "\n") + "\n"
		if strings.TrimSpace(body) == "" {
			return section
		}
		return section + "\n" + body
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if l := headerLevel(lines[i]); l > 0 && l <= level {
			end = i
			break
		}
	}

	section := make([]string, 0, 4)
	section = append(section, header, "")
	section = append(section, strings.Split(strings.TrimRight(content, "\n"), "\n")...)
	section = append(section, "")

	// Collapse blank runs inside the replaced section only; spacing
	// elsewhere in the document belongs to its authors.
	compact := section[:0:0]
	for _, line := range section {
		if line == "" && len(compact) > 0 && compact[len(compact)-1] == "" {
			continue
		}
		compact = append(compact, line)
	}

	updated := make([]string, 0, len(lines)+len(compact))
	updated = append(updated, lines[:start]...)
	updated = append(updated, compact...)
	updated = append(updated, lines[end:]...)
	return strings.Join(updated, "\n")
}

// SentinelBody extracts the machine-owned section between the sentinels,
// or "" when the sentinels are absent.
func SentinelBody(body string) string {
	start := strings.Index(body, SentinelStart)
	end := strings.Index(body, SentinelEnd)
	if start == -1 || end == -1 {
		return ""
	}
	return strings.TrimSpace(body[start+len(SentinelStart) : end])
}

// PatchSentinels replaces the machine-owned section between the
// sentinels, preserving all surrounding human-authored content. When no
// sentinels exist yet, the section is prepended.
func PatchSentinels(body, patch string) string {
	start := strings.Index(body, SentinelStart)
	end := strings.Index(body, SentinelEnd)
	if start == -1 || end == -1 {
		return SentinelStart + "\n" + patch + "\n" + SentinelEnd + "\n" + body
	}
	return body[:start] + SentinelStart + "\n" + patch + "\n" + SentinelEnd + body[end+len(SentinelEnd):]
}
