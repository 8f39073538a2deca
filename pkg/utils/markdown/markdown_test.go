package markdown_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/relman-dev/relman/pkg/utils/markdown"
)

func TestPatchSectionReplaces(t *testing.T) {
	body := strings.Join([]string{
		"### Release progress",
		"",
		"- [ ] Preparation",
		"",
		"### Release notes",
		"",
		"Some notes.",
	}, "\n")

	patched := markdown.PatchSection(body, "### Release progress", "- [x] Preparation")
	gt.True(t, strings.Contains(patched, "- [x] Preparation"))
	gt.False(t, strings.Contains(patched, "- [ ] Preparation"))
	gt.True(t, strings.Contains(patched, "Some notes."))
}

func TestPatchSectionIdempotent(t *testing.T) {
	body := strings.Join([]string{
		"### Progress",
		"",
		"old content",
		"",
		"### Notes",
		"",
		"keep me",
	}, "\n")

	once := markdown.PatchSection(body, "### Progress", "new content")
	twice := markdown.PatchSection(once, "### Progress", "new content")
	gt.Value(t, twice).Equal(once)
}

func TestPatchSectionPrependsWhenAbsent(t *testing.T) {
	body := "### Notes\n\nkeep me"
	patched := markdown.PatchSection(body, "### Progress", "content")
	gt.True(t, strings.HasPrefix(patched, "### Progress\n"))
	gt.True(t, strings.Contains(patched, "content"))
	gt.True(t, strings.Contains(patched, "keep me"))
}

func TestPatchSectionReplacesToEndOfBody(t *testing.T) {
	body := strings.Join([]string{
		"### Notes",
		"",
		"keep me",
		"",
		"### Progress",
		"",
		"old tail",
	}, "\n")

	patched := markdown.PatchSection(body, "### Progress", "new tail")
	gt.True(t, strings.Contains(patched, "keep me"))
	gt.True(t, strings.Contains(patched, "new tail"))
	gt.False(t, strings.Contains(patched, "old tail"))
}

func TestPatchSectionBoundsAtHigherLevelHeader(t *testing.T) {
	body := strings.Join([]string{
		"### Progress",
		"",
		"old",
		"",
		"#### Detail",
		"",
		"swallowed",
		"",
		"## Top",
		"",
		"keep me",
	}, "\n")

	// Lower-level headers belong to the section; equal-or-higher bound it.
	patched := markdown.PatchSection(body, "### Progress", "new")
	gt.False(t, strings.Contains(patched, "swallowed"))
	gt.True(t, strings.Contains(patched, "keep me"))
}

func TestPatchSectionPreservesSpacingElsewhere(t *testing.T) {
	body := strings.Join([]string{
		"### Progress",
		"",
		"old",
		"",
		"### Notes",
		"",
		"",
		"spaced out",
	}, "\n")

	// Blank runs outside the replaced section stay as their authors
	// wrote them; runs inside the new content still collapse.
	patched := markdown.PatchSection(body, "### Progress", "new")
	gt.True(t, strings.Contains(patched, "### Notes\n\n\nspaced out"))
	gt.False(t, strings.Contains(patched, "old"))

	patched = markdown.PatchSection(body, "### Progress", "a\n\n\nb")
	gt.True(t, strings.Contains(patched, "a\n\nb"))
}

func TestSentinelBody(t *testing.T) {
	body := "before\n" + markdown.SentinelStart + "\nmachine part\n" + markdown.SentinelEnd + "\nafter"
	gt.Value(t, markdown.SentinelBody(body)).Equal("machine part")
	gt.Value(t, markdown.SentinelBody("no sentinels here")).Equal("")
}

func TestPatchSentinelsPreservesHumanContent(t *testing.T) {
	body := "human intro\n" + markdown.SentinelStart + "\nold\n" + markdown.SentinelEnd + "\nhuman outro"
	patched := markdown.PatchSentinels(body, "new")
	gt.True(t, strings.Contains(patched, "human intro"))
	gt.True(t, strings.Contains(patched, "human outro"))
	gt.False(t, strings.Contains(patched, "old"))
	gt.Value(t, markdown.SentinelBody(patched)).Equal("new")
}

func TestPatchSentinelsPrependsWhenAbsent(t *testing.T) {
	patched := markdown.PatchSentinels("human text", "machine part")
	gt.Value(t, markdown.SentinelBody(patched)).Equal("machine part")
	gt.True(t, strings.HasSuffix(patched, "human text"))
}

func TestPatchSentinelsIdempotent(t *testing.T) {
	once := markdown.PatchSentinels("", "content")
	twice := markdown.PatchSentinels(once, "content")
	gt.Value(t, markdown.SentinelBody(twice)).Equal("content")
	gt.Value(t, twice).Equal(markdown.PatchSentinels(twice, "content"))
}
