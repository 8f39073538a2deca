package github

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
)

var errFake = errors.New("fake api error")

func TestCachedCall(t *testing.T) {
	c := newCache()
	calls := 0
	fetch := func() (int, error) {
		calls++
		return 42, nil
	}

	v := gt.R1(cachedCall(c, "key", fetch)).NoError(t)
	gt.Number(t, v).Equal(42)
	v = gt.R1(cachedCall(c, "key", fetch)).NoError(t)
	gt.Number(t, v).Equal(42)
	gt.Number(t, calls).Equal(1)

	// A different key is a different entry.
	gt.R1(cachedCall(c, "other", fetch)).NoError(t)
	gt.Number(t, calls).Equal(2)

	c.invalidate()
	gt.R1(cachedCall(c, "key", fetch)).NoError(t)
	gt.Number(t, calls).Equal(3)
}

func TestCachedCallDoesNotCacheErrors(t *testing.T) {
	c := newCache()
	calls := 0
	failing := func() (string, error) {
		calls++
		if calls == 1 {
			return "", errFake
		}
		return "ok", nil
	}

	_, err := cachedCall(c, "key", failing)
	gt.Error(t, err)

	v := gt.R1(cachedCall(c, "key", failing)).NoError(t)
	gt.Value(t, v).Equal("ok")
	gt.Number(t, calls).Equal(2)
}

func TestMilestoneLess(t *testing.T) {
	gt.True(t, milestoneLess("v1.2.3", "v1.2.10"))
	gt.True(t, milestoneLess("v1.2.3", "v1.3.0"))
	gt.True(t, milestoneLess("v1.9.9", "v2.0.0"))
	gt.False(t, milestoneLess("v1.2.3", "v1.2.3"))
	gt.False(t, milestoneLess("v2.0.0", "v1.9.9"))
}

func TestMilestoneTitleRegex(t *testing.T) {
	gt.True(t, milestoneTitleRegex.MatchString("v1.2.3"))
	gt.False(t, milestoneTitleRegex.MatchString("v1.2"))
	gt.False(t, milestoneTitleRegex.MatchString("v1.2.3-rc.1"))
	gt.False(t, milestoneTitleRegex.MatchString("Sprint 12"))
}

func TestRCSuffixRegex(t *testing.T) {
	m := rcSuffixRegex.FindStringSubmatch("v1.2.3-rc.7")
	gt.Array(t, m).Length(2)
	gt.Value(t, m[1]).Equal("7")
	gt.True(t, rcSuffixRegex.FindStringSubmatch("v1.2.3") == nil)
}
