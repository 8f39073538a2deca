package types_test

import (
	"sort"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/relman-dev/relman/pkg/domain/types"
)

func TestParseVersionRoundTrip(t *testing.T) {
	for _, s := range []string{
		"v0.1.0",
		"v1.2.3",
		"v1.2.3-rc.1",
		"v10.20.30-rc.99",
	} {
		v := gt.R1(types.ParseVersion(s)).NoError(t)
		gt.Value(t, v.String()).Equal(s)
	}
}

func TestParseVersionShortForm(t *testing.T) {
	v := gt.R1(types.ParseVersion("v1.2")).NoError(t)
	gt.Value(t, v).Equal(types.Version{Major: 1, Minor: 2})
	gt.Value(t, v.String()).Equal("v1.2.0")
}

func TestParseVersionInvalid(t *testing.T) {
	for _, s := range []string{
		"",
		"1.2.3",
		"v1",
		"v1.2.3-rc",
		"v1.2.3-rc.",
		"release/v1.2.3",
	} {
		_, err := types.ParseVersion(s)
		gt.Error(t, err)
	}
}

func TestParseVersionComponentOverflow(t *testing.T) {
	for _, s := range []string{
		"v99999999999999999999.0.0",
		"v1.99999999999999999999.0",
		"v1.2.99999999999999999999",
		"v1.2.3-rc.99999999999999999999",
	} {
		_, err := types.ParseVersion(s)
		gt.Error(t, err)
	}
}

func TestVersionOrdering(t *testing.T) {
	parse := func(s string) types.Version {
		return gt.R1(types.ParseVersion(s)).NoError(t)
	}

	// Release candidates sort before the finished release of the same
	// patch version.
	gt.True(t, parse("v1.2.3-rc.1").Less(parse("v1.2.3")))
	gt.True(t, parse("v1.2.3-rc.1").Less(parse("v1.2.3-rc.2")))
	gt.False(t, parse("v1.2.3").Less(parse("v1.2.3-rc.9")))
	gt.False(t, parse("v1.2.3").Less(parse("v1.2.3")))

	gt.True(t, parse("v1.2.3").Less(parse("v1.2.4")))
	gt.True(t, parse("v1.2.9").Less(parse("v1.3.0")))
	gt.True(t, parse("v1.9.9").Less(parse("v2.0.0")))
	gt.True(t, parse("v1.2.4-rc.1").Less(parse("v1.2.5-rc.1")))

	versions := []string{
		"v2.0.0", "v1.2.3", "v1.2.3-rc.2", "v1.3.0-rc.1", "v1.2.3-rc.1",
	}
	sort.Slice(versions, func(i, j int) bool {
		return parse(versions[i]).Less(parse(versions[j]))
	})
	gt.Value(t, versions).Equal([]string{
		"v1.2.3-rc.1", "v1.2.3-rc.2", "v1.2.3", "v1.3.0-rc.1", "v2.0.0",
	})
}

func TestIsRC(t *testing.T) {
	gt.True(t, gt.R1(types.ParseVersion("v1.0.0-rc.1")).NoError(t).IsRC())
	gt.False(t, gt.R1(types.ParseVersion("v1.0.0")).NoError(t).IsRC())
}
