package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v72/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/model"
)

var rcSuffixRegex = regexp.MustCompile(`-rc\.(\d+)$`)

func convertRelease(r *github.RepositoryRelease) *model.Release {
	return &model.Release{
		ID:         r.GetID(),
		TagName:    r.GetTagName(),
		Name:       r.GetName(),
		Body:       r.GetBody(),
		Draft:      r.GetDraft(),
		Prerelease: r.GetPrerelease(),
		Published:  r.PublishedAt != nil,
	}
}

// releases lists all releases, drafts included. Cached: the listing only
// changes when we create a release ourselves, which invalidates.
func (c *client) releases(ctx context.Context) ([]*model.Release, error) {
	return cachedCall(c.cache, "releases", func() ([]*model.Release, error) {
		releases, _, err := c.gh.Repositories.ListReleases(ctx, c.slug.Owner, c.slug.Name, &github.ListOptions{PerPage: 100})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list releases")
		}
		result := make([]*model.Release, 0, len(releases))
		for _, r := range releases {
			result = append(result, convertRelease(r))
		}
		return result, nil
	})
}

// releaseID resolves a tag to its release ID. Matches on tag_name
// because draft releases are untagged.
func (c *client) releaseID(ctx context.Context, tag string) (int64, error) {
	releases, err := c.releases(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range releases {
		if r.TagName == tag {
			return r.ID, nil
		}
	}
	return 0, goerr.New("release not found", goerr.V("tag", tag))
}

func (c *client) Release(ctx context.Context, tag string) (*model.Release, error) {
	releases, err := c.releases(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range releases {
		if r.TagName == tag {
			return r, nil
		}
	}
	return nil, nil
}

func (c *client) CreateRelease(ctx context.Context, tag, name string, prerelease bool) (*model.Release, error) {
	created, _, err := c.gh.Repositories.CreateRelease(ctx, c.slug.Owner, c.slug.Name, &github.RepositoryRelease{
		TagName:    github.Ptr(tag),
		Name:       github.Ptr(name),
		Draft:      github.Ptr(true),
		Prerelease: github.Ptr(prerelease),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create release", goerr.V("tag", tag))
	}
	c.cache.invalidate()
	return convertRelease(created), nil
}

func (c *client) LatestRelease(ctx context.Context) (string, error) {
	return cachedCall(c.cache, "latest-release", func() (string, error) {
		release, _, err := c.gh.Repositories.GetLatestRelease(ctx, c.slug.Owner, c.slug.Name)
		if err != nil {
			return "", goerr.Wrap(err, "failed to get latest release")
		}
		return release.GetTagName(), nil
	})
}

// ReleaseCandidates returns the RC numbers of published prereleases for
// the given version, e.g. [1 2] when v1.3.0-rc.1 and v1.3.0-rc.2 exist.
func (c *client) ReleaseCandidates(ctx context.Context, version string) ([]int, error) {
	releases, err := c.releases(ctx)
	if err != nil {
		return nil, err
	}
	var rcs []int
	for _, r := range releases {
		if !r.Prerelease || r.Draft {
			continue
		}
		if !strings.Contains(r.TagName, version+"-rc.") {
			continue
		}
		if m := rcSuffixRegex.FindStringSubmatch(r.TagName); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			rcs = append(rcs, n)
		}
	}
	return rcs, nil
}

func (c *client) SetReleaseNotes(ctx context.Context, tag, notes string, prerelease bool) error {
	id, err := c.releaseID(ctx, tag)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Repositories.EditRelease(ctx, c.slug.Owner, c.slug.Name, id, &github.RepositoryRelease{
		TagName:    github.Ptr(tag),
		Body:       github.Ptr(notes),
		Prerelease: github.Ptr(prerelease),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to set release notes", goerr.V("tag", tag))
	}
	c.cache.invalidate()
	return nil
}

// ReleaseIsPublished re-reads the publish state from the API on every
// call: it is used to check whether our own publishing worked. Only the
// tag-to-ID resolution may come from the cached listing; release IDs
// never change once the release exists.
func (c *client) ReleaseIsPublished(ctx context.Context, tag string) (bool, error) {
	id, err := c.releaseID(ctx, tag)
	if err != nil {
		return false, err
	}
	release, _, err := c.gh.Repositories.GetRelease(ctx, c.slug.Owner, c.slug.Name, id)
	if err != nil {
		return false, goerr.Wrap(err, "failed to get release", goerr.V("tag", tag))
	}
	return release.PublishedAt != nil, nil
}

func (c *client) ReleaseAssets(ctx context.Context, tag string) ([]*model.ReleaseAsset, error) {
	id, err := c.releaseID(ctx, tag)
	if err != nil {
		return nil, err
	}
	assets, _, err := c.gh.Repositories.ListReleaseAssets(ctx, c.slug.Owner, c.slug.Name, id, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list release assets", goerr.V("tag", tag))
	}
	result := make([]*model.ReleaseAsset, 0, len(assets))
	for _, a := range assets {
		result = append(result, &model.ReleaseAsset{
			ID:          a.GetID(),
			Name:        a.GetName(),
			ContentType: a.GetContentType(),
			DownloadURL: a.GetBrowserDownloadURL(),
		})
	}
	return result, nil
}

func (c *client) UploadReleaseAsset(ctx context.Context, tag, name, contentType string, data io.Reader) error {
	id, err := c.releaseID(ctx, tag)
	if err != nil {
		return err
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return goerr.Wrap(err, "failed to read asset content", goerr.V("name", name))
	}

	u := fmt.Sprintf("repos/%s/%s/releases/%d/assets?name=%s", c.slug.Owner, c.slug.Name, id, name)
	req, err := c.gh.NewUploadRequest(u, bytes.NewReader(content), int64(len(content)), contentType)
	if err != nil {
		return goerr.Wrap(err, "failed to build asset upload request", goerr.V("name", name))
	}
	if _, err := c.gh.Do(ctx, req, nil); err != nil {
		return goerr.Wrap(err, "failed to upload release asset",
			goerr.V("tag", tag), goerr.V("name", name))
	}
	c.cache.invalidate()
	return nil
}

func (c *client) DownloadReleaseAsset(ctx context.Context, assetID int64) ([]byte, error) {
	rc, _, err := c.gh.Repositories.DownloadReleaseAsset(ctx, c.slug.Owner, c.slug.Name, assetID, http.DefaultClient)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download release asset", goerr.V("asset", assetID))
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read release asset", goerr.V("asset", assetID))
	}
	return data, nil
}
