package github

import (
	"context"
	"strings"

	"github.com/google/go-github/v72/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/model"
)

// Identity used for commits and tags created through the git data API.
// Objects authored this way are attributed to the Actions bot and carry
// GitHub's own verification signature.
const (
	botName  = "github-actions[bot]"
	botEmail = "41898282+github-actions[bot]@users.noreply.github.com"
)

// PushSigned creates a verified commit without a local signing key:
// blobs for every changed file, a tree on top of the base commit, a
// commit object, and finally a forced ref update of the target branch.
func (c *client) PushSigned(ctx context.Context, commit *model.SignedCommit) (string, error) {
	entries := make([]*github.TreeEntry, 0, len(commit.Files))
	for _, file := range commit.Files {
		blob, _, err := c.gh.Git.CreateBlob(ctx, c.slug.Owner, c.slug.Name, &github.Blob{
			Content:  github.Ptr(string(file.Content)),
			Encoding: github.Ptr("utf-8"),
		})
		if err != nil {
			return "", goerr.Wrap(err, "failed to create blob", goerr.V("path", file.Path))
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.Ptr(file.Path),
			Mode: github.Ptr("100644"),
			Type: github.Ptr("blob"),
			SHA:  blob.SHA,
		})
	}

	tree, _, err := c.gh.Git.CreateTree(ctx, c.slug.Owner, c.slug.Name, commit.BaseSHA, entries)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create tree", goerr.V("base", commit.BaseSHA))
	}

	created, _, err := c.gh.Git.CreateCommit(ctx, c.slug.Owner, c.slug.Name, &github.Commit{
		Message: github.Ptr(commit.Message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.Ptr(commit.BaseSHA)}},
	}, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create commit")
	}

	ref := &github.Reference{
		Ref:    github.Ptr("refs/heads/" + commit.TargetBranch),
		Object: &github.GitObject{SHA: created.SHA},
	}
	if _, _, err := c.gh.Repositories.GetBranch(ctx, c.slug.Owner, c.slug.Name, commit.TargetBranch, 1); err != nil {
		if _, _, err := c.gh.Git.CreateRef(ctx, c.slug.Owner, c.slug.Name, ref); err != nil {
			return "", goerr.Wrap(err, "failed to create branch ref",
				goerr.V("branch", commit.TargetBranch))
		}
	} else {
		if _, _, err := c.gh.Git.UpdateRef(ctx, c.slug.Owner, c.slug.Name, ref, true); err != nil {
			return "", goerr.Wrap(err, "failed to update branch ref",
				goerr.V("branch", commit.TargetBranch))
		}
	}

	c.cache.invalidate()
	return created.GetSHA(), nil
}

// CreateTag creates an unsigned annotated tag attributed to the bot. A
// human re-signs it out-of-band with the same annotation later.
func (c *client) CreateTag(ctx context.Context, commitSHA, tag, message string) (string, error) {
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	created, _, err := c.gh.Git.CreateTag(ctx, c.slug.Owner, c.slug.Name, &github.Tag{
		Tag:     github.Ptr(tag),
		Message: github.Ptr(message),
		Object:  &github.GitObject{SHA: github.Ptr(commitSHA), Type: github.Ptr("commit")},
		Tagger:  &github.CommitAuthor{Name: github.Ptr(botName), Email: github.Ptr(botEmail)},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create tag object", goerr.V("tag", tag))
	}

	_, _, err = c.gh.Git.CreateRef(ctx, c.slug.Owner, c.slug.Name, &github.Reference{
		Ref:    github.Ptr("refs/tags/" + tag),
		Object: &github.GitObject{SHA: created.SHA},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create tag ref", goerr.V("tag", tag))
	}

	c.cache.invalidate()
	return created.GetSHA(), nil
}
