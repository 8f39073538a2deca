// Package git implements the VersionControl interface by shelling out to
// the git binary.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/interfaces"
	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/domain/types"
)

var remoteSlugRegex = regexp.MustCompile(`[:/]([^/]+)/([^./]+?)(?:\.git)?$`)

type client struct {
	dir  string
	root string
}

// Option configures the git client.
type Option func(*client)

// WithDir runs git commands in the given directory instead of the
// process working directory.
func WithDir(dir string) Option {
	return func(c *client) {
		c.dir = dir
	}
}

// New creates a VersionControl backed by the git binary.
func New(options ...Option) interfaces.VersionControl {
	c := &client{}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *client) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	return cmd
}

func (c *client) output(ctx context.Context, args ...string) (string, error) {
	out, err := c.command(ctx, args...).Output()
	if err != nil {
		return "", goerr.Wrap(err, "git command failed", goerr.V("args", args))
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *client) call(ctx context.Context, args ...string) error {
	cmd := c.command(ctx, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return goerr.Wrap(err, "git command failed", goerr.V("args", args))
	}
	return nil
}

func (c *client) exitCode(ctx context.Context, args ...string) int {
	cmd := c.command(ctx, args...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		return -1
	}
	return 0
}

func (c *client) lines(ctx context.Context, args ...string) ([]string, error) {
	out, err := c.output(ctx, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (c *client) Root(ctx context.Context) (string, error) {
	if c.root == "" {
		root, err := c.output(ctx, "rev-parse", "--show-toplevel")
		if err != nil {
			return "", err
		}
		c.root = root
	}
	return c.root, nil
}

func (c *client) Fetch(ctx context.Context, remotes ...string) error {
	args := append([]string{
		"fetch", "--quiet", "--tags", "--prune", "--force", "--multiple",
	}, remotes...)
	return c.call(ctx, args...)
}

func (c *client) Pull(ctx context.Context, remote string) error {
	branch, err := c.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	return c.call(ctx, "pull", "--rebase", "--quiet", remote, branch)
}

func (c *client) Push(ctx context.Context, remote, branch string, force bool) error {
	args := []string{"push", "--quiet"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, "--set-upstream", remote, branch)
	return c.call(ctx, args...)
}

func (c *client) RemoteSlug(ctx context.Context, remote string) (model.RepoSlug, error) {
	url, err := c.output(ctx, "remote", "get-url", remote)
	if err != nil {
		return model.RepoSlug{}, err
	}
	return ParseRemoteURL(url)
}

// ParseRemoteURL extracts the owner/name slug from a git remote URL,
// supporting both SSH and HTTPS forms.
func ParseRemoteURL(url string) (model.RepoSlug, error) {
	m := remoteSlugRegex.FindStringSubmatch(url)
	if m == nil {
		return model.RepoSlug{}, goerr.New("could not parse remote URL", goerr.V("url", url))
	}
	return model.RepoSlug{Owner: m[1], Name: m[2]}, nil
}

func (c *client) Remotes(ctx context.Context) ([]string, error) {
	return c.lines(ctx, "remote")
}

func (c *client) CurrentBranch(ctx context.Context) (string, error) {
	return c.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *client) Branches(ctx context.Context, remote string) ([]string, error) {
	args := []string{"branch", "--list", "--no-column", "--format=%(refname:short)"}
	if remote != "" {
		remotes, err := c.Remotes(ctx)
		if err != nil {
			return nil, err
		}
		if !contains(remotes, remote) {
			return nil, goerr.New("remote does not exist", goerr.V("remote", remote))
		}
		args = append(args, "--remotes")
	}
	branches, err := c.lines(ctx, args...)
	if err != nil {
		return nil, err
	}
	if remote == "" {
		return branches, nil
	}
	var result []string
	for _, b := range branches {
		if strings.HasPrefix(b, remote+"/") {
			result = append(result, strings.SplitN(b, "/", 2)[1])
		}
	}
	return result, nil
}

func (c *client) BranchSHA(ctx context.Context, ref string) (string, error) {
	return c.output(ctx, "rev-list", "--max-count=1", ref)
}

func (c *client) CreateBranch(ctx context.Context, branch, base string) error {
	return c.call(ctx, "checkout", "--quiet", "-b", branch, base)
}

func (c *client) Checkout(ctx context.Context, branch string) error {
	return c.call(ctx, "checkout", "--quiet", branch)
}

func (c *client) Reset(ctx context.Context, ref string) error {
	return c.call(ctx, "reset", "--quiet", "--hard", ref)
}

func (c *client) Rebase(ctx context.Context, onto string, commits int) (bool, error) {
	oldSHA, err := c.BranchSHA(ctx, "HEAD")
	if err != nil {
		return false, err
	}
	if commits == 0 {
		if err := c.call(ctx, "rebase", "--quiet", onto); err != nil {
			return false, err
		}
	} else {
		branch, err := c.CurrentBranch(ctx)
		if err != nil {
			return false, err
		}
		if err := c.call(ctx, "rebase", "--quiet", "--onto", onto, fmt.Sprintf("HEAD~%d", commits)); err != nil {
			return false, err
		}
		newSHA, err := c.BranchSHA(ctx, "HEAD")
		if err != nil {
			return false, err
		}
		if err := c.Checkout(ctx, branch); err != nil {
			return false, err
		}
		if err := c.Reset(ctx, newSHA); err != nil {
			return false, err
		}
	}
	newSHA, err := c.BranchSHA(ctx, "HEAD")
	if err != nil {
		return false, err
	}
	return oldSHA != newSHA, nil
}

func (c *client) diffExitCode(ctx context.Context, extra ...string) bool {
	args := append([]string{"diff", "--quiet", "--exit-code"}, extra...)
	return c.exitCode(ctx, args...) != 0
}

func (c *client) IsClean(ctx context.Context) (bool, error) {
	return !c.diffExitCode(ctx) && !c.diffExitCode(ctx, "--cached"), nil
}

func (c *client) HasLocalChanges(ctx context.Context) (bool, error) {
	return c.diffExitCode(ctx), nil
}

func (c *client) ChangedFiles(ctx context.Context) ([]string, error) {
	return c.lines(ctx, "diff", "--name-only", "HEAD")
}

func (c *client) Add(ctx context.Context, paths ...string) error {
	return c.call(ctx, append([]string{"add"}, paths...)...)
}

func (c *client) Commit(ctx context.Context, title, body string) error {
	branch, err := c.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	last, err := c.LastCommitMessage(ctx, branch)
	if err != nil {
		return err
	}
	args := []string{"commit", "--quiet"}
	if last == title {
		args = append(args, "--amend")
	}
	args = append(args, "--message", title, "--message", body)
	return c.call(ctx, args...)
}

func (c *client) StashPush(ctx context.Context) error {
	return c.call(ctx, "stash", "--quiet", "--include-untracked")
}

func (c *client) StashPop(ctx context.Context) error {
	return c.call(ctx, "stash", "pop", "--quiet")
}

func (c *client) Log(ctx context.Context, branch string, count int) ([]string, error) {
	lines, err := c.lines(ctx, "log", "--oneline", "--no-decorate",
		fmt.Sprintf("--max-count=%d", count), branch)
	if err != nil {
		return nil, err
	}
	messages := make([]string, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) == 2 {
			messages = append(messages, strings.TrimSpace(parts[1]))
		}
	}
	return messages, nil
}

func (c *client) LastCommitMessage(ctx context.Context, branch string) (string, error) {
	messages, err := c.Log(ctx, branch, 1)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", goerr.New("branch has no commits", goerr.V("branch", branch))
	}
	return messages[0], nil
}

func (c *client) FindCommitSHA(ctx context.Context, message string) (string, error) {
	return c.output(ctx, "log", "--format=%H", "--grep", message, "-1")
}

func (c *client) CommitMessage(ctx context.Context, sha string) (string, error) {
	return c.output(ctx, "show", "--quiet", "--format=%B", sha)
}

func (c *client) FilesChanged(ctx context.Context, commit string) ([]string, error) {
	return c.lines(ctx, "diff", "--name-only", commit+"^")
}

func (c *client) IsUpToDate(ctx context.Context, branch, remote string) (bool, error) {
	remoteBranches, err := c.Branches(ctx, remote)
	if err != nil {
		return false, err
	}
	if !contains(remoteBranches, branch) {
		return false, nil
	}
	local, err := c.BranchSHA(ctx, branch)
	if err != nil {
		return false, err
	}
	tracked, err := c.BranchSHA(ctx, remote+"/"+branch)
	if err != nil {
		return false, err
	}
	return local == tracked, nil
}

func (c *client) TagExists(ctx context.Context, tag string) (bool, error) {
	tags, err := c.lines(ctx, "tag", "--merged")
	if err != nil {
		return false, err
	}
	for _, t := range tags {
		if t == tag && types.VersionRegex.MatchString(t) {
			return true, nil
		}
	}
	return false, nil
}

func (c *client) CreateTag(ctx context.Context, tag, message string, sign bool) error {
	args := []string{"tag"}
	if sign {
		args = append(args, "--sign")
	}
	args = append(args, "--annotate", "--message", message, tag)
	return c.call(ctx, args...)
}

func (c *client) TagHasSignature(ctx context.Context, tag string) (bool, error) {
	out, err := c.output(ctx, "cat-file", "tag", tag)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "-----BEGIN PGP SIGNATURE-----"), nil
}

func (c *client) VerifyTag(ctx context.Context, tag string) (bool, error) {
	return c.exitCode(ctx, "verify-tag", "--verbose", tag) == 0, nil
}

func (c *client) SignTag(ctx context.Context, tag string) error {
	return c.call(ctx, "tag", "--sign", "--force", tag, tag+"^{}")
}

func (c *client) PushTag(ctx context.Context, tag, remote string) error {
	return c.call(ctx, "push", "--quiet", "--force", remote, tag)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
