// Package tools implements the thin one-shot release helpers: tarball
// creation, asset signing and verification, PR validation and changelog
// editing. No coordination logic lives here.
package tools

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/interfaces"
	"github.com/relman-dev/relman/pkg/domain/model"
)

var tarballContentTypes = map[string]string{
	"gz": "application/gzip",
	"xz": "application/x-xz",
}

// signatureSuffix is the detached armored signature extension.
const signatureSuffix = ".asc"

type client struct {
	forge       interfaces.Forge
	project     string
	validateCmd []string
	restyleCmd  []string
	gpgUser     string
}

// Option configures the release tools.
type Option func(*client)

// WithValidateCommand sets the external PR validation command.
func WithValidateCommand(args ...string) Option {
	return func(c *client) {
		c.validateCmd = args
	}
}

// WithRestyleCommand sets the command that applies automated style fixes.
func WithRestyleCommand(args ...string) Option {
	return func(c *client) {
		c.restyleCmd = args
	}
}

// WithGPGUser selects the key used for detached signatures.
func WithGPGUser(user string) Option {
	return func(c *client) {
		c.gpgUser = user
	}
}

// New creates the release tools for a repository. project is the prefix
// used inside source tarballs.
func New(forge interfaces.Forge, project string, options ...Option) interfaces.ReleaseTools {
	c := &client{
		forge:      forge,
		project:    project,
		restyleCmd: []string{"hub-restyled"},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func runAttached(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return goerr.Wrap(err, "command failed", goerr.V("args", args))
	}
	return nil
}

func (c *client) ValidatePR(ctx context.Context, commit bool) error {
	if len(c.validateCmd) == 0 {
		ctxlog.From(ctx).Debug("no validate command configured, skipping")
		return nil
	}
	args := c.validateCmd
	if !commit {
		args = append(append([]string{}, args...), "--no-commit")
	}
	return runAttached(ctx, args...)
}

func (c *client) ApplyRestyle(ctx context.Context) error {
	return runAttached(ctx, c.restyleCmd...)
}

func (c *client) EditChangelog(ctx context.Context, path string) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vim"
	}
	return runAttached(ctx, editor, path)
}

// CreateTarballs builds {tag}.tar.gz and {tag}.tar.xz from the tag via
// git archive and uploads them to the release.
func (c *client) CreateTarballs(ctx context.Context, tag string) error {
	logger := ctxlog.From(ctx)

	tmpdir, err := os.MkdirTemp("", "relman-tarballs-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary directory")
	}
	defer os.RemoveAll(tmpdir)

	for _, compressor := range []string{"gzip", "xz"} {
		tarname := filepath.Join(tmpdir, tag+".tar")
		logger.Info("creating tarball", slog.String("tag", tag), slog.String("compressor", compressor))
		if err := runAttached(ctx,
			"git", "archive", "--format=tar",
			"--prefix="+c.project+"-"+tag+"/",
			tag, "--output="+tarname,
		); err != nil {
			return err
		}
		if err := runAttached(ctx, compressor, "-f", tarname); err != nil {
			return err
		}
	}

	for ext, contentType := range tarballContentTypes {
		name := tag + ".tar." + ext
		data, err := os.ReadFile(filepath.Join(tmpdir, name))
		if err != nil {
			return goerr.Wrap(err, "failed to read tarball", goerr.V("name", name))
		}
		logger.Info("uploading tarball", slog.String("name", name))
		if err := c.forge.UploadReleaseAsset(ctx, tag, name, contentType, bytes.NewReader(data)); err != nil {
			return err
		}
	}
	return nil
}

// signable reports whether an asset itself needs a detached signature
// (signatures and checksum files do not).
func signable(name string) bool {
	return !strings.HasSuffix(name, signatureSuffix) &&
		!strings.HasSuffix(name, ".sig") &&
		!strings.HasSuffix(name, ".sha256")
}

func (c *client) UnsignedAssets(ctx context.Context, tag string) ([]string, error) {
	assets, err := c.forge.ReleaseAssets(ctx, tag)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(assets))
	for _, a := range assets {
		names[a.Name] = true
	}
	var todo []string
	for _, a := range assets {
		if signable(a.Name) && !names[a.Name+signatureSuffix] {
			todo = append(todo, a.Name)
		}
	}
	return todo, nil
}

func (c *client) SignAssets(ctx context.Context, tag string) error {
	logger := ctxlog.From(ctx)

	assets, err := c.forge.ReleaseAssets(ctx, tag)
	if err != nil {
		return err
	}
	byName := make(map[string]*model.ReleaseAsset, len(assets))
	for _, a := range assets {
		byName[a.Name] = a
	}
	todo, err := c.UnsignedAssets(ctx, tag)
	if err != nil {
		return err
	}

	tmpdir, err := os.MkdirTemp("", "relman-sign-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary directory")
	}
	defer os.RemoveAll(tmpdir)

	for _, name := range todo {
		logger.Info("signing release asset", slog.String("name", name))
		data, err := c.forge.DownloadReleaseAsset(ctx, byName[name].ID)
		if err != nil {
			return err
		}
		path := filepath.Join(tmpdir, name)
		if err := os.WriteFile(path, data, 0600); err != nil {
			return goerr.Wrap(err, "failed to write asset", goerr.V("name", name))
		}
		args := []string{"gpg", "--batch", "--yes", "--armor", "--detach-sign"}
		if c.gpgUser != "" {
			args = append(args, "--local-user", c.gpgUser)
		}
		if err := runAttached(ctx, append(args, path)...); err != nil {
			return err
		}
		sig, err := os.ReadFile(path + signatureSuffix)
		if err != nil {
			return goerr.Wrap(err, "failed to read signature", goerr.V("name", name))
		}
		if err := c.forge.UploadReleaseAsset(ctx, tag, name+signatureSuffix, "text/plain", bytes.NewReader(sig)); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) VerifyAssets(ctx context.Context, tag string) (int, error) {
	logger := ctxlog.From(ctx)

	assets, err := c.forge.ReleaseAssets(ctx, tag)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]*model.ReleaseAsset, len(assets))
	for _, a := range assets {
		byName[a.Name] = a
	}

	tmpdir, err := os.MkdirTemp("", "relman-verify-*")
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create temporary directory")
	}
	defer os.RemoveAll(tmpdir)

	verified := 0
	for _, a := range assets {
		if !signable(a.Name) {
			continue
		}
		sig, ok := byName[a.Name+signatureSuffix]
		if !ok {
			return verified, goerr.New("release asset has no signature", goerr.V("name", a.Name))
		}
		data, err := c.forge.DownloadReleaseAsset(ctx, a.ID)
		if err != nil {
			return verified, err
		}
		sigData, err := c.forge.DownloadReleaseAsset(ctx, sig.ID)
		if err != nil {
			return verified, err
		}
		path := filepath.Join(tmpdir, a.Name)
		if err := os.WriteFile(path, data, 0600); err != nil {
			return verified, goerr.Wrap(err, "failed to write asset", goerr.V("name", a.Name))
		}
		if err := os.WriteFile(path+signatureSuffix, sigData, 0600); err != nil {
			return verified, goerr.Wrap(err, "failed to write signature", goerr.V("name", a.Name))
		}
		if err := runAttached(ctx, "gpg", "--verify", path+signatureSuffix, path); err != nil {
			return verified, goerr.Wrap(err, "signature verification failed", goerr.V("name", a.Name))
		}
		logger.Info("verified release asset", slog.String("name", a.Name))
		verified++
	}
	return verified, nil
}
