package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/relman-dev/relman/pkg/domain/interfaces"
	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/utils/poll"
	"github.com/relman-dev/relman/pkg/utils/stage"
)

// fakeVCS implements the VersionControl methods the tested stages touch.
// The embedded interface panics on anything a test did not expect.
type fakeVCS struct {
	interfaces.VersionControl

	currentBranch  string
	clean          bool
	shas           map[string]string
	local          []string
	remote         []string
	lastCommit     map[string]string
	rebaseMoved    bool
	tagExists      bool
	tagSigned      bool
	tagValid       bool
	findCommitSHA  string
	logLines       []string
	pullCalled     bool
	rebaseCalled   bool
	resetCalled    bool
	signTagCalled  bool
	checkoutCalls  []string
	pushedTags     []string
	fetchedRemotes [][]string
}

func (f *fakeVCS) Fetch(ctx context.Context, remotes ...string) error {
	f.fetchedRemotes = append(f.fetchedRemotes, remotes)
	return nil
}

func (f *fakeVCS) Pull(ctx context.Context, remote string) error {
	f.pullCalled = true
	return nil
}

func (f *fakeVCS) CurrentBranch(ctx context.Context) (string, error) {
	return f.currentBranch, nil
}

func (f *fakeVCS) IsClean(ctx context.Context) (bool, error) {
	return f.clean, nil
}

func (f *fakeVCS) BranchSHA(ctx context.Context, ref string) (string, error) {
	if sha, ok := f.shas[ref]; ok {
		return sha, nil
	}
	return "0000000000000000000000000000000000000000", nil
}

func (f *fakeVCS) Branches(ctx context.Context, remote string) ([]string, error) {
	if remote == "" {
		return f.local, nil
	}
	return f.remote, nil
}

func (f *fakeVCS) Checkout(ctx context.Context, branch string) error {
	f.checkoutCalls = append(f.checkoutCalls, branch)
	f.currentBranch = branch
	return nil
}

func (f *fakeVCS) CreateBranch(ctx context.Context, branch, base string) error {
	f.local = append(f.local, branch)
	f.currentBranch = branch
	return nil
}

func (f *fakeVCS) LastCommitMessage(ctx context.Context, branch string) (string, error) {
	return f.lastCommit[branch], nil
}

func (f *fakeVCS) Rebase(ctx context.Context, onto string, commits int) (bool, error) {
	f.rebaseCalled = true
	return f.rebaseMoved, nil
}

func (f *fakeVCS) Reset(ctx context.Context, ref string) error {
	f.resetCalled = true
	return nil
}

func (f *fakeVCS) Log(ctx context.Context, branch string, count int) ([]string, error) {
	return f.logLines, nil
}

func (f *fakeVCS) FindCommitSHA(ctx context.Context, message string) (string, error) {
	return f.findCommitSHA, nil
}

func (f *fakeVCS) TagExists(ctx context.Context, tag string) (bool, error) {
	return f.tagExists, nil
}

func (f *fakeVCS) TagHasSignature(ctx context.Context, tag string) (bool, error) {
	return f.tagSigned, nil
}

func (f *fakeVCS) VerifyTag(ctx context.Context, tag string) (bool, error) {
	return f.tagValid, nil
}

func (f *fakeVCS) SignTag(ctx context.Context, tag string) error {
	f.signTagCalled = true
	return nil
}

func (f *fakeVCS) PushTag(ctx context.Context, tag, remote string) error {
	f.pushedTags = append(f.pushedTags, tag)
	return nil
}

// fakeForge implements the Forge methods the tested stages touch.
type fakeForge struct {
	interfaces.Forge

	issue         *model.Issue
	latestRelease string
	nextMilestone *model.Milestone
	rcs           []int
	pr            *model.PullRequest
	checkRuns     map[string]*model.CheckRun
	workflowRuns  [][]*model.WorkflowRun
}

func (f *fakeForge) GetIssue(ctx context.Context, number int) (*model.Issue, error) {
	return f.issue, nil
}

func (f *fakeForge) LatestRelease(ctx context.Context) (string, error) {
	return f.latestRelease, nil
}

func (f *fakeForge) NextMilestone(ctx context.Context) (*model.Milestone, error) {
	return f.nextMilestone, nil
}

func (f *fakeForge) ReleaseCandidates(ctx context.Context, version string) ([]int, error) {
	return f.rcs, nil
}

func (f *fakeForge) FindPullRequest(ctx context.Context, headSHA, base string) (*model.PullRequest, error) {
	return f.pr, nil
}

func (f *fakeForge) CheckRuns(ctx context.Context, sha string) (map[string]*model.CheckRun, error) {
	return f.checkRuns, nil
}

func (f *fakeForge) WorkflowRuns(ctx context.Context, branch, sha string) ([]*model.WorkflowRun, error) {
	if len(f.workflowRuns) == 0 {
		return nil, nil
	}
	runs := f.workflowRuns[0]
	f.workflowRuns = f.workflowRuns[1:]
	return runs, nil
}

func testConfig() *model.ReleaseConfig {
	return &model.ReleaseConfig{
		Branch:     "master",
		MainBranch: "master",
		Force:      true,
		Rebase:     true,
		Upstream:   "upstream",
		Bot:        "relman-releaser",
		Changelog:  "CHANGELOG.md",
	}
}

func fastPolls() []Option {
	return []Option{
		WithStartPoll(poll.Config{Attempts: 2}),
		WithRunPoll(poll.Config{Attempts: 5}),
		WithPRPoll(poll.Config{Attempts: 2}),
	}
}

func newTestOrchestrator(cfg *model.ReleaseConfig, vcs *fakeVCS, forge *fakeForge) *Orchestrator {
	return New(cfg, vcs, forge, nil, fastPolls()...)
}

func TestStageVersionOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Version = "v1.2.3"
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	version := gt.R1(o.stageVersion(context.Background())).NoError(t)
	gt.Value(t, version).Equal("v1.2.3")
	gt.False(t, vcs.pullCalled)
}

func TestStageVersionInvalidOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Version = "1.2.3"
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	_, err := o.stageVersion(context.Background())
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
}

func TestStageVersionNextCandidate(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	forge := &fakeForge{
		nextMilestone: &model.Milestone{Title: "v1.3.0", Number: 7},
		rcs:           []int{1},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	version := gt.R1(o.stageVersion(context.Background())).NoError(t)
	gt.Value(t, version).Equal("v1.3.0-rc.2")
}

func TestStageVersionFirstCandidate(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	forge := &fakeForge{nextMilestone: &model.Milestone{Title: "v1.3.0", Number: 7}}
	o := newTestOrchestrator(cfg, vcs, forge)

	version := gt.R1(o.stageVersion(context.Background())).NoError(t)
	gt.Value(t, version).Equal("v1.3.0-rc.1")
}

func TestStageVersionProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Production = true
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	forge := &fakeForge{nextMilestone: &model.Milestone{Title: "v1.3.0", Number: 7}}
	o := newTestOrchestrator(cfg, vcs, forge)

	version := gt.R1(o.stageVersion(context.Background())).NoError(t)
	gt.Value(t, version).Equal("v1.3.0")
}

func TestStageVersionLatest(t *testing.T) {
	cfg := testConfig()
	cfg.Version = "latest"
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	forge := &fakeForge{latestRelease: "v1.2.9"}
	o := newTestOrchestrator(cfg, vcs, forge)

	version := gt.R1(o.stageVersion(context.Background())).NoError(t)
	gt.Value(t, version).Equal("v1.2.9")
}

func TestStageVersionFromIssueTitle(t *testing.T) {
	cfg := testConfig()
	cfg.Issue = 42
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	forge := &fakeForge{
		issue: &model.Issue{Number: 42, Title: "Release tracking issue: v2.0.0"},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	version := gt.R1(o.stageVersion(context.Background())).NoError(t)
	gt.Value(t, version).Equal("v2.0.0")
}

func TestStageVersionPullsBehindUpstream(t *testing.T) {
	cfg := testConfig()
	cfg.Version = "v1.2.3"
	vcs := &fakeVCS{currentBranch: "master", shas: map[string]string{
		"HEAD":            "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"upstream/master": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	gt.R1(o.stageVersion(context.Background())).NoError(t)
	gt.True(t, vcs.pullCalled)
}

func TestStageBranchRebasesExistingReleaseCommit(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{
		currentBranch: "master",
		local:         []string{"master", "release/v1.3.0-rc.1"},
		lastCommit:    map[string]string{"release/v1.3.0-rc.1": "chore: Release v1.3.0-rc.1"},
		rebaseMoved:   true,
	}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	gt.NoError(t, o.stageBranch(context.Background(), "v1.3.0-rc.1"))
	gt.True(t, vcs.rebaseCalled)
	gt.False(t, vcs.resetCalled)
}

func TestStageBranchResetsStaleBranch(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{
		currentBranch: "master",
		local:         []string{"master", "release/v1.3.0-rc.1"},
		lastCommit:    map[string]string{"release/v1.3.0-rc.1": "fix: something else"},
	}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	gt.NoError(t, o.stageBranch(context.Background(), "v1.3.0-rc.1"))
	gt.True(t, vcs.resetCalled)
	gt.False(t, vcs.rebaseCalled)
}

func TestStageBranchCreatesFreshBranch(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{
		currentBranch: "master",
		local:         []string{"master"},
	}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	gt.NoError(t, o.stageBranch(context.Background(), "v1.3.0-rc.1"))
	gt.Value(t, vcs.currentBranch).Equal("release/v1.3.0-rc.1")
	gt.False(t, vcs.rebaseCalled)
	gt.False(t, vcs.resetCalled)
}

func TestStageSignTagSkipsSignedTag(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{
		currentBranch: "master",
		tagExists:     true,
		tagSigned:     true,
		tagValid:      true,
	}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	gt.NoError(t, o.stageSignTag(context.Background(), "v1.2.3"))
	gt.False(t, vcs.signTagCalled)
}

func TestStageSignTagFailsOnInvalidSignature(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{
		currentBranch: "master",
		tagExists:     true,
		tagSigned:     true,
		tagValid:      false,
	}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	err := o.stageSignTag(context.Background(), "v1.2.3")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
}

func TestStageSignTagSignsAndPushes(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master", tagExists: true}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	gt.NoError(t, o.stageSignTag(context.Background(), "v1.2.3"))
	gt.True(t, vcs.signTagCalled)
	gt.Array(t, vcs.pushedTags).Equal([]string{"v1.2.3"})
}

func TestStageAwaitChecksListsAllFailures(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master", findCommitSHA: "abc123"}
	forge := &fakeForge{
		pr: &model.PullRequest{Number: 5, HeadSHA: "abc123", HTMLURL: "https://forge/pr/5", State: "open"},
		checkRuns: map[string]*model.CheckRun{
			"build / windows": {Name: "build / windows", Status: "completed", Conclusion: "failure"},
			"build / linux":   {Name: "build / linux", Status: "completed", Conclusion: "failure"},
			"build / macos":   {Name: "build / macos", Status: "completed", Conclusion: "success"},
		},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	err := o.stageAwaitChecks(context.Background(), "v1.2.3")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
	gt.True(t, strings.Contains(err.Error(), "build / linux, build / windows"))
}

func TestStageAwaitChecksPasses(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master", findCommitSHA: "abc123"}
	forge := &fakeForge{
		pr: &model.PullRequest{Number: 5, HeadSHA: "abc123", State: "open"},
		checkRuns: map[string]*model.CheckRun{
			"build / linux": {Name: "build / linux", Status: "completed", Conclusion: "success"},
		},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	gt.NoError(t, o.stageAwaitChecks(context.Background(), "v1.2.3"))
}

func TestStageAwaitMergedDetectsMerge(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "release/v1.2.3", findCommitSHA: "abc123"}
	forge := &fakeForge{
		pr: &model.PullRequest{Number: 5, State: "closed", Merged: true},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	gt.NoError(t, o.stageAwaitMerged(context.Background(), "v1.2.3"))
	gt.Array(t, vcs.checkoutCalls).Equal([]string{"master"})
	gt.True(t, vcs.pullCalled)
}

func TestStageAwaitMergedFailsOnUnmergedClose(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "release/v1.2.3", findCommitSHA: "abc123"}
	forge := &fakeForge{
		pr: &model.PullRequest{Number: 5, State: "closed", Merged: false},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	err := o.stageAwaitMerged(context.Background(), "v1.2.3")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
}

func TestStageAwaitMasterBuildWaitsForRuns(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master"}
	forge := &fakeForge{
		workflowRuns: [][]*model.WorkflowRun{
			nil,
			{{Name: "ci", Status: "completed", Conclusion: "success", Event: "push"}},
		},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	gt.NoError(t, o.stageAwaitMasterBuild(context.Background()))
}

func TestStageAwaitMasterBuildIgnoresIssueRuns(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master"}
	forge := &fakeForge{
		workflowRuns: [][]*model.WorkflowRun{
			{{Name: "release bot", Status: "in_progress", Event: "issues"}},
			{{Name: "ci", Status: "completed", Conclusion: "success", Event: "push"}},
		},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	gt.NoError(t, o.stageAwaitMasterBuild(context.Background()))
}

func TestStageAwaitMasterBuildFailsOnBuildFailure(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master"}
	forge := &fakeForge{
		workflowRuns: [][]*model.WorkflowRun{
			{{Name: "ci", Status: "completed", Conclusion: "failure", Event: "push", HTMLURL: "https://forge/run/1"}},
		},
	}
	o := newTestOrchestrator(cfg, vcs, forge)

	err := o.stageAwaitMasterBuild(context.Background())
	gt.Error(t, err)
	gt.True(t, strings.Contains(err.Error(), "failed to build"))
}

func TestRunRequiresConfiguredBranch(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "feature/wip", clean: true}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	err := o.Run(context.Background())
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
}

func TestRunRequiresCleanTree(t *testing.T) {
	cfg := testConfig()
	vcs := &fakeVCS{currentBranch: "master", clean: false}
	o := newTestOrchestrator(cfg, vcs, &fakeForge{})

	err := o.Run(context.Background())
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
}

func TestStageInitRequiresIssueInCI(t *testing.T) {
	cfg := testConfig()
	cfg.CI = true
	o := newTestOrchestrator(cfg, &fakeVCS{}, &fakeForge{})

	err := o.stageInit(context.Background())
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, stage.ErrTagInvalidState))
}

func TestStageInitBackfillsProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Issue = 42
	forge := &fakeForge{issue: &model.Issue{
		Number:    42,
		Title:     "Release tracking issue: v1.3.0",
		Body:      "Production release\n\n### Release notes\n\nnotes",
		Assignees: []string{"relman-releaser"},
	}}
	o := newTestOrchestrator(cfg, &fakeVCS{}, forge)

	gt.NoError(t, o.stageInit(context.Background()))
	gt.True(t, cfg.Production)
}

func TestStageInitAbortsWhenNotAssignedToBot(t *testing.T) {
	cfg := testConfig()
	cfg.Issue = 42
	forge := &fakeForge{issue: &model.Issue{
		Number:    42,
		Title:     "Release tracking issue: v1.3.0",
		Assignees: []string{"some-human"},
	}}
	o := newTestOrchestrator(cfg, &fakeVCS{}, forge)

	err := o.stageInit(context.Background())
	abort, ok := stage.AsUserAbort(err)
	gt.True(t, ok)
	gt.True(t, strings.Contains(abort.Instruction, "relman-releaser"))
}

func TestExtractIssueReleaseNotes(t *testing.T) {
	body := strings.Join([]string{
		"Production release",
		"",
		"### Release notes",
		"",
		"All the good stuff.",
		"",
		"### Something else",
		"",
		"ignored",
	}, "\n")

	notes := extractIssueReleaseNotes(body)
	gt.True(t, strings.HasPrefix(notes, "### Release notes"))
	gt.True(t, strings.Contains(notes, "All the good stuff."))
	gt.False(t, strings.Contains(notes, "ignored"))

	gt.Value(t, extractIssueReleaseNotes("no notes here")).Equal("")
}
