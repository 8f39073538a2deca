// Package github implements the Forge interface on top of the GitHub
// REST and GraphQL APIs.
package github

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v72/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/relman-dev/relman/pkg/domain/interfaces"
	"github.com/relman-dev/relman/pkg/domain/model"
	"github.com/relman-dev/relman/pkg/utils/markdown"
)

var milestoneTitleRegex = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)

type client struct {
	gh    *github.Client
	slug  model.RepoSlug
	cache *cache
}

// Option configures the GitHub client.
type Option func(*clientConfig) error

type clientConfig struct {
	token          string
	appID          int64
	installationID int64
	privateKey     []byte
}

// WithToken authenticates with a personal access or Actions token.
func WithToken(token string) Option {
	return func(c *clientConfig) error {
		c.token = token
		return nil
	}
}

// WithAppAuth authenticates as a GitHub App installation.
func WithAppAuth(appID, installationID int64, privateKey []byte) Option {
	return func(c *clientConfig) error {
		c.appID = appID
		c.installationID = installationID
		c.privateKey = privateKey
		return nil
	}
}

// NewClient creates a Forge for the given repository.
func NewClient(slug model.RepoSlug, options ...Option) (interfaces.Forge, error) {
	var cfg clientConfig
	for _, opt := range options {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	var gh *github.Client
	switch {
	case cfg.appID != 0:
		itr, err := ghinstallation.New(http.DefaultTransport, cfg.appID, cfg.installationID, cfg.privateKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create GitHub App transport")
		}
		gh = github.NewClient(&http.Client{Transport: itr})
	case cfg.token != "":
		gh = github.NewClient(nil).WithAuthToken(cfg.token)
	default:
		gh = github.NewClient(nil)
	}

	return &client{
		gh:    gh,
		slug:  slug,
		cache: newCache(),
	}, nil
}

func (c *client) Repository() model.RepoSlug {
	return c.slug
}

func (c *client) InvalidateCache() {
	c.cache.invalidate()
}

func (c *client) Actor(ctx context.Context) (string, error) {
	if actor := os.Getenv("GITHUB_ACTOR"); actor != "" {
		return actor, nil
	}
	return cachedCall(c.cache, "actor", func() (string, error) {
		user, _, err := c.gh.Users.Get(ctx, "")
		if err != nil {
			return "", goerr.Wrap(err, "failed to get authenticated user")
		}
		return user.GetLogin(), nil
	})
}

func convertIssue(issue *github.Issue) *model.Issue {
	assignees := make([]string, 0, len(issue.Assignees))
	for _, a := range issue.Assignees {
		assignees = append(assignees, a.GetLogin())
	}
	return &model.Issue{
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		User:      issue.GetUser().GetLogin(),
		Assignees: assignees,
		Number:    issue.GetNumber(),
		HTMLURL:   issue.GetHTMLURL(),
		State:     issue.GetState(),
		Milestone: issue.GetMilestone().GetNumber(),
	}
}

func (c *client) GetIssue(ctx context.Context, number int) (*model.Issue, error) {
	return cachedCall(c.cache, fmt.Sprintf("issue/%d", number), func() (*model.Issue, error) {
		issue, _, err := c.gh.Issues.Get(ctx, c.slug.Owner, c.slug.Name, number)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get issue", goerr.V("number", number))
		}
		return convertIssue(issue), nil
	})
}

func (c *client) RenameIssue(ctx context.Context, number int, title string) error {
	_, _, err := c.gh.Issues.Edit(ctx, c.slug.Owner, c.slug.Name, number, &github.IssueRequest{
		Title: github.Ptr(title),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to rename issue", goerr.V("number", number))
	}
	c.cache.invalidate()
	return nil
}

func (c *client) CloseIssue(ctx context.Context, number int) error {
	_, _, err := c.gh.Issues.Edit(ctx, c.slug.Owner, c.slug.Name, number, &github.IssueRequest{
		State: github.Ptr("closed"),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to close issue", goerr.V("number", number))
	}
	c.cache.invalidate()
	return nil
}

func (c *client) AssignIssue(ctx context.Context, number int, assignees []string) error {
	_, _, err := c.gh.Issues.AddAssignees(ctx, c.slug.Owner, c.slug.Name, number, assignees)
	if err != nil {
		return goerr.Wrap(err, "failed to assign issue", goerr.V("number", number))
	}
	c.cache.invalidate()
	return nil
}

func (c *client) UnassignIssue(ctx context.Context, number int, assignees []string) error {
	_, _, err := c.gh.Issues.RemoveAssignees(ctx, c.slug.Owner, c.slug.Name, number, assignees)
	if err != nil {
		return goerr.Wrap(err, "failed to unassign issue", goerr.V("number", number))
	}
	c.cache.invalidate()
	return nil
}

func (c *client) SetIssueMilestone(ctx context.Context, number, milestone int) error {
	_, _, err := c.gh.Issues.Edit(ctx, c.slug.Owner, c.slug.Name, number, &github.IssueRequest{
		Milestone: github.Ptr(milestone),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to set issue milestone",
			goerr.V("number", number), goerr.V("milestone", milestone))
	}
	c.cache.invalidate()
	return nil
}

// PatchIssueSection edits only the named markdown section of the issue
// body, leaving human-authored content elsewhere untouched. Always reads
// the current body fresh.
func (c *client) PatchIssueSection(ctx context.Context, number int, header, content string) error {
	issue, _, err := c.gh.Issues.Get(ctx, c.slug.Owner, c.slug.Name, number)
	if err != nil {
		return goerr.Wrap(err, "failed to get issue", goerr.V("number", number))
	}
	body := markdown.PatchSection(issue.GetBody(), header, content)
	if body == issue.GetBody() {
		return nil
	}
	_, _, err = c.gh.Issues.Edit(ctx, c.slug.Owner, c.slug.Name, number, &github.IssueRequest{
		Body: github.Ptr(body),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to patch issue body", goerr.V("number", number))
	}
	c.cache.invalidate()
	return nil
}

func (c *client) OpenMilestoneIssues(ctx context.Context, milestone int) ([]*model.Issue, error) {
	issues, _, err := c.gh.Issues.ListByRepo(ctx, c.slug.Owner, c.slug.Name, &github.IssueListByRepoOptions{
		Milestone:   strconv.Itoa(milestone),
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list milestone issues", goerr.V("milestone", milestone))
	}
	result := make([]*model.Issue, 0, len(issues))
	for _, issue := range issues {
		result = append(result, convertIssue(issue))
	}
	return result, nil
}

func convertMilestone(m *github.Milestone) *model.Milestone {
	return &model.Milestone{
		Title:   m.GetTitle(),
		Number:  m.GetNumber(),
		HTMLURL: m.GetHTMLURL(),
	}
}

func (c *client) milestones(ctx context.Context) ([]*model.Milestone, error) {
	return cachedCall(c.cache, "milestones", func() ([]*model.Milestone, error) {
		milestones, _, err := c.gh.Issues.ListMilestones(ctx, c.slug.Owner, c.slug.Name, &github.MilestoneListOptions{
			State:       "open",
			ListOptions: github.ListOptions{PerPage: 100},
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list milestones")
		}
		result := make([]*model.Milestone, 0, len(milestones))
		for _, m := range milestones {
			result = append(result, convertMilestone(m))
		}
		return result, nil
	})
}

func (c *client) Milestone(ctx context.Context, title string) (*model.Milestone, error) {
	milestones, err := c.milestones(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range milestones {
		if m.Title == title {
			return m, nil
		}
	}
	return nil, goerr.New("milestone not found", goerr.V("title", title))
}

// NextMilestone returns the smallest open milestone whose title is a
// full vMAJOR.MINOR.PATCH version. Titles like v1.18.x are ignored.
func (c *client) NextMilestone(ctx context.Context) (*model.Milestone, error) {
	milestones, err := c.milestones(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []*model.Milestone
	for _, m := range milestones {
		if milestoneTitleRegex.MatchString(m.Title) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, goerr.New("no open version milestone found")
	}
	sort.Slice(candidates, func(i, j int) bool {
		return milestoneLess(candidates[i].Title, candidates[j].Title)
	})
	return candidates[0], nil
}

func milestoneLess(a, b string) bool {
	pa := milestoneTitleRegex.FindStringSubmatch(a)
	pb := milestoneTitleRegex.FindStringSubmatch(b)
	for i := 1; i <= 3; i++ {
		na, _ := strconv.Atoi(pa[i])
		nb, _ := strconv.Atoi(pb[i])
		if na != nb {
			return na < nb
		}
	}
	return false
}

func (c *client) CloseMilestone(ctx context.Context, number int) error {
	_, _, err := c.gh.Issues.EditMilestone(ctx, c.slug.Owner, c.slug.Name, number, &github.Milestone{
		State: github.Ptr("closed"),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to close milestone", goerr.V("number", number))
	}
	c.cache.invalidate()
	return nil
}

func convertPullRequest(pr *github.PullRequest) *model.PullRequest {
	return &model.PullRequest{
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Number:    pr.GetNumber(),
		NodeID:    pr.GetNodeID(),
		HTMLURL:   pr.GetHTMLURL(),
		State:     pr.GetState(),
		HeadSHA:   pr.GetHead().GetSHA(),
		Milestone: pr.GetMilestone().GetNumber(),
		Draft:     pr.GetDraft(),
		Merged:    pr.MergedAt != nil,
	}
}

func (c *client) CreatePullRequest(ctx context.Context, pr *model.NewPullRequest) (*model.PullRequest, error) {
	created, _, err := c.gh.PullRequests.Create(ctx, c.slug.Owner, c.slug.Name, &github.NewPullRequest{
		Title: github.Ptr(pr.Title),
		Body:  github.Ptr(pr.Body),
		Head:  github.Ptr(pr.Head),
		Base:  github.Ptr(pr.Base),
		Draft: github.Ptr(true),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create pull request", goerr.V("title", pr.Title))
	}
	if pr.Milestone != 0 {
		// The milestone lives on the issue side of the PR.
		if err := c.SetIssueMilestone(ctx, created.GetNumber(), pr.Milestone); err != nil {
			return nil, err
		}
	}
	c.cache.invalidate()
	return convertPullRequest(created), nil
}

// FindPullRequest is never cached: the head SHA moves with every push.
func (c *client) FindPullRequest(ctx context.Context, headSHA, base string) (*model.PullRequest, error) {
	prs, _, err := c.gh.PullRequests.List(ctx, c.slug.Owner, c.slug.Name, &github.PullRequestListOptions{
		State:       "all",
		Base:        base,
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pull requests", goerr.V("base", base))
	}
	for _, pr := range prs {
		if pr.GetHead().GetSHA() == headSHA {
			return convertPullRequest(pr), nil
		}
	}
	return nil, nil
}

// FindPullRequestForBranch is never cached: the branch may be updated.
func (c *client) FindPullRequestForBranch(ctx context.Context, head, base, state string) (*model.PullRequest, error) {
	prs, _, err := c.gh.PullRequests.List(ctx, c.slug.Owner, c.slug.Name, &github.PullRequestListOptions{
		State:       state,
		Head:        head,
		Base:        base,
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pull requests",
			goerr.V("head", head), goerr.V("base", base))
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return convertPullRequest(prs[0]), nil
}

func (c *client) UpdatePullRequest(ctx context.Context, number int, patch *model.PullRequestPatch) error {
	if patch.State != nil || patch.Title != nil || patch.Body != nil {
		req := &github.PullRequest{
			State: patch.State,
			Title: patch.Title,
			Body:  patch.Body,
		}
		if _, _, err := c.gh.PullRequests.Edit(ctx, c.slug.Owner, c.slug.Name, number, req); err != nil {
			return goerr.Wrap(err, "failed to update pull request", goerr.V("number", number))
		}
	}
	if patch.Milestone != nil {
		if err := c.SetIssueMilestone(ctx, number, *patch.Milestone); err != nil {
			return err
		}
	}
	c.cache.invalidate()
	return nil
}

// MarkReadyForReview flips a draft PR to ready. The REST API has no
// endpoint for this; it is a GraphQL-only mutation.
func (c *client) MarkReadyForReview(ctx context.Context, nodeID string) error {
	query := fmt.Sprintf(`mutation MarkPrReady {
		markPullRequestReadyForReview(input: {pullRequestId: %q}) {
			pullRequest { id }
		}
	}`, nodeID)
	return c.graphql(ctx, query)
}

func (c *client) graphql(ctx context.Context, query string) error {
	payload := map[string]string{"query": query}
	req, err := c.gh.NewRequest("POST", "graphql", payload)
	if err != nil {
		return goerr.Wrap(err, "failed to build graphql request")
	}
	var out struct {
		Data   map[string]any `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if _, err := c.gh.Do(ctx, req, &out); err != nil {
		return goerr.Wrap(err, "graphql request failed")
	}
	if len(out.Errors) > 0 {
		messages := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			messages = append(messages, e.Message)
		}
		return goerr.New("graphql request failed", goerr.V("errors", strings.Join(messages, "; ")))
	}
	return nil
}

// CheckRuns is never cached: results change as CI progresses.
func (c *client) CheckRuns(ctx context.Context, sha string) (map[string]*model.CheckRun, error) {
	suites, _, err := c.gh.Checks.ListCheckSuitesForRef(ctx, c.slug.Owner, c.slug.Name, sha, &github.ListCheckSuiteOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list check suites", goerr.V("sha", sha))
	}

	runs := make(map[string]*model.CheckRun)
	for _, suite := range suites.CheckSuites {
		results, _, err := c.gh.Checks.ListCheckRunsCheckSuite(ctx, c.slug.Owner, c.slug.Name, suite.GetID(), &github.ListCheckRunsOptions{
			ListOptions: github.ListOptions{PerPage: 100},
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list check runs", goerr.V("suite", suite.GetID()))
		}
		for _, run := range results.CheckRuns {
			runs[run.GetName()] = &model.CheckRun{
				ID:         run.GetID(),
				Name:       run.GetName(),
				Status:     run.GetStatus(),
				Conclusion: run.GetConclusion(),
				HTMLURL:    run.GetHTMLURL(),
			}
		}
	}
	return runs, nil
}

// WorkflowRuns is never cached: results change as CI progresses.
func (c *client) WorkflowRuns(ctx context.Context, branch, sha string) ([]*model.WorkflowRun, error) {
	runs, _, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, c.slug.Owner, c.slug.Name, &github.ListWorkflowRunsOptions{
		Branch:      branch,
		HeadSHA:     sha,
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list workflow runs",
			goerr.V("branch", branch), goerr.V("sha", sha))
	}
	result := make([]*model.WorkflowRun, 0, len(runs.WorkflowRuns))
	for _, run := range runs.WorkflowRuns {
		result = append(result, &model.WorkflowRun{
			ID:         run.GetID(),
			Name:       run.GetName(),
			Status:     run.GetStatus(),
			Event:      run.GetEvent(),
			Conclusion: run.GetConclusion(),
			HTMLURL:    run.GetHTMLURL(),
		})
	}
	return result, nil
}
