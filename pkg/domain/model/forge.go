package model

import "fmt"

// RepoSlug identifies a repository on the forge as owner/name.
type RepoSlug struct {
	Owner string
	Name  string
}

func (s RepoSlug) String() string {
	return fmt.Sprintf("%s/%s", s.Owner, s.Name)
}

// Milestone represents a forge milestone.
type Milestone struct {
	Title   string
	Number  int
	HTMLURL string
}

// Issue represents a forge issue.
type Issue struct {
	Title     string
	Body      string
	User      string
	Assignees []string
	Number    int
	HTMLURL   string
	State     string
	Milestone int // 0 = no milestone
}

// HasAssignee reports whether the issue is assigned to the given login.
func (i *Issue) HasAssignee(login string) bool {
	for _, a := range i.Assignees {
		if a == login {
			return true
		}
	}
	return false
}

// PullRequest represents a forge pull request.
type PullRequest struct {
	Title     string
	Body      string
	Number    int
	NodeID    string
	HTMLURL   string
	State     string
	HeadSHA   string
	Milestone int // 0 = no milestone
	Draft     bool
	Merged    bool
}

// NewPullRequest is the payload for creating a pull request. PRs are
// always created as drafts.
type NewPullRequest struct {
	Title     string
	Body      string
	Head      string // owner:branch
	Base      string
	Milestone int
}

// PullRequestPatch holds the fields to change on an existing pull
// request. Nil fields are left untouched.
type PullRequestPatch struct {
	State     *string
	Title     *string
	Body      *string
	Milestone *int
}

// Empty reports whether the patch would change nothing.
func (p *PullRequestPatch) Empty() bool {
	return p.State == nil && p.Title == nil && p.Body == nil && p.Milestone == nil
}

// CheckRun is a single check result for a commit.
type CheckRun struct {
	ID         int64
	Name       string
	Status     string // queued, in_progress, completed
	Conclusion string // success, failure, neutral, ...
	HTMLURL    string
}

// WorkflowRun is a CI workflow run.
type WorkflowRun struct {
	ID         int64
	Name       string
	Status     string
	Event      string
	Conclusion string
	HTMLURL    string
}

// Release represents a forge release object for a tag.
type Release struct {
	ID         int64
	TagName    string
	Name       string
	Body       string
	Draft      bool
	Prerelease bool
	Published  bool
}

// ReleaseAsset is a file attached to a release.
type ReleaseAsset struct {
	ID          int64
	Name        string
	ContentType string
	DownloadURL string
}

// TreeFile is one file of a signed commit payload.
type TreeFile struct {
	Path    string
	Content []byte
}

// SignedCommit is the payload for creating a bot-signed commit through
// the forge's git data API: blobs for each file, a tree on top of the
// base commit, and a ref update for the target branch.
type SignedCommit struct {
	Message      string
	BaseSHA      string
	TargetBranch string
	Files        []TreeFile
}
