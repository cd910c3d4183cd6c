package gitlab

import (
	"testing"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/policyforge/engine/internal/hosting"
)

func TestCountDiffLines(t *testing.T) {
	diff := "--- a/x.go\n+++ b/x.go\n@@ -1,2 +1,3 @@\n line1\n+line2\n-line3\n"
	additions, deletions := countDiffLines(diff)
	if additions != 1 || deletions != 1 {
		t.Errorf("countDiffLines() = (%d, %d), want (1, 1)", additions, deletions)
	}
}

func TestMapStatusToGitLabState(t *testing.T) {
	cases := []struct {
		status     hosting.CheckRunStatus
		conclusion hosting.CheckRunConclusion
		want       gogitlab.BuildStateValue
	}{
		{hosting.CheckRunInProgress, "", gogitlab.Running},
		{hosting.CheckRunCompleted, hosting.CheckRunSuccess, gogitlab.Success},
		{hosting.CheckRunCompleted, hosting.CheckRunFailure, gogitlab.Failed},
	}
	for _, tc := range cases {
		if got := mapStatusToGitLabState(tc.status, tc.conclusion); got != tc.want {
			t.Errorf("mapStatusToGitLabState(%v, %v) = %v, want %v", tc.status, tc.conclusion, got, tc.want)
		}
	}
}

func TestNewProviderRequiresOwnerRepo(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "test-token")
	_, err := newProvider(hosting.Config{})
	if err == nil {
		t.Fatal("expected error when owner/repo are not set")
	}
}
