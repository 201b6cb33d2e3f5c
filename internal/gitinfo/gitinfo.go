// internal/gitinfo/gitinfo.go
package gitinfo

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
)

// Info describes the git state of a project at session start
type Info struct {
	Branch  string `json:"branch"`
	IsClean bool   `json:"is_clean"`
}

// Inspect reads branch and worktree cleanliness for the repository at path.
// A path that is not a git repository returns (nil, nil).
func Inspect(path string) (*Info, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("open git repository: %w", err)
	}

	info := &Info{}

	head, err := repo.Head()
	if err == nil && head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	info.IsClean = status.IsClean()

	return info, nil
}
