// Where: internal/infra/ci/git.go
// What: Local repository ref lookup via go-git.
// Why: Manual runs outside CI still need a ref to resolve an environment.
package ci

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var errDetachedNoTag = errors.New("HEAD is detached and no tag points at it")

// GoGitReader reads refs with go-git; no git binary is required.
type GoGitReader struct{}

// CurrentRef returns the checked-out branch short name, or for a detached
// HEAD the first tag (alphabetically) pointing at the HEAD commit.
func (GoGitReader) CurrentRef(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	tags, err := tagsAt(repo, head.Hash())
	if err != nil {
		return "", err
	}
	if len(tags) == 0 {
		return "", errDetachedNoTag
	}
	return tags[0], nil
}

func tagsAt(repo *git.Repository, hash plumbing.Hash) ([]string, error) {
	refs, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	var out []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tag, tagErr := repo.TagObject(target); tagErr == nil {
			target = tag.Target
		}
		if target == hash {
			out = append(out, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
