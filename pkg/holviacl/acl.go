// Per-repository access control, loaded from a TOML table of
// repo => { user => level }. Levels are totally ordered; two server-global
// flags (private repos, append-only) drive the fallback when a repository
// has no explicit section.
package holviacl

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/function61/gokit/atomicfilewrite"
	"github.com/function61/holvi/pkg/holvitypes"
)

type AccessLevel int

const (
	AccessNothing AccessLevel = iota
	AccessRead
	AccessAppend
	AccessModify
)

var accessLevelNames = map[AccessLevel]string{
	AccessNothing: "Nothing",
	AccessRead:    "Read",
	AccessAppend:  "Append",
	AccessModify:  "Modify",
}

func ParseAccessLevel(serialized string) (AccessLevel, error) {
	for level, name := range accessLevelNames {
		if name == serialized {
			return level, nil
		}
	}

	return AccessNothing, fmt.Errorf("unknown access level: %q", serialized)
}

func (a AccessLevel) String() string {
	return accessLevelNames[a]
}

// DefaultRepoName is the canonical section name whose entries also answer for
// the unnamed (empty) repository. The empty-name mirror exists only in memory.
const DefaultRepoName = "default"

type Table struct {
	path         string
	repos        map[string]map[string]AccessLevel
	privateRepos bool
	appendOnly   bool
}

func Load(path string, privateRepos bool, appendOnly bool) (*Table, error) {
	table := Empty(path, privateRepos, appendOnly)

	raw := map[string]map[string]string{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("acl %s: %w", path, err)
	}

	for repo, users := range raw {
		perms := map[string]AccessLevel{}
		for user, levelName := range users {
			level, err := ParseAccessLevel(levelName)
			if err != nil {
				return nil, fmt.Errorf("acl %s: [%s] %s: %w", path, repo, user, err)
			}

			perms[user] = level
		}

		table.repos[repo] = perms
	}

	// the default section also answers lookups for the unnamed repository
	if defaults, found := table.repos[DefaultRepoName]; found {
		table.repos[""] = defaults
	}

	return table, nil
}

// Empty makes a table with no explicit sections; every decision goes through
// the fallback flags.
func Empty(path string, privateRepos bool, appendOnly bool) *Table {
	return &Table{
		path:         path,
		repos:        map[string]map[string]AccessLevel{},
		privateRepos: privateRepos,
		appendOnly:   appendOnly,
	}
}

// Allowed decides "may user perform access on type in repo". Lock writes are
// deliberately downgraded to reads: lock files must be writable by anyone who
// may read the repository, or read-only clients could never lock it.
func (t *Table) Allowed(user string, repo string, typ holvitypes.ObjectType, access AccessLevel) bool {
	if typ == holvitypes.ObjectTypeLocks {
		access = AccessRead
	}

	if perms, found := t.repos[repo]; found {
		// absent user reads as Nothing
		return perms[user] >= access
	}

	// no section for this repo: each user owns the repo named after
	// themselves, subject to the global flags
	if t.privateRepos && user != repo {
		return false
	}

	if t.appendOnly && access == AccessModify {
		return false
	}

	return true
}

func (t *Table) Grant(repo string, user string, level AccessLevel) {
	if repo == "" {
		repo = DefaultRepoName
	}

	if _, found := t.repos[repo]; !found {
		t.repos[repo] = map[string]AccessLevel{}
	}

	t.repos[repo][user] = level

	if repo == DefaultRepoName {
		t.repos[""] = t.repos[DefaultRepoName]
	}
}

// Save rewrites the TOML file. The in-memory empty-name mirror of "default"
// is an internal lookup aid and must never be serialized.
func (t *Table) Save() error {
	serializable := map[string]map[string]string{}
	for repo, users := range t.repos {
		if repo == "" {
			continue
		}

		perms := map[string]string{}
		for user, level := range users {
			perms[user] = level.String()
		}

		serializable[repo] = perms
	}

	return atomicfilewrite.Write(t.path, func(writer io.Writer) error {
		return toml.NewEncoder(writer).Encode(serializable)
	})
}

// LoadIfExists falls back to an empty (flags-only) table when the file is absent.
func LoadIfExists(path string, privateRepos bool, appendOnly bool) (*Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Empty(path, privateRepos, appendOnly), nil
	}

	return Load(path, privateRepos, appendOnly)
}
