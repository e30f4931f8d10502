package holviacl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/function61/gokit/assert"
	"github.com/function61/holvi/pkg/holvitypes"
)

func TestAccessLevelOrdering(t *testing.T) {
	assert.Assert(t, AccessNothing < AccessRead)
	assert.Assert(t, AccessRead < AccessAppend)
	assert.Assert(t, AccessAppend < AccessModify)
}

func TestParseAccessLevel(t *testing.T) {
	level, err := ParseAccessLevel("Append")
	assert.Ok(t, err)
	assert.Assert(t, level == AccessAppend)

	_, err = ParseAccessLevel("append")
	assert.Assert(t, err != nil)

	_, err = ParseAccessLevel("Sudo")
	assert.Assert(t, err != nil)
}

func writeTempAcl(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "acl.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	return path
}

const exampleAcl = `
[alice]
alice = "Modify"
bob = "Read"
carol = "Nothing"

[default]
dave = "Append"
`

func TestExplicitSection(t *testing.T) {
	table, err := Load(writeTempAcl(t, exampleAcl), false, false)
	assert.Ok(t, err)

	snapshots := holvitypes.ObjectTypeSnapshots

	assert.Assert(t, table.Allowed("alice", "alice", snapshots, AccessModify))
	assert.Assert(t, table.Allowed("bob", "alice", snapshots, AccessRead))
	assert.Assert(t, !table.Allowed("bob", "alice", snapshots, AccessAppend))
	assert.Assert(t, !table.Allowed("carol", "alice", snapshots, AccessRead))

	// user absent from the section gets nothing
	assert.Assert(t, !table.Allowed("mallory", "alice", snapshots, AccessRead))
}

func TestLocksOverride(t *testing.T) {
	table, err := Load(writeTempAcl(t, exampleAcl), false, false)
	assert.Ok(t, err)

	// bob has only Read on alice, but lock writes are treated as reads
	for _, access := range []AccessLevel{AccessRead, AccessAppend, AccessModify} {
		assert.Assert(t, table.Allowed("bob", "alice", holvitypes.ObjectTypeLocks, access))
		assert.Assert(t, !table.Allowed("carol", "alice", holvitypes.ObjectTypeLocks, access))
	}
}

func TestDefaultSectionMirrorsEmptyRepo(t *testing.T) {
	table, err := Load(writeTempAcl(t, exampleAcl), true, false)
	assert.Ok(t, err)

	snapshots := holvitypes.ObjectTypeSnapshots

	assert.Assert(t, table.Allowed("dave", "", snapshots, AccessAppend))
	assert.Assert(t, table.Allowed("dave", "default", snapshots, AccessAppend))
	assert.Assert(t, !table.Allowed("dave", "", snapshots, AccessModify))
	assert.Assert(t, !table.Allowed("bob", "", snapshots, AccessRead))
}

func TestFallback(t *testing.T) {
	tcs := []struct {
		privateRepos bool
		appendOnly   bool
		user         string
		repo         string
		access       AccessLevel
		expected     bool
	}{
		// open server: anyone may do anything in unlisted repos
		{false, false, "bob", "alice", AccessModify, true},
		{false, false, "", "alice", AccessRead, true},
		// private repos: only the repo's namesake
		{true, false, "alice", "alice", AccessModify, true},
		{true, false, "bob", "alice", AccessRead, false},
		// append-only blocks Modify via the fallback path
		{false, true, "alice", "alice", AccessAppend, true},
		{false, true, "alice", "alice", AccessModify, false},
		{true, true, "alice", "alice", AccessModify, false},
		{true, true, "bob", "alice", AccessAppend, false},
	}

	for _, tc := range tcs {
		tc := tc // pin
		t.Run(tc.user+"/"+tc.repo+"/"+tc.access.String(), func(t *testing.T) {
			table := Empty("unused", tc.privateRepos, tc.appendOnly)
			assert.Assert(t, table.Allowed(tc.user, tc.repo, holvitypes.ObjectTypeSnapshots, tc.access) == tc.expected)
		})
	}
}

func TestAppendOnlyDoesNotAffectExplicitGrants(t *testing.T) {
	table, err := Load(writeTempAcl(t, exampleAcl), true, true)
	assert.Ok(t, err)

	// ACL-granted modify survives the global append-only flag
	assert.Assert(t, table.Allowed("alice", "alice", holvitypes.ObjectTypeSnapshots, AccessModify))
}

func TestSaveNeverSerializesMirror(t *testing.T) {
	path := writeTempAcl(t, exampleAcl)

	table, err := Load(path, false, false)
	assert.Ok(t, err)

	table.Grant("", "erin", AccessRead)
	assert.Ok(t, table.Save())

	raw, err := os.ReadFile(path)
	assert.Ok(t, err)

	assert.Assert(t, !strings.Contains(string(raw), `[""]`))
	assert.Assert(t, strings.Contains(string(raw), "[default]"))

	reloaded, err := Load(path, false, false)
	assert.Ok(t, err)

	assert.Assert(t, reloaded.Allowed("erin", "", holvitypes.ObjectTypeSnapshots, AccessRead))
	assert.Assert(t, reloaded.Allowed("alice", "alice", holvitypes.ObjectTypeSnapshots, AccessModify))
}

func TestLoadIfExists(t *testing.T) {
	table, err := LoadIfExists(filepath.Join(t.TempDir(), "nonexistent.toml"), true, false)
	assert.Ok(t, err)

	assert.Assert(t, table.Allowed("alice", "alice", holvitypes.ObjectTypeSnapshots, AccessModify))
	assert.Assert(t, !table.Allowed("bob", "alice", holvitypes.ObjectTypeSnapshots, AccessRead))
}

func TestLoadRejectsUnknownLevel(t *testing.T) {
	_, err := Load(writeTempAcl(t, "[alice]\nalice = \"Everything\"\n"), false, false)
	assert.Assert(t, err != nil)
}
