package htpasswd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/function61/gokit/assert"
)

// hash of "myPassword", generated with `htpasswd -nbm test myPassword`
const knownGoodLine = "test:$apr1$r31.....$HqJZimcKQFAMYayBlzkrA/"

func TestVerifyKnownGoodHash(t *testing.T) {
	store := Empty("unused")
	assert.Ok(t, store.parse(strings.NewReader(knownGoodLine)))

	assert.Assert(t, store.Verify("test", "myPassword"))
	assert.Assert(t, !store.Verify("test", "myPassword2"))
	assert.Assert(t, !store.Verify("nosuchuser", "myPassword"))
	assert.Assert(t, !store.Verify("test", ""))
}

func TestParse(t *testing.T) {
	store := Empty("unused")
	assert.Ok(t, store.parse(strings.NewReader(`
alice:$apr1$aaaaaaaa$AAAAAAAAAAAAAAAAAAAAA/
bob:$apr1$bbbbbbbb$BBBBBBBBBBBBBBBBBBBBB/:ignored-realm-field

alice:$apr1$cccccccc$CCCCCCCCCCCCCCCCCCCCC/
`)))

	assert.EqualString(t, strings.Join(store.Usernames(), ","), "alice,bob")

	// last duplicate wins
	assert.EqualString(t, store.users["alice"], "$apr1$cccccccc$CCCCCCCCCCCCCCCCCCCCC/")
}

func TestParseMalformed(t *testing.T) {
	assert.Assert(t, Empty("unused").parse(strings.NewReader("no-colon-here")) != nil)
	assert.Assert(t, Empty("unused").parse(strings.NewReader(":emptyusername")) != nil)
}

func TestCreateUpdateDeleteSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "htpasswd")

	store := Empty(path)

	assert.Ok(t, store.Create("alice", "hunter2"))
	assert.Assert(t, store.Create("alice", "again") == ErrUserExists)

	assert.Assert(t, store.Verify("alice", "hunter2"))

	assert.Ok(t, store.Update("alice", "correcthorse"))
	assert.Assert(t, !store.Verify("alice", "hunter2"))
	assert.Assert(t, store.Verify("alice", "correcthorse"))

	assert.Ok(t, store.Create("bob", "b0bpass"))
	assert.Ok(t, store.Save())

	// cleartext must not end up on disk
	raw, err := os.ReadFile(path)
	assert.Ok(t, err)
	assert.Assert(t, !strings.Contains(string(raw), "correcthorse"))
	assert.Assert(t, !strings.Contains(string(raw), "b0bpass"))
	assert.Assert(t, strings.Contains(string(raw), "alice:$apr1$"))

	reloaded, err := Load(path)
	assert.Ok(t, err)
	assert.Assert(t, reloaded.Verify("alice", "correcthorse"))
	assert.Assert(t, reloaded.Verify("bob", "b0bpass"))

	reloaded.Delete("bob")
	assert.Ok(t, reloaded.Save())

	reloaded, err = Load(path)
	assert.Ok(t, err)
	assert.Assert(t, !reloaded.Verify("bob", "b0bpass"))
	assert.EqualString(t, strings.Join(reloaded.Usernames(), ","), "alice")
}
