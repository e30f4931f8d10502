package holvistore

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/function61/gokit/assert"
	"github.com/function61/holvi/pkg/holvitypes"
)

const exampleDigest = "3f918c1f6b3f42e3b7cf8c30b7e6bfee027d6e34de010f6d7b3fd37142860295"

func TestFilename(t *testing.T) {
	store := New("/data", nil)

	tcs := []struct {
		typ      holvitypes.ObjectType
		name     string
		expected string
	}{
		{holvitypes.ObjectTypeConfig, "", "/data/alice/config"},
		{holvitypes.ObjectTypeData, exampleDigest, "/data/alice/data/3f/" + exampleDigest},
		{holvitypes.ObjectTypeSnapshots, exampleDigest, "/data/alice/snapshots/" + exampleDigest},
		{holvitypes.ObjectTypeLocks, "worker.lock", "/data/alice/locks/worker.lock"},
		{holvitypes.ObjectTypeKeys, "", "/data/alice/keys"},
	}

	for _, tc := range tcs {
		tc := tc // pin
		t.Run(string(tc.typ)+"/"+tc.name, func(t *testing.T) {
			assert.EqualString(t, store.Filename("alice", tc.typ, tc.name), tc.expected)
		})
	}

	// default repository lives directly under the root
	assert.EqualString(t,
		store.Filename("", holvitypes.ObjectTypeConfig, ""),
		"/data/config")
	assert.EqualString(t,
		store.Filename("", holvitypes.ObjectTypeData, exampleDigest),
		"/data/data/3f/"+exampleDigest)
}

func TestCreateRepository(t *testing.T) {
	store := New(t.TempDir(), nil)

	assert.Ok(t, store.CreateRepository("alice"))

	for _, dir := range []string{"data", "index", "keys", "locks", "snapshots", "data/00", "data/3f", "data/ff"} {
		stat, err := os.Stat(filepath.Join(storeRoot(store), "alice", dir))
		assert.Ok(t, err)
		assert.Assert(t, stat.IsDir())
	}

	exists, err := store.RepositoryExists("alice")
	assert.Ok(t, err)
	assert.Assert(t, exists)

	exists, err = store.RepositoryExists("bob")
	assert.Ok(t, err)
	assert.Assert(t, !exists)
}

func TestRemoveRepository(t *testing.T) {
	store := New(t.TempDir(), nil)

	assert.Ok(t, store.CreateRepository("alice"))
	assert.Ok(t, writeObject(store, "alice", holvitypes.ObjectTypeSnapshots, exampleDigest, "snap"))

	assert.Ok(t, store.RemoveRepository("alice"))

	exists, err := store.RepositoryExists("alice")
	assert.Ok(t, err)
	assert.Assert(t, !exists)

	// removing twice is a not-found
	err = store.RemoveRepository("alice")
	assert.Assert(t, holvitypes.KindOf(err) == holvitypes.ErrObjectNotFound)

	// whole-root removal is refused
	err = store.RemoveRepository("")
	assert.Assert(t, holvitypes.KindOf(err) == holvitypes.ErrPathNotAllowed)
}

func TestUploadRoundTrip(t *testing.T) {
	store := New(t.TempDir(), nil)
	assert.Ok(t, store.CreateRepository("alice"))

	assert.Ok(t, writeObject(store, "alice", holvitypes.ObjectTypeData, exampleDigest, "hello"))

	file, err := store.OpenFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Ok(t, err)
	defer file.Close()

	content, err := io.ReadAll(file)
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "hello")

	stat, err := store.StatFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Ok(t, err)
	assert.Assert(t, stat.Size() == 5)
}

func TestExclusiveCreate(t *testing.T) {
	store := New(t.TempDir(), nil)
	assert.Ok(t, store.CreateRepository("alice"))

	assert.Ok(t, writeObject(store, "alice", holvitypes.ObjectTypeData, exampleDigest, "hello"))

	// second create of the same name must fail without touching the bytes
	_, err := store.CreateFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Assert(t, holvitypes.KindOf(err) == holvitypes.ErrWritingToFileFailed)

	file, err := store.OpenFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Ok(t, err)
	defer file.Close()

	content, err := io.ReadAll(file)
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "hello")
}

func TestAbortedUploadLeavesNoPartial(t *testing.T) {
	store := New(t.TempDir(), nil)
	assert.Ok(t, store.CreateRepository("alice"))

	sink, err := store.CreateFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Ok(t, err)

	_, err = sink.Write([]byte("partial bytes"))
	assert.Ok(t, err)

	// dropped without Commit => unlinked
	assert.Ok(t, sink.Close())

	_, err = store.StatFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Assert(t, os.IsNotExist(err))

	// Close after Commit is a no-op
	sink, err = store.CreateFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Ok(t, err)
	_, err = sink.Write([]byte("hello"))
	assert.Ok(t, err)
	assert.Ok(t, sink.Commit())
	assert.Assert(t, sink.BytesWritten() == 5)
	assert.Ok(t, sink.Close())

	stat, err := store.StatFile("alice", holvitypes.ObjectTypeData, exampleDigest)
	assert.Ok(t, err)
	assert.Assert(t, stat.Size() == 5)
}

func TestListObjects(t *testing.T) {
	store := New(t.TempDir(), nil)
	assert.Ok(t, store.CreateRepository("alice"))

	// missing directory (repo never created) lists empty, not error
	listing, err := store.ListObjects("bob", holvitypes.ObjectTypeSnapshots)
	assert.Ok(t, err)
	assert.Assert(t, len(listing) == 0)

	otherDigest := "00" + exampleDigest[2:]

	assert.Ok(t, writeObject(store, "alice", holvitypes.ObjectTypeData, exampleDigest, "hello"))
	assert.Ok(t, writeObject(store, "alice", holvitypes.ObjectTypeData, otherDigest, "yo"))
	assert.Ok(t, writeObject(store, "alice", holvitypes.ObjectTypeSnapshots, exampleDigest, "snap"))

	// data listing ranges over the shard level
	listing, err = store.ListObjects("alice", holvitypes.ObjectTypeData)
	assert.Ok(t, err)
	assert.Assert(t, len(listing) == 2)

	names := []string{listing[0].Name, listing[1].Name}
	sort.Strings(names)
	assert.EqualString(t, names[0], otherDigest)
	assert.EqualString(t, names[1], exampleDigest)

	for _, obj := range listing {
		if obj.Name == exampleDigest {
			assert.Assert(t, obj.Size == 5)
		} else {
			assert.Assert(t, obj.Size == 2)
		}
	}

	// non-data listing is flat and non-recursive
	listing, err = store.ListObjects("alice", holvitypes.ObjectTypeSnapshots)
	assert.Ok(t, err)
	assert.Assert(t, len(listing) == 1)
	assert.EqualString(t, listing[0].Name, exampleDigest)
	assert.Assert(t, listing[0].Size == 4)

	// subdirectories under a type dir are not listed
	assert.Ok(t, os.MkdirAll(store.Filename("alice", holvitypes.ObjectTypeSnapshots, "")+"/subdir", 0700))
	listing, err = store.ListObjects("alice", holvitypes.ObjectTypeSnapshots)
	assert.Ok(t, err)
	assert.Assert(t, len(listing) == 1)
}

// the HTTP layer validates segments already, but a Store driven directly
// must reject escapes on its own
func TestPathSegmentsRecheckedAtStore(t *testing.T) {
	store := New(t.TempDir(), nil)

	assert.Ok(t, store.CreateRepository("alice"))

	_, err := store.OpenFile("alice", holvitypes.ObjectTypeLocks, "../config")
	assert.Assert(t, holvitypes.KindOf(err) == holvitypes.ErrPathNotAllowed)

	_, err = store.CreateFile("../bob", holvitypes.ObjectTypeLocks, "worker.lock")
	assert.Assert(t, holvitypes.KindOf(err) == holvitypes.ErrPathNotAllowed)

	_, err = store.ListObjects("a/b", holvitypes.ObjectTypeData)
	assert.Assert(t, holvitypes.KindOf(err) == holvitypes.ErrPathNotAllowed)

	err = store.RemoveRepository("..")
	assert.Assert(t, holvitypes.KindOf(err) == holvitypes.ErrPathNotAllowed)
}

func writeObject(store *Store, repo string, typ holvitypes.ObjectType, name string, content string) error {
	sink, err := store.CreateFile(repo, typ, name)
	if err != nil {
		return err
	}
	defer sink.Close()

	if _, err := io.Copy(sink, strings.NewReader(content)); err != nil {
		return err
	}

	return sink.Commit()
}

func storeRoot(store *Store) string {
	return store.root
}
