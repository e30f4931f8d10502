// Sharded on-disk storage for backup repositories. One Store owns a data
// root; each repository is a directory under it with a config file and one
// directory per object type, data objects sharded by the first two hex chars.
package holvistore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/logex"
	"github.com/function61/holvi/pkg/holvitypes"
)

type ObjectInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type Store struct {
	root string
	log  *logex.Leveled
}

func New(root string, logger *log.Logger) *Store {
	return &Store{
		root: root,
		log:  logex.Levels(logex.NonNil(logger)),
	}
}

// Filename maps (repo, type, name) to a path under the data root. Pure; the
// file operations re-check the segments before touching the disk. Empty repo
// addresses the default repository directly under the root.
func (s *Store) Filename(repo string, typ holvitypes.ObjectType, name string) string {
	switch {
	case typ == holvitypes.ObjectTypeConfig:
		return filepath.Join(s.root, repo, "config")
	case name == "":
		return filepath.Join(s.root, repo, string(typ))
	case typ == holvitypes.ObjectTypeData:
		return filepath.Join(s.root, repo, string(typ), name[0:2], name)
	default:
		return filepath.Join(s.root, repo, string(typ), name)
	}
}

// CreateRepository makes the repository directory, one directory per
// non-config object type and all 256 data shard directories up-front.
func (s *Store) CreateRepository(repo string) error {
	for _, typ := range holvitypes.DirectoryObjectTypes {
		if err := s.CreateDir(repo, typ); err != nil {
			return err
		}
	}

	return nil
}

// checkPath re-validates the segments so a Store driven without the HTTP
// layer's validation still cannot address anything outside the data root
func checkPath(repo string, typ holvitypes.ObjectType, name string) error {
	if repo != "" {
		if err := holvitypes.ValidateRepoName(repo); err != nil {
			return err
		}
	}

	if name == "" && typ != holvitypes.ObjectTypeConfig {
		return nil // directory addressing
	}

	return holvitypes.ValidateObjectName(typ, name)
}

// CreateDir ensures <root>/<repo>/<type> exists; for data also its shards.
func (s *Store) CreateDir(repo string, typ holvitypes.ObjectType) error {
	if err := checkPath(repo, typ, ""); err != nil {
		return err
	}

	dir := s.Filename(repo, typ, "")

	if err := os.MkdirAll(dir, 0700); err != nil {
		return holvitypes.NewError(holvitypes.ErrCreatingDirectoryFailed, err)
	}

	if typ == holvitypes.ObjectTypeData {
		for i := 0; i < 256; i++ {
			shard := filepath.Join(dir, shardName(i))
			if err := os.MkdirAll(shard, 0700); err != nil {
				return holvitypes.NewError(holvitypes.ErrCreatingDirectoryFailed, err)
			}
		}
	}

	return nil
}

func (s *Store) RepositoryExists(repo string) (bool, error) {
	return fileexists.Exists(filepath.Join(s.root, repo))
}

func (s *Store) RemoveRepository(repo string) error {
	if repo == "" { // the default repository is not deletable as a whole
		return holvitypes.NewError(holvitypes.ErrPathNotAllowed, nil)
	}

	if err := holvitypes.ValidateRepoName(repo); err != nil {
		return err
	}

	path := filepath.Join(s.root, repo)

	exists, err := fileexists.Exists(path)
	if err != nil {
		return holvitypes.NewError(holvitypes.ErrIOFailed, err)
	}
	if !exists {
		return holvitypes.NewError(holvitypes.ErrObjectNotFound, nil)
	}

	return os.RemoveAll(path)
}

// ListObjects enumerates regular files directly under <repo>/<type>
// (one shard level deep for data). A missing directory is an empty listing,
// not an error. Order is directory-iteration order.
func (s *Store) ListObjects(repo string, typ holvitypes.ObjectType) ([]ObjectInfo, error) {
	if err := checkPath(repo, typ, ""); err != nil {
		return nil, err
	}

	dir := s.Filename(repo, typ, "")

	if typ != holvitypes.ObjectTypeData {
		return listRegularFiles(dir)
	}

	shards, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ObjectInfo{}, nil
		}
		return nil, err
	}

	objects := []ObjectInfo{}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}

		inShard, err := listRegularFiles(filepath.Join(dir, shard.Name()))
		if err != nil {
			return nil, err
		}

		objects = append(objects, inShard...)
	}

	return objects, nil
}

func (s *Store) OpenFile(repo string, typ holvitypes.ObjectType, name string) (*os.File, error) {
	if err := checkPath(repo, typ, name); err != nil {
		return nil, err
	}

	return os.Open(s.Filename(repo, typ, name))
}

func (s *Store) StatFile(repo string, typ holvitypes.ObjectType, name string) (os.FileInfo, error) {
	if err := checkPath(repo, typ, name); err != nil {
		return nil, err
	}

	return os.Stat(s.Filename(repo, typ, name))
}

func (s *Store) RemoveFile(repo string, typ holvitypes.ObjectType, name string) error {
	if err := checkPath(repo, typ, name); err != nil {
		return err
	}

	err := os.Remove(s.Filename(repo, typ, name))
	if os.IsNotExist(err) {
		return holvitypes.NewError(holvitypes.ErrObjectNotFound, err)
	}

	return err
}

// CreateFile opens the target with exclusive-create semantics and hands back
// a sink that either finalizes (fsync, then success) or removes the partial
// file on every other exit path.
func (s *Store) CreateFile(repo string, typ holvitypes.ObjectType, name string) (*UploadSink, error) {
	if err := checkPath(repo, typ, name); err != nil {
		return nil, err
	}

	filename := s.Filename(repo, typ, name)

	// repo may have been created out-of-band without shard dirs
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return nil, holvitypes.NewError(holvitypes.ErrCreatingDirectoryFailed, err)
	}

	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		// overwrite of an immutable object lands here as well
		return nil, holvitypes.NewError(holvitypes.ErrWritingToFileFailed, err)
	}

	return &UploadSink{file: file, path: filename}, nil
}

func listRegularFiles(dir string) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ObjectInfo{}, nil
		}
		return nil, err
	}

	files := []ObjectInfo{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) { // deleted between readdir and stat
				continue
			}
			return nil, err
		}

		files = append(files, ObjectInfo{
			Name: entry.Name(),
			Size: info.Size(),
		})
	}

	return files, nil
}

func shardName(i int) string {
	return fmt.Sprintf("%02x", i)
}
