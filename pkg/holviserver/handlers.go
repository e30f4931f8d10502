package holviserver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/function61/holvi/pkg/holviacl"
	"github.com/function61/holvi/pkg/holvitypes"
	"github.com/gorilla/mux"
	"github.com/minio/sha256-simd"
)

// media types for the two listing formats the client negotiates between
const (
	listingMediaTypeV1 = "application/vnd.x.restic.rest.v1"
	listingMediaTypeV2 = "application/vnd.x.restic.rest.v2"
)

const copyBufferSize = 64 * 1024

// repoVar resolves the optional {repo} path variable; absence means the
// default (unnamed) repository.
func repoVar(r *http.Request) (string, error) {
	repo, has := mux.Vars(r)["repo"]
	if !has {
		return "", nil
	}

	if err := holvitypes.ValidateRepoName(repo); err != nil {
		return "", err
	}

	return repo, nil
}

func objectVars(r *http.Request) (string, holvitypes.ObjectType, string, error) {
	repo, err := repoVar(r)
	if err != nil {
		return "", "", "", err
	}

	typ, err := holvitypes.ParseObjectType(mux.Vars(r)["type"])
	if err != nil {
		return "", "", "", err
	}

	name := mux.Vars(r)["name"]
	if err := holvitypes.ValidateObjectName(typ, name); err != nil {
		return "", "", "", err
	}

	return repo, typ, name, nil
}

// single file object: /<repo>/<type>/<name>
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	repo, typ, name, err := objectVars(r)
	if err != nil {
		s.error(w, err)
		return
	}

	s.serveObject(w, r, repo, typ, name)
}

// per-repo config blob: same verbs as an object, but unnamed
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	repo, err := repoVar(r)
	if err != nil {
		s.error(w, err)
		return
	}

	s.serveObject(w, r, repo, holvitypes.ObjectTypeConfig, "")
}

func (s *Server) serveObject(w http.ResponseWriter, r *http.Request, repo string, typ holvitypes.ObjectType, name string) {
	switch r.Method {
	case http.MethodHead:
		if s.gate(w, r, repo, typ, holviacl.AccessRead) == nil {
			return
		}

		s.objectHead(w, repo, typ, name)
	case http.MethodGet:
		if s.gate(w, r, repo, typ, holviacl.AccessRead) == nil {
			return
		}

		s.objectGet(w, r, repo, typ, name)
	case http.MethodPost:
		if s.gate(w, r, repo, typ, holviacl.AccessAppend) == nil {
			return
		}

		s.objectPost(w, r, repo, typ, name)
	case http.MethodDelete:
		if s.gate(w, r, repo, typ, holviacl.AccessAppend) == nil {
			return
		}

		if err := s.store.RemoveFile(repo, typ, name); err != nil {
			s.error(w, err)
		}
	}
}

func (s *Server) objectHead(w http.ResponseWriter, repo string, typ holvitypes.ObjectType, name string) {
	stat, err := s.store.StatFile(repo, typ, name)
	if err != nil {
		s.error(w, mapFileError(err))
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
}

func (s *Server) objectGet(w http.ResponseWriter, r *http.Request, repo string, typ holvitypes.ObjectType, name string) {
	s.metrics.readRequests.Inc()

	file, err := s.store.OpenFile(repo, typ, name)
	if err != nil {
		s.metrics.readErrors.Inc()
		s.error(w, mapFileError(err))
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.metrics.readErrors.Inc()
		s.error(w, holvitypes.NewError(holvitypes.ErrIOFailed, err))
		return
	}
	size := stat.Size()

	requested, err := parseRangeHeader(r.Header.Get("Range"), size)
	if err != nil {
		if holvitypes.KindOf(err) == holvitypes.ErrRangeUnsatisfiable {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		}
		s.error(w, err)
		return
	}

	buffer := make([]byte, copyBufferSize)

	if requested == nil { // whole file
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))

		n, err := io.CopyBuffer(w, file, buffer)
		s.metrics.readBytes.Add(float64(n))
		if err != nil {
			// headers already out; client likely went away mid-download
			s.metrics.readErrors.Inc()
			s.log.Debug.Printf("download of %s aborted: %v", name, err)
		}
		return
	}

	if _, err := file.Seek(requested.start, io.SeekStart); err != nil {
		s.metrics.readErrors.Inc()
		s.error(w, holvitypes.NewError(holvitypes.ErrIOFailed, err))
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf(
		"bytes %d-%d/%d",
		requested.start,
		requested.start+requested.length-1,
		size))
	w.Header().Set("Content-Length", strconv.FormatInt(requested.length, 10))
	w.WriteHeader(http.StatusPartialContent)

	n, err := io.CopyBuffer(w, io.LimitReader(file, requested.length), buffer)
	s.metrics.readBytes.Add(float64(n))
	if err != nil {
		s.metrics.readErrors.Inc()
		s.log.Debug.Printf("ranged download of %s aborted: %v", name, err)
	}
}

// exclusive create: the object either becomes fully durable (streamed,
// fsynced) or does not exist at all
func (s *Server) objectPost(w http.ResponseWriter, r *http.Request, repo string, typ holvitypes.ObjectType, name string) {
	s.metrics.writeRequests.Inc()

	sink, err := s.store.CreateFile(repo, typ, name)
	if err != nil {
		s.metrics.writeErrors.Inc()
		s.error(w, err)
		return
	}
	defer sink.Close() // no-op after Commit; otherwise drops the partial

	var hasher hash.Hash
	var destination io.Writer = sink
	if s.verifyUpload && typ.HexNamed() {
		hasher = sha256.New()
		destination = io.MultiWriter(sink, hasher)
	}

	if _, err := io.CopyBuffer(destination, r.Body, make([]byte, copyBufferSize)); err != nil {
		s.metrics.writeErrors.Inc()
		s.error(w, holvitypes.NewError(holvitypes.ErrWritingToFileFailed, err))
		return
	}

	if hasher != nil {
		if actual := hex.EncodeToString(hasher.Sum(nil)); actual != name {
			s.metrics.writeErrors.Inc()
			s.error(w, holvitypes.NewError(
				holvitypes.ErrDigestMismatch,
				fmt.Errorf("content hashes to %s", actual)))
			return
		}
	}

	if err := sink.Commit(); err != nil {
		s.metrics.writeErrors.Inc()
		s.error(w, err)
		return
	}

	s.metrics.writtenBytes.Add(float64(sink.BytesWritten()))
}

// listing: GET /<repo>/<type>/ with V1/V2 content negotiation on Accept
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	repo, err := repoVar(r)
	if err != nil {
		s.error(w, err)
		return
	}

	typ, err := holvitypes.ParseObjectType(mux.Vars(r)["type"])
	if err != nil {
		s.error(w, err)
		return
	}

	if s.gate(w, r, repo, typ, holviacl.AccessRead) == nil {
		return
	}

	objects, err := s.store.ListObjects(repo, typ)
	if err != nil {
		s.error(w, holvitypes.NewError(holvitypes.ErrIOFailed, err))
		return
	}

	if strings.Contains(r.Header.Get("Accept"), listingMediaTypeV2) {
		outJSON(w, listingMediaTypeV2, objects)
	} else {
		names := []string{}
		for _, object := range objects {
			names = append(names, object.Name)
		}

		outJSON(w, listingMediaTypeV1, names)
	}
}

// repository lifecycle: POST /<repo>/?create=true and DELETE /<repo>/
func (s *Server) handleRepository(w http.ResponseWriter, r *http.Request) {
	repo, err := repoVar(r)
	if err != nil {
		s.error(w, err)
		return
	}

	switch r.Method {
	case http.MethodPost:
		rctx := s.gate(w, r, repo, holvitypes.ObjectTypeConfig, holviacl.AccessAppend)
		if rctx == nil {
			return
		}

		if r.URL.Query().Get("create") != "true" {
			fmt.Fprintf(w, "repository %s: nothing to do (create not requested)\n", repo)
			return
		}

		if err := s.store.CreateRepository(repo); err != nil {
			s.error(w, err)
			return
		}

		s.log.Info.Printf("repository %s created by %q", repo, rctx.User.Id)
	case http.MethodDelete:
		rctx := s.gate(w, r, repo, holvitypes.ObjectTypeConfig, holviacl.AccessModify)
		if rctx == nil {
			return
		}

		if err := s.store.RemoveRepository(repo); err != nil {
			s.error(w, err)
			return
		}

		s.log.Info.Printf("repository %s removed by %q", repo, rctx.User.Id)
	}
}

func (s *Server) error(w http.ResponseWriter, err error) {
	status := holvitypes.KindOf(err).HTTPStatus()

	if status >= http.StatusInternalServerError {
		s.log.Error.Printf("%v", err)
	}

	http.Error(w, err.Error(), status)
}

func mapFileError(err error) error {
	if os.IsNotExist(err) {
		return holvitypes.NewError(holvitypes.ErrObjectNotFound, err)
	}

	return holvitypes.NewError(holvitypes.ErrIOFailed, err)
}

// encode error is unactionable (headers already written), hence not returned
func outJSON(w http.ResponseWriter, mediaType string, output interface{}) {
	w.Header().Set("Content-Type", mediaType)

	_ = json.NewEncoder(w).Encode(output)
}
