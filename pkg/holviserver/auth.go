package holviserver

import (
	"net/http"

	"github.com/function61/gokit/httpauth"
	"github.com/function61/holvi/pkg/holviacl"
	"github.com/function61/holvi/pkg/holvitypes"
)

// gate authenticates Basic credentials and checks the ACL for the access the
// verb requires. nil return means the response was already written (403).
func (s *Server) gate(
	w http.ResponseWriter,
	r *http.Request,
	repo string,
	typ holvitypes.ObjectType,
	required holviacl.AccessLevel,
) *httpauth.RequestContext {
	username, err := s.authenticate(r)
	if err != nil {
		s.error(w, err)
		return nil
	}

	if !s.acl.Allowed(username, repo, typ, required) {
		s.error(w, holvitypes.NewError(holvitypes.ErrUserAuthentication, nil))
		return nil
	}

	return &httpauth.RequestContext{
		User: &httpauth.UserDetails{Id: username},
	}
}

// authenticate resolves the request to a username. A missing Authorization
// header reads as empty username + empty password; with authentication
// disabled that (and everything else) passes with the username as-is.
func (s *Server) authenticate(r *http.Request) (string, error) {
	username, password, ok := r.BasicAuth()

	if !ok && r.Header.Get("Authorization") != "" {
		// header present but not valid Basic
		return "", holvitypes.NewError(holvitypes.ErrAuthenticationHeader, nil)
	}

	if s.credentials == nil { // authentication disabled
		return username, nil
	}

	if !s.credentials.Verify(username, password) {
		return "", holvitypes.NewError(holvitypes.ErrUserAuthentication, nil)
	}

	return username, nil
}
