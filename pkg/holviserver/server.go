// The server component: speaks the REST wire protocol of a content-addressed
// backup client against a sharded on-disk repository store, with htpasswd
// authentication and a per-repository ACL.
package holviserver

import (
	"context"
	"log"
	"net/http"

	"github.com/function61/gokit/httputils"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/taskrunner"
	"github.com/function61/holvi/pkg/holviacl"
	"github.com/function61/holvi/pkg/holvistore"
	"github.com/function61/holvi/pkg/htpasswd"
	"github.com/gorilla/mux"
)

type Server struct {
	store        *holvistore.Store
	credentials  *htpasswd.Store // nil = authentication disabled
	acl          *holviacl.Table
	metrics      *metricsController
	verifyUpload bool
	log          *logex.Leveled
}

// non-config types; used as a mux path-variable constraint so that
// "/{repo}/..." and "/{type}/..." URL shapes can never collide.
// case-insensitive, matching ParseObjectType
const typePattern = "{type:(?i:data|index|keys|locks|snapshots)}"

// the config segment is a type too, so it gets the same case treatment
const configPattern = "{type:(?i:config)}"

// NewHandler wires the store, credential store and ACL into the protocol's
// URL surface. All state is immutable after this returns.
func NewHandler(conf Config, logger *log.Logger) (http.Handler, error) {
	_, handler, err := newServer(conf, logger)
	return handler, err
}

func newServer(conf Config, logger *log.Logger) (*Server, http.Handler, error) {
	logger = logex.NonNil(logger)

	if err := conf.resolvePaths(); err != nil {
		return nil, nil, err
	}

	var credentials *htpasswd.Store
	if !conf.NoAuth {
		var err error
		credentials, err = htpasswd.Load(conf.HtpasswdPath)
		if err != nil {
			return nil, nil, err
		}
	}

	acl, err := holviacl.LoadIfExists(conf.AclPath, conf.PrivateRepos, conf.AppendOnly)
	if err != nil {
		return nil, nil, err
	}

	srv := &Server{
		store:        holvistore.New(conf.DataRoot, logex.Prefix("store", logger)),
		credentials:  credentials,
		acl:          acl,
		metrics:      newMetricsController(conf.DataRoot, conf.QuotaBytes),
		verifyUpload: !conf.NoVerifyUpload,
		log:          logex.Levels(logger),
	}

	router := mux.NewRouter()

	if conf.Prometheus {
		router.Handle("/metrics", srv.metrics.MetricsHTTPHandler()).Methods(http.MethodGet)
	}

	// default (unnamed) repository shapes; registration order matters since
	// "/{repo}/" would otherwise swallow these
	router.HandleFunc("/"+configPattern, srv.handleConfig).
		Methods(http.MethodHead, http.MethodGet, http.MethodPost, http.MethodDelete)
	router.HandleFunc("/"+typePattern+"/", srv.handleList).
		Methods(http.MethodGet)
	router.HandleFunc("/"+typePattern+"/{name}", srv.handleObject).
		Methods(http.MethodHead, http.MethodGet, http.MethodPost, http.MethodDelete)

	// named repository shapes
	router.HandleFunc("/{repo}/", srv.handleRepository).
		Methods(http.MethodPost, http.MethodDelete)
	router.HandleFunc("/{repo}/"+configPattern, srv.handleConfig).
		Methods(http.MethodHead, http.MethodGet, http.MethodPost, http.MethodDelete)
	router.HandleFunc("/{repo}/"+typePattern+"/", srv.handleList).
		Methods(http.MethodGet)
	router.HandleFunc("/{repo}/"+typePattern+"/{name}", srv.handleObject).
		Methods(http.MethodHead, http.MethodGet, http.MethodPost, http.MethodDelete)

	return srv, srv.metrics.WrapHTTPServer(router), nil
}

func runServer(ctx context.Context, conf Config, logger *log.Logger) error {
	logl := logex.Levels(logger)

	server, handler, err := newServer(conf, logger)
	if err != nil {
		return err
	}

	listener, err := createTCPOrDomainSocketListener(conf.ListenAddr, logl)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler: handler,
	}

	serve := func(ctx context.Context) error {
		if conf.TlsCertPath != "" {
			return httputils.RemoveGracefulServerClosedError(
				srv.ServeTLS(listener, conf.TlsCertPath, conf.TlsKeyPath))
		}

		return httputils.RemoveGracefulServerClosedError(srv.Serve(listener))
	}

	logl.Info.Printf("serving %s at %s", conf.DataRoot, conf.ListenAddr)
	if conf.QuotaBytes > 0 {
		logl.Info.Printf("advisory quota %d bytes (reported, never enforced)", conf.QuotaBytes)
	}

	tasks := taskrunner.New(ctx, logger)

	tasks.Start("listener "+listener.Addr().String(), serve)
	tasks.Start("listenershutdowner", httputils.ServerShutdownTask(srv))
	tasks.Start("metricscollector", server.metrics.Task())

	return tasks.Wait()
}
