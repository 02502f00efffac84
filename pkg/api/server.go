package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gantry/pkg/feed"
	"github.com/platinummonkey/gantry/pkg/httputil"
	"github.com/platinummonkey/gantry/pkg/observability"
	"github.com/platinummonkey/gantry/pkg/workflow"
)

// Engine is the reconciliation surface the feed endpoints use.
// *feed.Engine satisfies it.
type Engine interface {
	Sync(ctx context.Context, entity, externalID string, payload map[string]interface{}) (*feed.Result, error)
	Delete(ctx context.Context, entity, externalID string) (*feed.Result, error)
}

// Workflows is the namespace/environment workflow surface.
// *workflow.Service satisfies it.
type Workflows interface {
	DeleteNamespace(ctx context.Context, ns string, force bool, actor string) error
}

// NamespaceRecords reads namespace data for the management endpoints.
// *workflow.Store satisfies it.
type NamespaceRecords interface {
	ListNamespaceNames(ctx context.Context) ([]string, error)
	GetNamespace(ctx context.Context, ns string) (*workflow.Namespace, error)
}

// ReportWriter streams the namespace report workbook.
// *report.WorkbookService satisfies it.
type ReportWriter interface {
	Write(ctx context.Context, w io.Writer) error
}

// Server is the portal core API server.
type Server struct {
	router    *mux.Router
	engine    Engine
	workflows Workflows
	records   NamespaceRecords
	report    ReportWriter
	metrics   *observability.Metrics
	log       *logrus.Logger
}

// NewServer creates the API server and wires its routes.
func NewServer(engine Engine, workflows Workflows, records NamespaceRecords, report ReportWriter, metrics *observability.Metrics, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		router:    mux.NewRouter(),
		engine:    engine,
		workflows: workflows,
		records:   records,
		report:    report,
		metrics:   metrics,
		log:       log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Feed ingestion routes
	s.router.HandleFunc("/feed/{entity}", s.syncEntity).Methods("PUT")
	s.router.HandleFunc("/feed/{entity}/{id}", s.syncEntity).Methods("PUT")
	s.router.HandleFunc("/feed/{entity}/{id}", s.deleteEntity).Methods("DELETE")

	// Namespace routes
	s.router.HandleFunc("/namespaces", s.listNamespaces).Methods("GET")
	s.router.HandleFunc("/namespaces/report", s.namespaceReport).Methods("GET")
	s.router.HandleFunc("/namespaces/{ns}", s.getNamespace).Methods("GET")
	s.router.HandleFunc("/namespaces/{ns}", s.deleteNamespace).Methods("DELETE")
	s.router.HandleFunc("/namespaces/{ns}/contents", s.publishContent).Methods("PUT")

	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
		httputil.MetricsMiddleware(s.metrics),
	)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
