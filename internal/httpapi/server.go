package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/apperr"
	apimw "github.com/hamed0406/uptimeboard/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeboard/internal/report"
	"github.com/hamed0406/uptimeboard/internal/repo"
)

const maxFormBytes = 64 << 10

type Server struct {
	Logger  *zap.Logger
	Sites   repo.SiteStore
	Reports *report.Builder
	Now     func() time.Time
}

func NewServer(l *zap.Logger, sites repo.SiteStore, reports *report.Builder) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Sites: sites, Reports: reports, Now: time.Now}
}

type RouterOptions struct {
	// WriteReqPerMin and WriteBurst limit POST and DELETE per client IP.
	// Zero disables the limit.
	WriteReqPerMin int
	WriteBurst     int
	// CORSOrigins applies to /api only. Empty means any origin.
	CORSOrigins []string
}

func (s *Server) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.RequestLogger(s.Logger))
	r.Use(chimw.Recoverer)

	limit := apimw.RateLimit(opts.WriteReqPerMin, opts.WriteBurst)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/styles.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(stylesheet)
	})

	r.Get("/", s.handleIndex)
	r.With(limit).Post("/websites", s.handleCreateSite)
	r.Get("/websites/{alias}", s.handleSitePage)
	r.With(limit).Delete("/websites/{alias}", s.handleDeleteSite)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/websites", s.handleAPIOverview)
		r.Get("/websites/{alias}", s.handleAPIDetail)
	})

	return r
}

// ---- HTML ----

type indexPage struct {
	report.Overview
	Hours int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ov, err := s.Reports.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderPage(w, r, "index.html", indexPage{Overview: ov, Hours: s.Reports.HourlyCount})
}

func (s *Server) handleSitePage(w http.ResponseWriter, r *http.Request) {
	d, err := s.Reports.Detail(r.Context(), chi.URLParam(r, "alias"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderPage(w, r, "site.html", d)
}

// ---- mutations ----

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, apperr.NewValidation("could not parse form", nil))
		return
	}
	url := r.PostFormValue("url")
	alias := r.PostFormValue("alias")

	if err := s.Sites.InsertSite(r.Context(), url, alias, s.Now().UTC()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("site_registered",
		zap.String("alias", alias),
		zap.String("url", url),
	)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := s.Sites.DeleteSite(r.Context(), alias); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("site_deleted", zap.String("alias", alias))
	w.WriteHeader(http.StatusOK)
}

// ---- JSON ----

func (s *Server) handleAPIOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.Reports.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, ov)
}

func (s *Server) handleAPIDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.Reports.Detail(r.Context(), chi.URLParam(r, "alias"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, d)
}

// ---- errors ----

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a JSON body. Causes of 5xx errors are
// logged, never sent.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = &apperr.Error{Kind: "INTERNAL_ERROR", Message: "internal error"}
	}
	status := statusFor(ae.Kind)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request_failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	render.Status(r, status)
	render.JSON(w, r, ae)
}
