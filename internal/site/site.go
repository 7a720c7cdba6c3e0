// Package site registers the server's routes: health, echo, localized static
// pages and a small document store.
package site

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/y0ncha/web-server/pkg/webserver"
)

// DefaultBanner is the body of GET /health.
const DefaultBanner = "Computer Networks Web Server Assignment"

// Options configures the routes.
type Options struct {
	Store  Store
	Banner string
	Logger logrus.FieldLogger
}

type site struct {
	store  Store
	banner string
	logger logrus.FieldLogger
}

// Register installs every route on r.
func Register(r *webserver.Router, opts Options) {
	s := &site{store: opts.Store, banner: opts.Banner, logger: opts.Logger}
	if s.banner == "" {
		s.banner = DefaultBanner
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.logger = s.logger.WithField("component", "site")

	r.GET("/health", s.health)
	r.GET("/*name", s.page)
	r.POST("/echo", s.echo)
	r.POST("/*path", s.unsupportedPost)
	r.PUT("/*name", s.put)
	r.DELETE("/*name", s.remove)
	r.NotFound(func(_ context.Context, req *webserver.Request) *webserver.Response {
		return notFound(req)
	})
}

func notFound(req *webserver.Request) *webserver.Response {
	return webserver.Error(404, "File not found for path "+req.Path)
}

func (s *site) health(_ context.Context, _ *webserver.Request) *webserver.Response {
	return webserver.Text(200, s.banner)
}

func (s *site) echo(_ context.Context, req *webserver.Request) *webserver.Response {
	s.logger.WithField("size", len(req.Body)).Debugf("echo body: %q", req.Body)
	return webserver.Text(200, string(req.Body))
}

func (s *site) unsupportedPost(_ context.Context, _ *webserver.Request) *webserver.Response {
	return webserver.Error(400, "Unsupported POST endpoint")
}

// candidates lists the lookup order for a page: the requested language,
// English, then the unlocalized file.
func candidates(name, lang string) []string {
	out := make([]string, 0, 3)
	if lang != "" && lang != "en" && !strings.ContainsAny(lang, "/.\\") {
		out = append(out, name+"."+lang+".html")
	}
	return append(out, name+".en.html", name+".html")
}

func (s *site) page(ctx context.Context, req *webserver.Request) *webserver.Response {
	name := req.Param("name")
	if name == "" {
		name = "index"
	}
	if !validName(name) {
		return webserver.Error(403, "Forbidden path "+req.Path)
	}

	for _, file := range candidates(name, req.QueryParam("lang")) {
		data, err := s.store.Get(ctx, file)
		switch {
		case err == nil:
			return webserver.HTML(200, data)
		case errors.Is(err, ErrNotExist):
			continue
		default:
			return s.storeFailure(req, err)
		}
	}
	return notFound(req)
}

func (s *site) put(ctx context.Context, req *webserver.Request) *webserver.Response {
	name := req.Param("name")
	if !validName(name) {
		return webserver.Error(400, "Invalid document path "+req.Path)
	}

	created, err := s.store.Put(ctx, name, req.Body, req.Header("content-type"))
	if err != nil {
		return s.storeFailure(req, err)
	}
	if created {
		return webserver.Text(201, "Created "+req.Path)
	}
	return webserver.Text(200, "Updated "+req.Path)
}

func (s *site) remove(ctx context.Context, req *webserver.Request) *webserver.Response {
	name := req.Param("name")
	if !validName(name) {
		return webserver.Error(400, "Invalid document path "+req.Path)
	}

	err := s.store.Delete(ctx, name)
	switch {
	case err == nil:
		return webserver.Text(200, "Deleted "+req.Path)
	case errors.Is(err, ErrNotExist):
		return notFound(req)
	default:
		return s.storeFailure(req, err)
	}
}

func (s *site) storeFailure(req *webserver.Request, err error) *webserver.Response {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.Path,
	}).Error("document store failed")
	return webserver.Error(500, "storage unavailable")
}
