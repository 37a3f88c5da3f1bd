package handlers

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"novafreight-system/internal/platform/logger"
)

// ServiceProxy forwards gateway requests to one backend service. The gateway
// owns auth and rate limiting; the backend owns the domain semantics and the
// error taxonomy, so responses stream back untouched.
type ServiceProxy struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	name   string
}

func NewServiceProxy(name, baseURL string, log *logger.Logger) (*ServiceProxy, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("backend unreachable", "service", name, "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false,"message":"` + name + ` is currently unavailable","code":"SERVICE_UNAVAILABLE"}`))
	}

	return &ServiceProxy{target: target, proxy: proxy, name: name}, nil
}

// Forward strips the gateway prefix and hands the request to the backend.
func (p *ServiceProxy) Forward(stripPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.URL.Path = strings.TrimPrefix(c.Request.URL.Path, stripPrefix)
		if !strings.HasPrefix(c.Request.URL.Path, "/") {
			c.Request.URL.Path = "/" + c.Request.URL.Path
		}
		p.proxy.ServeHTTP(c.Writer, c.Request)
	}
}
