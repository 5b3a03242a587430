package engine

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	allowOriginHeader      = "Access-Control-Allow-Origin"
	allowHeadersHeader     = "Access-Control-Allow-Headers"
	allowMethodsHeader     = "Access-Control-Allow-Methods"
	requestMethodHeader    = "Access-Control-Request-Method"
	allowCredentialsHeader = "Access-Control-Allow-Credentials"
	exposeHeadersHeader    = "Access-Control-Expose-Headers"
	maxAgeHeader           = "Access-Control-Max-Age"
)

// Cors controls the cross origin headers on the downstream HTTP surface.
type Cors struct {
	AllowCredentials *bool    `yaml:"AllowCredentials,omitempty" json:"allowCredentials,omitempty"`
	AllowHeaders     []string `yaml:"AllowHeaders,omitempty" json:"allowHeaders,omitempty"`
	AllowMethods     []string `yaml:"AllowMethods,omitempty" json:"allowMethods,omitempty"`
	AllowOrigins     []string `yaml:"AllowOrigins,omitempty" json:"allowOrigins,omitempty"`
	ExposeHeaders    []string `yaml:"ExposeHeaders,omitempty" json:"exposeHeaders,omitempty"`
	MaxAge           *int64   `yaml:"MaxAge,omitempty" json:"maxAge,omitempty"`
}

// Middleware sets the response headers and answers preflight requests.
func (c *Cors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.setHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Cors) setHeaders(writer http.ResponseWriter, request *http.Request) {
	if c == nil {
		return
	}
	origin := request.Header.Get("Origin")
	if c.originAllowed("*") {
		if origin == "" {
			writer.Header().Set(allowOriginHeader, "*")
		} else {
			writer.Header().Set(allowOriginHeader, origin)
		}
	} else if origin != "" && c.originAllowed(origin) {
		writer.Header().Set(allowOriginHeader, origin)
	}
	if len(c.AllowMethods) > 0 {
		methods := strings.Join(c.AllowMethods, ", ")
		if methods == "*" {
			methods = "GET, POST, OPTIONS"
		}
		writer.Header().Set(allowMethodsHeader, methods)
	}
	if request.Method == http.MethodOptions {
		if requested := request.Header.Get(requestMethodHeader); requested != "" {
			writer.Header().Set(allowMethodsHeader, requested)
		}
	}
	if len(c.AllowHeaders) > 0 {
		headers := strings.Join(c.AllowHeaders, ", ")
		if headers == "*" {
			headers = "Content-Type, Authorization"
		}
		writer.Header().Set(allowHeadersHeader, headers)
	}
	if c.AllowCredentials != nil {
		writer.Header().Set(allowCredentialsHeader, strconv.FormatBool(*c.AllowCredentials))
	}
	if c.MaxAge != nil {
		writer.Header().Set(maxAgeHeader, strconv.FormatInt(*c.MaxAge, 10))
	}
	if len(c.ExposeHeaders) > 0 {
		exposed := strings.Join(c.ExposeHeaders, ", ")
		if exposed == "*" {
			exposed = "Content-Type"
		}
		writer.Header().Set(exposeHeadersHeader, exposed)
	}
}

func (c *Cors) originAllowed(origin string) bool {
	for _, candidate := range c.AllowOrigins {
		if candidate == origin {
			return true
		}
	}
	return false
}

func defaultCors() *Cors {
	credentials := true
	return &Cors{
		AllowCredentials: &credentials,
		AllowHeaders:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowOrigins:     []string{"*"},
		ExposeHeaders:    []string{"*"},
	}
}
