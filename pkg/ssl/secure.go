package ssl

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
)

// Options for Handler; Redirect is only meaningful when the server runs TLS
type Options struct {
	Host     string
	Port     int
	Redirect bool
	DevMode  bool
}

// Handler sets hardening headers and, with Redirect, sends plain HTTP to the TLS host.
func Handler(opts Options) gin.HandlerFunc {
	sslHost := ""
	if opts.Redirect {
		sslHost = opts.Host + ":" + strconv.Itoa(opts.Port)
	}
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect:           opts.Redirect,
		SSLHost:               sslHost,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		IsDevelopment:         opts.DevMode,
	})
	return func(c *gin.Context) {
		// Process already wrote the redirect when it returns an error
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	}
}
