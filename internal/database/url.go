package database

import (
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/util"
)

// ConnectionString normalizes the configured url for the selected driver.
func ConnectionString(config Config) (string, error) {
	u, err := url.Parse(config.URL)
	if err != nil {
		return "", errors.Wrap(err, "error parsing postgres db url")
	}
	if u.Host == "" {
		return "", errors.New("invalid postgres db url: missing host")
	}
	u.Scheme = "postgresql"
	if u.Port() == "" {
		u.Host = u.Host + ":5432"
	}
	var reencode bool
	q := u.Query()
	if !q.Has("application_name") && config.ApplicationName != "" {
		q.Set("application_name", config.ApplicationName)
		reencode = true
	}
	if !q.Has("connect_timeout") && config.ConnectTimeout > 0 {
		secs := int(config.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
		reencode = true
	}
	if !q.Has("sslmode") {
		switch {
		case config.SSL:
			// require encrypts without verifying the certificate chain
			q.Set("sslmode", "require")
			reencode = true
		case util.IsLocalhost(u.Host):
			q.Set("sslmode", "disable")
			reencode = true
		}
	}
	if reencode {
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
