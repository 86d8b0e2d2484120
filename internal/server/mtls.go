package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
)

// TLSConfig locates the server key pair and, for mutual TLS, the client CA.
type TLSConfig struct {
	Cert        string
	Key         string
	ClientCA    string
	RequireMTLS bool
}

// BuildTLS loads certificates into a tls.Config.
func BuildTLS(config TLSConfig) (*tls.Config, error) {
	if config.Cert == "" || config.Key == "" {
		return nil, fmt.Errorf("server cert and key required for TLS")
	}

	cert, err := tls.LoadX509KeyPair(config.Cert, config.Key)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if config.RequireMTLS {
		if config.ClientCA == "" {
			return nil, fmt.Errorf("client CA required for mTLS")
		}
		caCert, err := os.ReadFile(config.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("read client CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse client CA certificate")
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert

		log.Info().Str("ca_cert", config.ClientCA).Msg("mTLS client authentication enabled")
	}

	return tlsConfig, nil
}

// MTLS rejects requests without a verified client certificate when required
// and logs the peer subject otherwise.
func MTLS(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
				if required {
					writeError(w, http.StatusUnauthorized, "client certificate required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			peer := r.TLS.PeerCertificates[0]
			log.Debug().
				Str("subject", peer.Subject.String()).
				Str("serial", peer.SerialNumber.String()).
				Msg("mTLS client authenticated")
			next.ServeHTTP(w, r)
		})
	}
}
