package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
)

// authenticate rejects requests whose credentials do not verify.
//
// A client publishing its own certificate cannot yet be resolved from the
// repository, so for POST /certificate/... the posted body also resolves.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.anonymous {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(codec.CredentialsHeader)
		if header == "" {
			s.unauthorized(w, r, fmt.Errorf("missing %s header", codec.CredentialsHeader))
			return
		}
		creds, err := codec.DecodeHeader(s.codec, header)
		if err != nil {
			s.unauthorized(w, r, err)
			return
		}

		resolve := s.resolveCertificate
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/"+core.KindCertificate+"/") {
			data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
			if err != nil {
				s.fail(w, r, fmt.Errorf("%w: failed to read body: %v", core.ErrInvalidParameter, err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(data))
			if posted, err := s.codec.Decode(data); err == nil {
				resolve = func(ctx context.Context, c core.Citation) (*core.Document, error) {
					if c.Matches(posted.Citation()) {
						return posted, nil
					}
					return s.resolveCertificate(ctx, c)
				}
			}
		}

		if err := s.checkCredentials(r.Context(), *creds, resolve); err != nil {
			s.unauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkCredentials(ctx context.Context, creds core.Document, resolve core.CertificateResolver) error {
	if creds.Type != core.TypeCredentials {
		return fmt.Errorf("%w: document of type %q is not credentials", core.ErrValidation, creds.Type)
	}
	if len(creds.Seals) == 0 {
		return fmt.Errorf("%w: credentials are not sealed", core.ErrValidation)
	}
	if stamp, ok := creds.Attributes["timestamp"].(string); ok {
		at, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return fmt.Errorf("%w: credentials timestamp %q", core.ErrValidation, stamp)
		}
		if age := time.Since(at); age > s.maxAge || age < -s.maxAge {
			return fmt.Errorf("%w: credentials expired", core.ErrValidation)
		}
	}
	return core.ValidateSeals(ctx, creds.ID(), creds, resolve, s.notary)
}

// checkCertificate accepts only certificates whose seal chain verifies.
func (s *Server) checkCertificate(ctx context.Context, id string, cert core.Document) error {
	if cert.Type != core.TypeCertificate {
		return fmt.Errorf("%w: document of type %q is not a certificate", core.ErrValidation, cert.Type)
	}
	if len(cert.Seals) == 0 {
		return fmt.Errorf("%w: certificate %s carries no seal", core.ErrInvalidParameter, id)
	}
	if s.notary == nil {
		return nil
	}
	return core.ValidateSeals(ctx, id, cert, s.resolveCertificate, s.notary)
}

// resolveCertificate reads a stored certificate, checking the cited digest.
func (s *Server) resolveCertificate(ctx context.Context, c core.Citation) (*core.Document, error) {
	cert, err := s.repo.FetchCertificate(ctx, c.ID())
	if err != nil || cert == nil {
		return nil, err
	}
	if c.Digest != "" {
		digest, err := core.Digest(s.codec, *cert)
		if err != nil {
			return nil, err
		}
		if digest != c.Digest {
			return nil, fmt.Errorf("%w: digest of certificate %s does not match", core.ErrValidation, c.ID())
		}
	}
	return cert, nil
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("rejected credentials", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "invalid credentials", http.StatusUnauthorized)
}
