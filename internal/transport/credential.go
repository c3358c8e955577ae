package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/weiawesome/wes-io-live/viewer/pkg/jwt"
)

var (
	errEmptyToken = errors.New("empty token")
	errBadURL     = errors.New("invalid room url")
)

// credentialValidator rejects credentials that cannot possibly connect.
type credentialValidator struct {
	inspector *jwt.Inspector
	schemes   map[string]struct{}
}

func newCredentialValidator(inspector *jwt.Inspector, allowedSchemes []string) *credentialValidator {
	if len(allowedSchemes) == 0 {
		allowedSchemes = []string{"wss", "https"}
	}
	schemes := make(map[string]struct{}, len(allowedSchemes))
	for _, s := range allowedSchemes {
		schemes[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return &credentialValidator{inspector: inspector, schemes: schemes}
}

func (v *credentialValidator) validate(cred *Credential, room string) error {
	if cred == nil || strings.TrimSpace(cred.Token) == "" {
		return errEmptyToken
	}
	if _, err := v.inspector.Inspect(cred.Token, room); err != nil {
		return err
	}

	u, err := url.Parse(cred.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadURL, err)
	}
	if _, ok := v.schemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("%w: scheme %q not allowed", errBadURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", errBadURL)
	}
	return nil
}
