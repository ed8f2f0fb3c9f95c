// Package auth verifies bearer ID tokens and produces the request identity
// used for all ownership checks.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
)

const defaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified subject of a request.
type Identity struct {
	UID   string
	Email string
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// ServiceAccount is the subset of the provider credential file we need.
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// LoadServiceAccount parses credentials supplied inline (JSON or base64 JSON)
// or via a file path. It returns nil when neither source is configured.
func LoadServiceAccount(inline, path string) (*ServiceAccount, error) {
	raw := strings.TrimSpace(inline)
	if raw == "" && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return nil, nil
	}

	var sa ServiceAccount
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		decoded, decErr := base64.StdEncoding.DecodeString(raw)
		if decErr != nil {
			return nil, fmt.Errorf("service account is neither JSON nor base64 JSON: %w", err)
		}
		if err := json.Unmarshal(decoded, &sa); err != nil {
			return nil, fmt.Errorf("parse base64 service account: %w", err)
		}
	}
	if sa.ProjectID == "" {
		return nil, errors.New("service account is missing project_id")
	}
	return &sa, nil
}

// CertVerifier validates RS256 ID tokens against the identity provider's
// published x509 signing certificates, selected by the token's kid header.
type CertVerifier struct {
	projectID  string
	certsURL   string
	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// NewCertVerifier constructs a verifier for tokens issued to the given project.
func NewCertVerifier(projectID string) *CertVerifier {
	return &CertVerifier{
		projectID:  projectID,
		certsURL:   defaultCertsURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify checks the token signature and claims and extracts the identity.
func (v *CertVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	parsed, err := jwt.Parse(token, v.keyFunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	return Identity{UID: sub, Email: email}, nil
}

func (v *CertVerifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		keys, err := v.signingKeys(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("no signing key for kid %q", kid)
		}
		return key, nil
	}
}

// signingKeys returns the cached certificate set, refreshing it when the
// provider's Cache-Control max-age has elapsed.
func (v *CertVerifier) signingKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	v.mu.RLock()
	if v.keys != nil && time.Now().Before(v.expiresAt) {
		keys := v.keys
		v.mu.RUnlock()
		return keys, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil && time.Now().Before(v.expiresAt) {
		return v.keys, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing certificates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing certificates: status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, fmt.Errorf("decode signing certificates: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, certPEM := range certs {
		key, err := parseCertPublicKey(certPEM)
		if err != nil {
			telemetry.Warn("auth.cert.parse_failed", map[string]any{"kid": kid, "err": err.Error()})
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no usable signing certificates")
	}

	v.keys = keys
	v.expiresAt = time.Now().Add(cacheMaxAge(resp.Header.Get("Cache-Control")))
	return keys, nil
}

func parseCertPublicKey(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errors.New("no PEM block in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not carry an RSA key")
	}
	return key, nil
}

func cacheMaxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "max-age=") {
			continue
		}
		var secs int
		if _, err := fmt.Sscanf(part, "max-age=%d", &secs); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 5 * time.Minute
}

// InsecureVerifier trusts token claims without checking the signature. It is
// only ever constructed at startup when no service-account credentials are
// configured, so it cannot shadow a real verifier.
type InsecureVerifier struct{}

// Verify decodes the claims segment without verification.
func (InsecureVerifier) Verify(_ context.Context, token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// Tolerate tokens produced with padded encoders.
		payload, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return Identity{}, ErrInvalidToken
		}
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Sub == "" {
		return Identity{}, ErrInvalidToken
	}

	telemetry.Warn("auth.unverified_token", map[string]any{"uid": claims.Sub})
	email := claims.Email
	if email == "" {
		email = "unknown"
	}
	return Identity{UID: claims.Sub, Email: email}, nil
}
