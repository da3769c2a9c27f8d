// Package meta holds what the WhatsApp Cloud API and Messenger webhooks share: the
// subscription handshake, payload signatures and the Graph API client.
package meta

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the request body keyed by the app secret
	SignatureHeader = "X-Hub-Signature-256"

	defaultGraphURL = "https://graph.facebook.com/v21.0"
	maxBodySize     = 1 << 20
)

// VerifySignature checks a "sha256=<hex>" signature of body
func VerifySignature(body []byte, secret, signature string) bool {
	if signature == "" || secret == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign returns the signature header value of body
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// SignatureGate rejects requests whose body does not match the signature header. The
// body is restored for the next handler.
func SignatureGate(appSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}

			if !VerifySignature(body, appSecret, r.Header.Get(SignatureHeader)) {
				logging.From(r.Context()).Warn("rejected webhook with invalid signature", "path", r.URL.Path)
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// HandshakeHandler answers the GET subscription check with hub.challenge when
// hub.verify_token matches
func HandshakeHandler(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hub.mode") != "subscribe" || verifyToken == "" || q.Get("hub.verify_token") != verifyToken {
			http.Error(w, "verification failed", http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
	}
}

// Client calls the Graph API with a bearer access token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption configures Client
type ClientOption func(*Client)

// WithBaseURL replaces the Graph API endpoint
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// NewClient creates a Graph API client
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultGraphURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the access token, needed to download media
func (c *Client) Token() string {
	return c.token
}

// Post sends payload as JSON to path
func (c *Client) Post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal graph payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to create graph request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call graph api", goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return goerr.New("graph api returned error",
			goerr.V("path", path),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(msg)))
	}
	return nil
}

// Get decodes the JSON response of path into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create graph request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call graph api", goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return goerr.New("graph api returned error", goerr.V("path", path), goerr.V("status", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode graph response", goerr.V("path", path))
	}
	return nil
}
