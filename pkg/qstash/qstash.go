package qstash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SignatureHeader     = "Upstash-Signature"
	DeduplicationHeader = "Upstash-Deduplication-Id"
	RetriesHeader       = "Upstash-Retries"

	signatureIssuer = "Upstash"
)

var (
	ErrNotConfigured    = errors.New("qstash is not configured")
	ErrStatus           = errors.New("qstash returned non-success status")
	ErrInvalidSignature = errors.New("invalid qstash signature")
)

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
	Retries           int           `split_words:"true" default:"3"`
}

// Enabled reports whether publishing is possible.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	retries           int
	httpClient        *http.Client
	now               func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		retries:           cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

func MustNew(cfg Config, opts ...Option) *Client {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return client
}

type PublishRequest struct {
	Destination     string
	Body            []byte
	DeduplicationID string
}

type publishResponse struct {
	MessageID string `json:"messageId"`
}

// Publish enqueues body for delivery to the destination URL and returns the
// QStash message id.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (string, error) {
	if c.token == "" {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(req.Destination) == "" {
		return "", errors.New("qstash destination is required")
	}

	endpoint := c.baseURL + "/v2/publish/" + req.Destination
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.DeduplicationID != "" {
		httpReq.Header.Set(DeduplicationHeader, req.DeduplicationID)
	}
	if c.retries > 0 {
		httpReq.Header.Set(RetriesHeader, strconv.Itoa(c.retries))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out publishResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode qstash publish response: %w", err)
	}
	return out.MessageID, nil
}

type signatureClaims struct {
	jwt.RegisteredClaims
	Body string `json:"body"`
}

// Verify checks a delivery signature against the current signing key, then the
// next one. The token must be issued by Upstash, be within its validity window,
// and carry the SHA-256 of body. When destination is set it must match the
// token subject.
func (c *Client) Verify(signature string, body []byte, destination string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	if c.currentSigningKey == "" && c.nextSigningKey == "" {
		return ErrNotConfigured
	}

	var errs []error
	for _, key := range []string{c.currentSigningKey, c.nextSigningKey} {
		if key == "" {
			continue
		}
		err := c.verifyWithKey(signature, body, destination, key)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalidSignature, errors.Join(errs...))
}

func (c *Client) verifyWithKey(signature string, body []byte, destination, key string) error {
	var claims signatureClaims
	_, err := jwt.ParseWithClaims(signature, &claims, func(token *jwt.Token) (any, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(time.Second),
	)
	if err != nil {
		return err
	}

	if destination != "" && claims.Subject != destination {
		return fmt.Errorf("subject %q does not match destination", claims.Subject)
	}

	sum := sha256.Sum256(body)
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(claims.Body, "=") != want {
		return errors.New("body hash mismatch")
	}
	return nil
}

// Sign produces a signature the way QStash does. It backs local relays and tests.
func Sign(key, destination string, body []byte, now time.Time, ttl time.Duration) (string, error) {
	sum := sha256.Sum256(body)
	claims := signatureClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			Subject:   destination,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Body: base64.URLEncoding.EncodeToString(sum[:]),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}
