package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested for uploads and channel search.
var Scopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube.readonly",
}

// ErrNoTokenFile is returned when the authorized-user token file does not exist.
var ErrNoTokenFile = errors.New("youtube token file not found")

// tokenFile is the authorized-user JSON written by the one-time consent flow.
type tokenFile struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

func readTokenFile(path string) (*tokenFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoTokenFile
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tf, nil
}

func (tf *tokenFile) oauthConfig() *oauth2.Config {
	endpoint := google.Endpoint
	if tf.TokenURI != "" {
		endpoint.TokenURL = tf.TokenURI
	}
	scopes := tf.Scopes
	if len(scopes) == 0 {
		scopes = Scopes
	}
	return &oauth2.Config{
		ClientID:     tf.ClientID,
		ClientSecret: tf.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// token converts the file into an oauth2 token. An unparseable expiry with a
// refresh token is treated as expired.
func (tf *tokenFile) token() *oauth2.Token {
	t := &oauth2.Token{AccessToken: tf.Token, RefreshToken: tf.RefreshToken, TokenType: "Bearer"}
	if tf.Expiry != "" {
		exp, err := time.Parse(time.RFC3339Nano, tf.Expiry)
		if err != nil && tf.RefreshToken != "" {
			exp = time.Unix(1, 0)
		}
		t.Expiry = exp
	}
	return t
}

// persistingSource writes refreshed tokens back to the token file.
type persistingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	path string
	file tokenFile
	last string
}

func newTokenSource(ctx context.Context, path string, tf *tokenFile) oauth2.TokenSource {
	tok := tf.token()
	return &persistingSource{
		base: tf.oauthConfig().TokenSource(ctx, tok),
		path: path,
		file: *tf,
		last: tok.AccessToken,
	}
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if t.AccessToken != s.last {
		s.last = t.AccessToken
		s.file.Token = t.AccessToken
		if t.RefreshToken != "" {
			s.file.RefreshToken = t.RefreshToken
		}
		if !t.Expiry.IsZero() {
			s.file.Expiry = t.Expiry.UTC().Format(time.RFC3339Nano)
		}
		// Write errors are ignored; the next start refreshes again.
		if b, err := json.MarshalIndent(s.file, "", "  "); err == nil {
			_ = os.WriteFile(s.path, b, 0o600)
		}
	}
	return t, nil
}
