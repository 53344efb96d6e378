package honauth

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

const defaultMinAccessTokenValidity = time.Second * 60

// State is the persisted hOn session: the cognito access token, the id
// token and the refresh token obtained by a login
type State struct {
	Email                  string
	MobileID               string
	MinAccessTokenValidity time.Duration

	// non-exported
	accessToken       string
	accessTokenExpiry time.Time
	idToken           string
	refreshToken      string
	ctx               context.Context
	fileName          string
}

// Version of state that we marshal/unmarshal
type stateMarshal struct {
	Email             string    `json:"email"`
	MobileID          string    `json:"mobile-id"`
	AccessToken       string    `json:"cognito-token"`
	AccessTokenExpiry time.Time `json:"cognito-token-expiry"`
	IDToken           string    `json:"id-token"`
	RefreshToken      string    `json:"refresh-token"`
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate tokens when stringified
func (s State) String() string {
	return fmt.Sprintf("Email [%s] MobileID [%s] accessToken [%s] accessTokenExpiry [%s] idToken [%s] refreshToken [%s]",
		s.Email, s.MobileID, hashOf(s.accessToken), s.accessTokenExpiry,
		hashOf(s.idToken), hashOf(s.refreshToken))
}

func NewState() State {
	return State{
		ctx:                    context.Background(),
		MinAccessTokenValidity: defaultMinAccessTokenValidity,
	}
}

func (s State) WithContext(ctx context.Context) State {
	s.ctx = ctx
	return s
}

// WithTokens sets the tokens of a fresh login.  expiry may be zero when
// the login did not report one.
func (s State) WithTokens(accessToken, idToken, refreshToken string, expiry time.Time) State {
	s.accessToken = accessToken
	s.idToken = idToken
	s.refreshToken = refreshToken
	s.accessTokenExpiry = expiry
	return s
}

func (s *State) Save(fileName string) error {
	sm := stateMarshal{
		Email:             s.Email,
		MobileID:          s.MobileID,
		AccessToken:       s.accessToken,
		AccessTokenExpiry: s.accessTokenExpiry,
		IDToken:           s.idToken,
		RefreshToken:      s.refreshToken,
	}

	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "opening hOn token state %s for write", fileName)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sm); err != nil {
		return errors.Wrapf(err, "saving hOn token state to %s", fileName)
	}

	s.fileName = fileName
	return nil
}

func (s *State) Load(fileName string) error {
	sm := stateMarshal{}

	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(err, "opening hOn token state %s for read", fileName)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&sm); err != nil {
		return errors.Wrapf(err, "loading hOn token state from %s", fileName)
	}

	s.Email = sm.Email
	s.MobileID = sm.MobileID
	s.accessToken = sm.AccessToken
	s.accessTokenExpiry = sm.AccessTokenExpiry
	s.idToken = sm.IDToken
	s.refreshToken = sm.RefreshToken

	s.fileName = fileName
	return nil
}

// FileName is where the state was last loaded from or saved to
func (s *State) FileName() string {
	return s.fileName
}

// Token implements oauth2.TokenSource.  Tokens close to expiry are
// refused since a new login is needed to replace them.
func (s *State) Token() (*oauth2.Token, error) {
	if s.accessToken == "" {
		return nil, errors.New("no cognito token in hOn state, log in first")
	}

	if !s.accessTokenExpiry.IsZero() && !s.accessTokenExpiry.After(time.Now().Add(s.MinAccessTokenValidity)) {
		logging.Logger(s.ctx).Warnf("hOn token expired at %s", s.accessTokenExpiry)
		return nil, errors.Errorf("hOn token expired at %s, log in again", s.accessTokenExpiry)
	}

	tok := &oauth2.Token{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		Expiry:       s.accessTokenExpiry,
	}
	return tok.WithExtra(map[string]interface{}{"id_token": s.idToken}), nil
}

// TokenSource caches the state's token until it expires
func (s *State) TokenSource() oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, s)
}
