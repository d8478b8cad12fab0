package providerfake

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-coordinator/identity"
	"github.com/jrsteele09/go-session-coordinator/session"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory identity provider. Any of the func fields may be
// set to override the default behaviour; calls are counted per operation.
type FakeProvider struct {
	AuthURLFunc  func(ctx context.Context, req identity.AuthURLRequest) (string, error)
	ExchangeFunc func(ctx context.Context, code, verifier string) (*identity.TokenSet, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (*identity.TokenSet, error)
	PasswordFunc func(ctx context.Context, email, password string) (*identity.TokenSet, error)
	SignOutFunc  func(ctx context.Context, accessToken, refreshToken string) error

	Now func() time.Time

	lock  sync.Mutex
	calls map[string]int
	seq   int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Now:   time.Now,
		calls: make(map[string]int),
	}
}

// Calls returns how many times op was invoked.
func (f *FakeProvider) Calls(op string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[op]
}

func (f *FakeProvider) record(op string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls[op]++
	f.seq++
	return f.seq
}

func (f *FakeProvider) tokens(userID, email string, n int) *identity.TokenSet {
	return &identity.TokenSet{
		User:         session.User{ID: userID, Email: email, CreatedAt: time.Unix(1700000000, 0).UTC()},
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
		ExpiresAt:    f.Now().Add(time.Hour).Unix(),
	}
}

func (f *FakeProvider) AuthorizationURL(ctx context.Context, req identity.AuthURLRequest) (string, error) {
	f.record("authorization_url")
	if f.AuthURLFunc != nil {
		return f.AuthURLFunc(ctx, req)
	}
	q := url.Values{}
	q.Set("provider", req.Provider)
	q.Set("state", req.State)
	return "https://idp.test/authorize?" + q.Encode(), nil
}

func (f *FakeProvider) ExchangeCode(ctx context.Context, code, verifier string) (*identity.TokenSet, error) {
	n := f.record("exchange")
	if f.ExchangeFunc != nil {
		return f.ExchangeFunc(ctx, code, verifier)
	}
	return f.tokens("oauth-user", "oauth@example.com", n), nil
}

func (f *FakeProvider) Refresh(ctx context.Context, refreshToken string) (*identity.TokenSet, error) {
	n := f.record("refresh")
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx, refreshToken)
	}
	ts := f.tokens("", "", n)
	ts.User = session.User{}
	return ts, nil
}

func (f *FakeProvider) PasswordGrant(ctx context.Context, email, password string) (*identity.TokenSet, error) {
	n := f.record("password")
	if f.PasswordFunc != nil {
		return f.PasswordFunc(ctx, email, password)
	}
	return f.tokens("user-"+email, email, n), nil
}

func (f *FakeProvider) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	f.record("sign_out")
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx, accessToken, refreshToken)
	}
	return nil
}
