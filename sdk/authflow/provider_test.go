package authflow_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/router-for-me/authflow/sdk/authflow"
	"github.com/router-for-me/authflow/sdk/authflow/mocks"
	"github.com/router-for-me/authflow/sdk/authflow/store"
)

type ProviderSuite struct {
	suite.Suite
	ctx        context.Context
	endpoint   *tokenEndpoint
	store      *store.MemoryStore
	dispatcher *captureDispatcher
	provider   *authflow.Provider
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) SetupTest() {
	s.ctx = context.Background()
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "ada@example.com",
	}).SignedString([]byte("irrelevant"))
	s.Require().NoError(err)

	s.endpoint = newTokenEndpoint(s.T(), http.StatusOK,
		fmt.Sprintf(`{"access_token":"tok123","token_type":"Bearer","id_token":%q}`, idToken))
	s.store = store.NewMemoryStore()
	s.dispatcher = &captureDispatcher{}
	s.provider, err = authflow.NewProvider(newFlowConfig(s.T(), s.endpoint.URL), s.store, s.dispatcher)
	s.Require().NoError(err)
}

// redirectFor builds the callback URL the provider would send for the last dispatched request.
func (s *ProviderSuite) redirectFor(code string) *url.URL {
	state := s.dispatcher.last(s.T()).Query().Get("state")
	u, err := url.Parse(testRedirectURI + "?code=" + url.QueryEscape(code) + "&state=" + url.QueryEscape(state))
	s.Require().NoError(err)
	return u
}

func (s *ProviderSuite) TestInitialState() {
	s.Equal(authflow.StateUnauthenticated, s.provider.State())
	s.False(s.provider.IsAuthenticated())
	s.False(s.provider.IsLoading())
	s.NoError(s.provider.Error())
	s.Nil(s.provider.User())
	_, ok := s.provider.AccessToken()
	s.False(ok)
}

func (s *ProviderSuite) TestLoginThenRedirect() {
	s.Require().NoError(s.provider.Login(s.ctx, authflow.WithReturnTo("/dashboard")))
	s.Equal(authflow.StateAuthenticating, s.provider.State())
	s.True(s.provider.IsLoading())

	handled, err := s.provider.HandleRedirect(s.ctx, s.redirectFor("the-code"))
	s.Require().NoError(err)
	s.True(handled)

	s.True(s.provider.IsAuthenticated())
	s.False(s.provider.IsLoading())
	tok, ok := s.provider.AccessToken()
	s.Require().True(ok)
	s.Equal("tok123", tok.Secret())
	s.Equal("/dashboard", s.provider.ReturnTo())
	s.Require().NotNil(s.provider.User())
	s.Equal("ada@example.com", s.provider.User().Email)

	st := s.provider.Status()
	s.Equal("authenticated", st.State)
	s.True(st.Authenticated)
	s.Empty(st.Error)
}

func (s *ProviderSuite) TestRedirectAfterRestart() {
	s.Require().NoError(s.provider.Login(s.ctx))
	redirect := s.redirectFor("the-code")

	// A new provider over the same store plays the role of the reloaded application.
	restarted, err := authflow.NewProvider(newFlowConfig(s.T(), s.endpoint.URL), s.store, s.dispatcher)
	s.Require().NoError(err)
	s.Equal(authflow.StateUnauthenticated, restarted.State())

	handled, err := restarted.HandleRedirect(s.ctx, redirect)
	s.Require().NoError(err)
	s.True(handled)
	s.True(restarted.IsAuthenticated())
}

func (s *ProviderSuite) TestNonRedirectURLIsIgnored() {
	u, _ := url.Parse("https://app.example.com/dashboard?tab=2")
	handled, err := s.provider.HandleRedirect(s.ctx, u)
	s.NoError(err)
	s.False(handled)
	s.Equal(authflow.StateUnauthenticated, s.provider.State())
}

func (s *ProviderSuite) TestStateMismatchEntersError() {
	s.Require().NoError(s.provider.Login(s.ctx))
	u, _ := url.Parse(testRedirectURI + "?code=c&state=forged")

	handled, err := s.provider.HandleRedirect(s.ctx, u)
	s.True(handled)
	s.ErrorIs(err, authflow.ErrStateMismatch)
	s.Equal(authflow.StateError, s.provider.State())
	s.ErrorIs(s.provider.Error(), authflow.ErrStateMismatch)
	s.Equal("state_mismatch", s.provider.Status().ErrorKind)
	s.Equal(int32(0), s.endpoint.hits.Load())
}

func (s *ProviderSuite) TestProviderDenied() {
	s.Require().NoError(s.provider.Login(s.ctx))
	forged, _ := url.Parse(testRedirectURI + "?error=access_denied&state=forged")

	_, err := s.provider.HandleRedirect(s.ctx, forged)
	s.ErrorIs(err, authflow.ErrAuthorizationDenied)
	s.Equal(authflow.StateError, s.provider.State())
	_, errGet := s.store.Get(s.ctx)
	s.NoError(errGet, "an unrelated error redirect keeps the pending attempt")

	state := s.dispatcher.last(s.T()).Query().Get("state")
	denied, _ := url.Parse(testRedirectURI + "?error=access_denied&state=" + url.QueryEscape(state))
	_, err = s.provider.HandleRedirect(s.ctx, denied)
	s.ErrorIs(err, authflow.ErrAuthorizationDenied)
	_, errGet = s.store.Get(s.ctx)
	s.ErrorIs(errGet, authflow.ErrFingerprintNotFound, "a denied attempt is discarded")
}

func (s *ProviderSuite) TestLoginFailureEntersError() {
	p, err := authflow.NewProvider(newFlowConfig(s.T(), s.endpoint.URL), s.store,
		authflow.DispatcherFunc(func(context.Context, *url.URL) error { return errors.New("no window") }))
	s.Require().NoError(err)

	err = p.Login(s.ctx)
	s.ErrorIs(err, authflow.ErrDispatchFailed)
	s.Equal(authflow.StateError, p.State())
	s.ErrorIs(p.Error(), authflow.ErrDispatchFailed)
}

func (s *ProviderSuite) TestLoginAfterErrorRecovers() {
	s.Require().NoError(s.provider.Login(s.ctx))
	u, _ := url.Parse(testRedirectURI + "?code=c&state=forged")
	_, _ = s.provider.HandleRedirect(s.ctx, u)
	s.Require().Equal(authflow.StateError, s.provider.State())

	s.Require().NoError(s.provider.Login(s.ctx))
	s.Equal(authflow.StateAuthenticating, s.provider.State())
	s.NoError(s.provider.Error())
}

func (s *ProviderSuite) TestLogout() {
	s.Require().NoError(s.provider.Login(s.ctx))
	_, err := s.provider.HandleRedirect(s.ctx, s.redirectFor("the-code"))
	s.Require().NoError(err)

	s.Require().NoError(s.provider.Logout(s.ctx))
	s.Equal(authflow.StateUnauthenticated, s.provider.State())
	_, ok := s.provider.AccessToken()
	s.False(ok)
	s.Nil(s.provider.User())
}

func TestProvider_DeniedWithEmptySlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockFingerprintStore(ctrl)
	st.EXPECT().Get(gomock.Any()).Return(nil, nil)
	p, err := authflow.NewProvider(newFlowConfig(t, ""), st, &captureDispatcher{})
	require.NoError(t, err)

	denied, _ := url.Parse(testRedirectURI + "?error=access_denied&state=x")
	require.NotPanics(t, func() {
		handled, errRedirect := p.HandleRedirect(context.Background(), denied)
		assert.True(t, handled)
		assert.ErrorIs(t, errRedirect, authflow.ErrAuthorizationDenied)
	})
	assert.Equal(t, authflow.StateError, p.State())
}

func TestNewProvider_RequiresCollaborators(t *testing.T) {
	cfg := newFlowConfig(t, "")
	_, err := authflow.NewProvider(nil, store.NewMemoryStore(), &captureDispatcher{})
	assert.ErrorIs(t, err, authflow.ErrParseFailed)
	_, err = authflow.NewProvider(cfg, nil, &captureDispatcher{})
	assert.ErrorIs(t, err, authflow.ErrParseFailed)
	_, err = authflow.NewProvider(cfg, store.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, authflow.ErrParseFailed)
}

func TestProvider_ConcurrentReads(t *testing.T) {
	p, err := authflow.NewProvider(newFlowConfig(t, ""), store.NewMemoryStore(), &captureDispatcher{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = p.Login(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = p.Status()
			_, _ = p.AccessToken()
			_ = p.IsLoading()
		}()
	}
	wg.Wait()
	assert.Equal(t, authflow.StateAuthenticating, p.State())
}
