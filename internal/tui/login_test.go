package tui

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/router-for-me/authflow/sdk/authflow"
)

func update(t *testing.T, m LoginModel, msg tea.Msg) (LoginModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	lm, ok := next.(LoginModel)
	require.True(t, ok)
	return lm, cmd
}

func TestLoginModel_ProgressThroughSuccess(t *testing.T) {
	m := NewLoginModel(nil, nil)
	assert.Equal(t, PhaseStarting, m.Phase())
	assert.Contains(t, m.View(), "Preparing login")

	m, _ = update(t, m, progressMsg{Phase: PhaseAwaitingRedirect, AuthorizationURL: "https://idp.example/authorize?state=x"})
	assert.Equal(t, PhaseAwaitingRedirect, m.Phase())
	view := m.View()
	assert.Contains(t, view, "https://idp.example/authorize?state=x")
	assert.Contains(t, view, "open browser")

	m, _ = update(t, m, progressMsg{Phase: PhaseExchanging})
	assert.Contains(t, m.View(), "Exchanging code for token")

	status := authflow.Status{State: "authenticated", Authenticated: true, User: &authflow.User{Subject: "u1", Email: "ada@example.com"}}
	m, cmd := update(t, m, resultMsg{status: status})
	require.NotNil(t, cmd)
	assert.Equal(t, PhaseDone, m.Phase())

	got, done, err := m.Result()
	assert.True(t, done)
	assert.NoError(t, err)
	assert.True(t, got.Authenticated)
	assert.Contains(t, m.View(), "Logged in")
	assert.NotContains(t, m.View(), "idp.example")
}

func TestLoginModel_Failure(t *testing.T) {
	m := NewLoginModel(nil, nil)
	flowErr := authflow.NewFlowError(authflow.ErrStateMismatch, nil)
	m, _ = update(t, m, resultMsg{err: flowErr})

	assert.Equal(t, PhaseFailed, m.Phase())
	_, done, err := m.Result()
	assert.True(t, done)
	assert.True(t, errors.Is(err, authflow.ErrStateMismatch))
	assert.Contains(t, m.View(), authflow.UserFriendlyMessage(flowErr))
}

func TestLoginModel_QuitCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewLoginModel(cancel, nil)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, m.Cancelled())
	assert.Error(t, ctx.Err())
	assert.Contains(t, m.View(), "Login cancelled")
}

func TestLoginModel_ReopenBrowser(t *testing.T) {
	var opened *url.URL
	opener := authflow.DispatcherFunc(func(_ context.Context, u *url.URL) error {
		opened = u
		return nil
	})
	m := NewLoginModel(nil, opener)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	assert.Nil(t, cmd, "nothing to open before the URL is known")

	m, _ = update(t, m, progressMsg{Phase: PhaseAwaitingRedirect, AuthorizationURL: "https://idp.example/authorize"})
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	require.NotNil(t, cmd)
	cmd()
	require.NotNil(t, opened)
	assert.Equal(t, "idp.example", opened.Host)
}

func TestLoginKeyMap_ShortHelp(t *testing.T) {
	k := DefaultLoginKeyMap()
	assert.Equal(t, "[q] cancel", k.ShortHelp(false))
	assert.True(t, strings.HasPrefix(k.ShortHelp(true), "[o] open browser"))
}
