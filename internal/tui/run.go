package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/router-for-me/authflow/sdk/authflow"
)

// RunLogin shows the login screen while login runs. Pressing q cancels the context passed
// to login; RunLogin then returns context.Canceled.
func RunLogin(ctx context.Context, login LoginFunc, opener authflow.Dispatcher, in io.Reader, out io.Writer) (authflow.Status, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewLoginModel(cancel, opener)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	p := tea.NewProgram(model, opts...)

	go func() {
		status, err := login(ctx, func(pr Progress) { p.Send(progressMsg(pr)) })
		p.Send(resultMsg{status: status, err: err})
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return authflow.Status{}, fmt.Errorf("failed to run TUI: %w", err)
	}

	m, ok := final.(LoginModel)
	if !ok {
		if ctx.Err() != nil {
			return authflow.Status{}, context.Canceled
		}
		return authflow.Status{}, fmt.Errorf("unexpected TUI model %T", final)
	}
	if status, done, errLogin := m.Result(); done {
		return status, errLogin
	}
	if m.Cancelled() {
		return authflow.Status{}, context.Canceled
	}
	return authflow.Status{}, ctx.Err()
}
