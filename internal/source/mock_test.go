package source

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// MockExecutor records commands and returns configured responses.
type MockExecutor struct {
	commands []MockCommand
	calls    []ExecutorCall
}

type MockCommand struct {
	NamePrefix string
	Output     []byte
	Err        error
}

type ExecutorCall struct {
	Dir  string
	Name string
	Args []string
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

func (m *MockExecutor) AddResponse(namePrefix string, output []byte, err error) {
	m.commands = append(m.commands, MockCommand{
		NamePrefix: namePrefix,
		Output:     output,
		Err:        err,
	})
}

func (m *MockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, ExecutorCall{Dir: dir, Name: name, Args: args})

	fullCmd := name + " " + strings.Join(args, " ")
	for i, cmd := range m.commands {
		if strings.HasPrefix(fullCmd, cmd.NamePrefix) {
			// Responses are single use
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			return cmd.Output, cmd.Err
		}
	}

	return nil, errors.New("no mock response configured for: " + fullCmd)
}

func (m *MockExecutor) MustGetLastCall(t *testing.T) ExecutorCall {
	t.Helper()
	if len(m.calls) == 0 {
		t.Fatal("Expected at least one command call")
	}
	return m.calls[len(m.calls)-1]
}
