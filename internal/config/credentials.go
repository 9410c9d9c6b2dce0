package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for missing values.
type Prompter interface {
	Prompt(label string) (string, error)
	PromptSecret(label string) (string, error)
}

// TerminalPrompter prompts on stderr and reads from stdin. Secrets are read
// without echo.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter returns a prompter bound to the process terminal, or
// nil when stdin is not a terminal.
func NewTerminalPrompter() *TerminalPrompter {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.Out, label)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompter) PromptSecret(label string) (string, error) {
	fmt.Fprint(p.Out, label)
	secret, err := term.ReadPassword(int(p.In.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// ResolveCredentials asks for whatever the configuration sources left
// empty. A nil prompter means the session is not interactive.
func (c *Config) ResolveCredentials(p Prompter) error {
	if c.Username != "" && c.Password != "" {
		return nil
	}
	if p == nil {
		return ErrMissingCredentials
	}

	var err error
	if c.Username == "" {
		if c.Username, err = p.Prompt("Nom d'utilisateur Moodle: "); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}
	if c.Password == "" {
		if c.Password, err = p.PromptSecret("Mot de passe Moodle: "); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}
