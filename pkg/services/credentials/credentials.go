package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/ini.v1"
)

const (
	EnvUser     = "STORAGE_AUDIT_DB_USER"
	EnvPassword = "STORAGE_AUDIT_DB_PASSWORD"
)

// ErrNotFound is returned by a Provider that has nothing for the requested host.
var ErrNotFound = errors.New("credentials not found")

type DBCredentials struct {
	User     string
	Password string
}

// Provider resolves database credentials for a host. user is the already known
// username, possibly empty.
type Provider interface {
	Resolve(ctx context.Context, host, user string) (DBCredentials, error)
}

type EnvProvider struct {
	Getenv func(string) string
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{Getenv: os.Getenv}
}

func (p *EnvProvider) Resolve(_ context.Context, _ string, user string) (DBCredentials, error) {
	password := p.Getenv(EnvPassword)
	if password == "" {
		return DBCredentials{}, ErrNotFound
	}
	if user == "" {
		user = p.Getenv(EnvUser)
	}
	return DBCredentials{User: user, Password: password}, nil
}

// FileProvider reads an ini file with one section per database host:
//
//	[db.example.com]
//	user = auditor
//	password = secret
type FileProvider struct {
	cfg *ini.File
}

func NewFileProvider(path string) (*FileProvider, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load credentials file %s: %w", path, err)
	}
	return &FileProvider{cfg: cfg}, nil
}

func (p *FileProvider) Resolve(_ context.Context, host, user string) (DBCredentials, error) {
	section, err := p.cfg.GetSection(host)
	if err != nil {
		return DBCredentials{}, ErrNotFound
	}

	password := section.Key("password").String()
	if password == "" {
		return DBCredentials{}, ErrNotFound
	}
	if user == "" {
		user = section.Key("user").String()
	}
	return DBCredentials{User: user, Password: password}, nil
}

type PromptProvider struct {
	In           io.Reader
	Out          io.Writer
	ReadPassword func() ([]byte, error)
}

// NewPromptProvider prompts on the terminal attached to stdin.
func NewPromptProvider() *PromptProvider {
	return &PromptProvider{
		In:  os.Stdin,
		Out: os.Stderr,
		ReadPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}

// IsTerminal reports whether stdin can be prompted.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (p *PromptProvider) Resolve(_ context.Context, host, user string) (DBCredentials, error) {
	if user == "" {
		_, _ = fmt.Fprintf(p.Out, "Database user for %s: ", host)
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return DBCredentials{}, fmt.Errorf("read database user: %w", err)
		}
		user = strings.TrimSpace(line)
	}

	_, _ = fmt.Fprintf(p.Out, "Password for %s@%s: ", user, host)
	password, err := p.ReadPassword()
	_, _ = fmt.Fprintln(p.Out)
	if err != nil {
		return DBCredentials{}, fmt.Errorf("read database password: %w", err)
	}

	return DBCredentials{User: user, Password: string(password)}, nil
}

// Chain asks each provider in order and returns the first hit.
type Chain []Provider

func (c Chain) Resolve(ctx context.Context, host, user string) (DBCredentials, error) {
	for _, p := range c {
		creds, err := p.Resolve(ctx, host, user)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return DBCredentials{}, err
		}
		return creds, nil
	}
	return DBCredentials{}, ErrNotFound
}
