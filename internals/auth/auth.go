// Package auth keeps provider credentials in <data dir>/auth.json, readable
// only by the owner. GITHUB_TOKEN in the environment wins over the file.
package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Oudwins/taskforge/internals/conf"
	"github.com/Oudwins/taskforge/internals/env"
	"github.com/Oudwins/taskforge/internals/errs"
)

const fileName = "auth.json"

// Source says where a resolved token came from. Empty means no token.
type Source string

const (
	SourceNone Source = ""
	SourceEnv  Source = "env"
	SourceFile Source = "file"
)

type GitHubAuth struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type credentials struct {
	GitHub *GitHubAuth `json:"github,omitempty"`
}

// Path is the credentials file for the configured data dir.
func Path() (string, error) {
	dataDir, err := conf.ExpandPath(conf.GetConfig().Server.DataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Clean(dataDir), fileName), nil
}

func load() (credentials, error) {
	var creds credentials
	path, err := Path()
	if err != nil {
		return creds, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, errs.Wrap(errs.KindInvalidInput, "auth.load", err)
	}
	return creds, nil
}

// save writes through a temp file so a crash never leaves half a file.
func save(creds credentials) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadGitHubAuth reports ok=false when nothing usable is stored.
func ReadGitHubAuth() (*GitHubAuth, bool, error) {
	creds, err := load()
	if err != nil {
		return nil, false, err
	}
	if creds.GitHub == nil || strings.TrimSpace(creds.GitHub.AccessToken) == "" {
		return nil, false, nil
	}
	return creds.GitHub, true, nil
}

func WriteGitHubAuth(gh GitHubAuth) error {
	gh.AccessToken = strings.TrimSpace(gh.AccessToken)
	if gh.AccessToken == "" {
		return errs.E(errs.KindInvalidInput, "auth.WriteGitHubAuth", "access token is empty")
	}
	if gh.UpdatedAt.IsZero() {
		gh.UpdatedAt = time.Now().UTC()
	}
	creds, err := load()
	if err != nil {
		return err
	}
	creds.GitHub = &gh
	return save(creds)
}

// DeleteGitHubAuth forgets the stored token. It does not touch GITHUB_TOKEN.
func DeleteGitHubAuth() error {
	creds, err := load()
	if err != nil {
		return err
	}
	if creds.GitHub == nil {
		return nil
	}
	creds.GitHub = nil
	return save(creds)
}

func GitHubToken() (string, Source, error) {
	if token := strings.TrimSpace(env.Get().GITHUB_TOKEN); token != "" {
		return token, SourceEnv, nil
	}
	stored, ok, err := ReadGitHubAuth()
	if err != nil || !ok {
		return "", SourceNone, err
	}
	return stored.AccessToken, SourceFile, nil
}

// ResolveGitHubToken is GitHubToken without the source, in the shape the
// remote provider expects.
func ResolveGitHubToken() (string, error) {
	token, _, err := GitHubToken()
	return token, err
}
