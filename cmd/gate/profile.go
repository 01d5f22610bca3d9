package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SessionProfile is what `gate login` leaves behind for later commands.
type SessionProfile struct {
	URL     string `toml:"url"`
	Token   string `toml:"token,omitempty"`
	User    string `toml:"user,omitempty"`
	Role    string `toml:"role,omitempty"`
	Plant   string `toml:"plant,omitempty"`
	NATSURL string `toml:"nats_url,omitempty"`
}

func sessionProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "gatepass")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.toml"), nil
}

func loadSessionProfile() (SessionProfile, error) {
	path, err := sessionProfilePath()
	if err != nil {
		return SessionProfile{}, err
	}
	var p SessionProfile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if os.IsNotExist(err) {
			return SessionProfile{}, nil
		}
		return SessionProfile{}, err
	}
	return p, nil
}

func saveSessionProfile(p SessionProfile) error {
	path, err := sessionProfilePath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// clearSessionToken forgets the token but keeps the server and NATS URLs.
func clearSessionToken() error {
	p, err := loadSessionProfile()
	if err != nil {
		return err
	}
	p.Token, p.User, p.Role, p.Plant = "", "", "", ""
	return saveSessionProfile(p)
}
