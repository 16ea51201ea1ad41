// Command authctl is a CLI client for the authd HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "authd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "authd")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveTokens(tf tokenFile) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(tokenPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadTokens() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	if err := json.Unmarshal(b, &tf); err != nil {
		return tf, err
	}
	if tf.RefreshToken == "" || time.Now().After(tf.RefreshTokenExpiresAt) {
		return tf, errors.New("no valid session (login required)")
	}
	return tf, nil
}

func clearTokens() error {
	err := os.Remove(tokenPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ---- http client ----

type client struct {
	base   string
	bearer string
	hc     *http.Client
}

type sessionResponse struct {
	User                  json.RawMessage `json:"user"`
	AccessToken           string          `json:"accessToken"`
	RefreshToken          string          `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time       `json:"refreshTokenExpiresAt"`
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("server: %s", e.Error)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func storeSession(resp sessionResponse) error {
	return saveTokens(tokenFile{
		AccessToken:           resp.AccessToken,
		RefreshToken:          resp.RefreshToken,
		RefreshTokenExpiresAt: resp.RefreshTokenExpiresAt,
	})
}

func usage() {
	fmt.Fprintf(os.Stderr, `authctl
Usage:
  authctl -addr URL <cmd> [args]

Commands:
  version
  register   [-u <username>] [-e <email>] [-p <password>]   (anonymous if no -p)
  login      -u <username-or-email> -p <password>
  refresh
  logout     [-all]
  whoami
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the HTTP API.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cli := &client{base: *addr, hc: &http.Client{Timeout: 30 * time.Second}}

	switch cmd {

	case "version":
		fmt.Printf("authctl %s (%s)\n", version, buildDate)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		e := fs.String("e", "", "email")
		p := fs.String("p", "", "password (omit for anonymous account)")
		dev := fs.String("device", "cli", "device type")
		_ = fs.Parse(flag.Args()[1:])

		var resp sessionResponse
		err := cli.do(ctx, http.MethodPost, "/auth/register", map[string]any{
			"username": *u, "email": *e, "password": *p,
			"device": map[string]string{"type": *dev, "name": hostName()},
		}, &resp)
		if err != nil {
			fail(err)
		}
		if err := storeSession(resp); err != nil {
			fail(err)
		}
		printJSON(resp.User)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username or email")
		p := fs.String("p", "", "password")
		dev := fs.String("device", "cli", "device type")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}

		var resp sessionResponse
		err := cli.do(ctx, http.MethodPost, "/auth/login", map[string]any{
			"identifier": *u, "password": *p,
			"device": map[string]string{"type": *dev, "name": hostName()},
		}, &resp)
		if err != nil {
			fail(err)
		}
		if err := storeSession(resp); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "refresh":
		tf, err := loadTokens()
		if err != nil {
			fail(err)
		}
		var resp sessionResponse
		err = cli.do(ctx, http.MethodPost, "/auth/refresh", map[string]any{
			"refreshToken": tf.RefreshToken,
		}, &resp)
		if err != nil {
			fail(err)
		}
		if err := storeSession(resp); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "logout":
		fs := flag.NewFlagSet("logout", flag.ExitOnError)
		all := fs.Bool("all", false, "revoke every session of this account")
		_ = fs.Parse(flag.Args()[1:])

		tf, err := loadTokens()
		if err != nil {
			fail(err)
		}
		err = cli.do(ctx, http.MethodPost, "/auth/logout", map[string]any{
			"refreshToken": tf.RefreshToken, "allDevices": *all,
		}, nil)
		if err != nil {
			fail(err)
		}
		if err := clearTokens(); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "whoami":
		tf, err := loadTokens()
		if err != nil {
			fail(err)
		}
		cli.bearer = tf.AccessToken

		var profile json.RawMessage
		if err := cli.do(ctx, http.MethodGet, "/auth/me", nil, &profile); err != nil {
			fail(err)
		}
		printJSON(profile)

	default:
		usage()
	}
}

func hostName() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
