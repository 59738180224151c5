// Command token issues a signed dashboard token for a user, optionally scoped to one client.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"clientpulse/api/config"
	"clientpulse/api/utils"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	if err := issueToken(args, cfg.Auth.JWTSecret, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	return exitSuccess
}

// issueToken parses the command line and writes one token followed by a newline.
func issueToken(args []string, secret string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "user id placed in the token subject (required)")
	email := fs.String("email", "", "user email")
	client := fs.String("client", "", "restrict the token to one client id; empty grants every client")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("usage: token -user <id> [-email <addr>] [-client <id>] [-ttl 1h]: %w", err)
	}

	if strings.TrimSpace(*user) == "" {
		return errors.New("-user is required")
	}
	if *ttl <= 0 {
		return fmt.Errorf("-ttl must be positive, got %s", *ttl)
	}

	token, err := utils.NewTokenManager(secret, *ttl).GenerateJWT(*user, *email, *client)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
