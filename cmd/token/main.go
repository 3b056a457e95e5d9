package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"configtree/internal/auth"
	"configtree/internal/config"
)

type roleList []string

func (l *roleList) String() string { return strings.Join(*l, ",") }
func (l *roleList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

// token mints a bearer token for the server's mutating routes, signed with
// auth.jwt_secret from the server config.
func main() {
	var roles roleList
	var subject string
	var ttl time.Duration
	flag.StringVar(&subject, "sub", "operator", "token subject")
	flag.Var(&roles, "role", "role claim (repeatable)")
	flag.DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.AuthEnabled() {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret is not set; auth is disabled")
		os.Exit(1)
	}

	token, err := auth.GenerateAccessToken(subject, roles, cfg.Auth.JWTSecret, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
