package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mlilback/rc2SwiftClient-sub000/pkg/rest"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show the identity and expiry of a bearer token",
		Long: `Token decodes a bearer token without contacting the server. The token is
taken from --token or read from stdin; on a terminal it is not echoed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := tokenFlag
			if token == "" {
				var err error
				if token, err = readToken(cmd); err != nil {
					return err
				}
			}
			info, err := rest.InspectToken(token)
			if err != nil {
				return err
			}
			printTokenInfo(cmd.OutOrStdout(), info, time.Now())
			return nil
		},
	}
}

func readToken(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && f == os.Stdin && term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no token given")
	}
	return line, nil
}

func printTokenInfo(w io.Writer, info rest.TokenInfo, now time.Time) {
	fmt.Fprintf(w, "login:   %s\n", info.Login)
	fmt.Fprintf(w, "user id: %d\n", info.UserID)
	if info.ExpiresAt.IsZero() {
		fmt.Fprintln(w, "expires: never")
		return
	}
	state := "valid"
	if !now.Before(info.ExpiresAt) {
		state = "expired"
	}
	fmt.Fprintf(w, "expires: %s (%s)\n", info.ExpiresAt.UTC().Format(time.RFC3339), state)
}
