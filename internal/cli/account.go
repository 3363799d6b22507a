package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/session"
)

// readPassword reads without echo from a terminal, or one line otherwise
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newAuthCmd(a *app, use, short string, register bool) *cobra.Command {
	var email string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(cmd.Context(), a)
			if err != nil {
				return a.report(cmd, err)
			}
			if b.tokenless {
				return a.report(cmd, fmt.Errorf("the %s backend uses the keys from the configuration", a.cfg.Backend))
			}

			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return a.report(cmd, err)
			}

			s := session.New(cmd.Context(), b.svc, b.creds, a.log)
			creds := models.Credentials{Email: email, Password: password}
			if register {
				settle(s.Register(creds), s.Update)
			} else {
				settle(s.Login(creds), s.Update)
			}
			if !s.IsAuth() {
				return a.report(cmd, s.Err())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed in as %s\n", s.User().Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// newRegisterCmd creates the 'register' command.
func newRegisterCmd(a *app) *cobra.Command {
	return newAuthCmd(a, "register", "Create an account and sign in", true)
}

// newLoginCmd creates the 'login' command.
func newLoginCmd(a *app) *cobra.Command {
	return newAuthCmd(a, "login", "Sign in and keep the session", false)
}

// newLogoutCmd creates the 'logout' command.
func newLogoutCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(cmd.Context(), a)
			if err != nil {
				return a.report(cmd, err)
			}
			s := session.New(cmd.Context(), b.svc, b.creds, a.log)
			if err := s.Logout(yes); err != nil {
				if errors.Is(err, session.ErrNotConfirmed) {
					err = fmt.Errorf("%w, pass --yes to sign out", err)
				}
				return a.report(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Signed out")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm signing out")
	return cmd
}

// newWhoamiCmd creates the 'whoami' command.
func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account and its quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(cmd.Context(), a)
			if err != nil {
				return a.report(cmd, err)
			}
			s, err := a.signedIn(cmd.Context(), b)
			if err != nil {
				return a.report(cmd, err)
			}
			printUser(cmd.OutOrStdout(), s.User())
			return nil
		},
	}
}

func printUser(w io.Writer, user models.User) {
	fmt.Fprintf(w, "Account: %s\n", user.Email)
	if user.DiskSpace > 0 {
		fmt.Fprintf(w, "Storage: %s of %s used\n", models.FormatSize(user.UsedSpace), models.FormatSize(user.DiskSpace))
	} else {
		fmt.Fprintf(w, "Storage: %s used\n", models.FormatSize(user.UsedSpace))
	}
	if user.HasAvatar() {
		fmt.Fprintf(w, "Avatar:  %s\n", *user.Avatar)
	} else {
		fmt.Fprintln(w, "Avatar:  none")
	}
}

// newAvatarCmd creates the 'avatar' command group.
func newAvatarCmd(a *app) *cobra.Command {
	avatarCmd := &cobra.Command{
		Use:   "avatar",
		Short: "Set or clear the account avatar",
	}

	avatarCmd.AddCommand(&cobra.Command{
		Use:   "set <image>",
		Short: "Upload an avatar image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.profile(cmd, func(s *session.Store) {
				settle(s.SetAvatar(args[0]), s.Update)
			})
		},
	})

	avatarCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.profile(cmd, func(s *session.Store) {
				settle(s.ClearAvatar(), s.Update)
			})
		},
	})

	return avatarCmd
}

func (a *app) profile(cmd *cobra.Command, change func(*session.Store)) error {
	b, err := a.open(cmd.Context(), a)
	if err != nil {
		return a.report(cmd, err)
	}
	s, err := a.signedIn(cmd.Context(), b)
	if err != nil {
		return a.report(cmd, err)
	}
	change(s)
	if err := s.Err(); err != nil {
		return a.report(cmd, err)
	}
	printUser(cmd.OutOrStdout(), s.User())
	return nil
}
