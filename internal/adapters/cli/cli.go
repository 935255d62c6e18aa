package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"secops-console/internal/app"
)

// Usage lists the admin subcommands.
const Usage = `Usage: app <command> [args]

  migrate                                 apply database migrations
  signup <emp_number> <name> <email> <phone>
                                          create an operator account (password on stdin)
  verify <emp_number>                     check a password (on stdin) and print the profile
  withdraw <emp_number>                   deactivate an account (password on stdin)`

// Migrator applies schema migrations and reports the files it ran.
type Migrator func(ctx context.Context) ([]string, error)

// Run executes a one-shot admin command. args is os.Args[1:]; the first element is the
// subcommand name. Passwords are read from the first line of in.
func Run(ctx context.Context, svc app.ApplicationService, migrate Migrator, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(Usage)
	}

	switch args[0] {
	case "migrate":
		applied, err := migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		for _, name := range applied {
			fmt.Fprintf(out, "applied %s\n", name)
		}
		return nil

	case "signup":
		if len(args) != 5 {
			return errors.New(Usage)
		}
		password, err := readPassword(in)
		if err != nil {
			return err
		}
		user, err := svc.Signup(ctx, app.SignupRequest{
			EmpNumber: args[1], Password: password, Name: args[2], Email: args[3], Phone: args[4],
		})
		if err != nil {
			return describe("signup", err)
		}
		return printJSON(out, user)

	case "verify":
		if len(args) != 2 {
			return errors.New(Usage)
		}
		password, err := readPassword(in)
		if err != nil {
			return err
		}
		user, err := svc.AuthenticateUser(ctx, app.LoginRequest{EmpNumber: args[1], Password: password})
		if err != nil {
			return describe("verify", err)
		}
		return printJSON(out, user)

	case "withdraw":
		if len(args) != 2 {
			return errors.New(Usage)
		}
		password, err := readPassword(in)
		if err != nil {
			return err
		}
		if err := svc.Withdraw(ctx, args[1], password); err != nil {
			return describe("withdraw", err)
		}
		fmt.Fprintf(out, "account %s withdrawn\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown command: %s\n\n%s", args[0], Usage)
	}
}

func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(os.Stderr, "password: ")
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required on stdin")
	}
	return line, nil
}

// describe turns account errors into the message an operator needs.
func describe(op string, err error) error {
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%s: %s", op, strings.Join(ve.Messages, "; "))
	}
	var ae *app.Error
	if errors.As(err, &ae) {
		return fmt.Errorf("%s: %s", op, ae.Detail)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
