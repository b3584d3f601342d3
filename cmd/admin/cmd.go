package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

var migrateCommands = map[string]struct{}{
	"up": {}, "up-by-one": {}, "down": {}, "redo": {}, "reset": {}, "status": {}, "version": {},
}

type userCreator interface {
	Create(ctx context.Context, req dto.CreateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error)
}

type userFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type courseReindexer interface {
	Reindex(ctx context.Context) (int, error)
}

type tokenIssuer interface {
	IssueToken(user *models.User, ttl time.Duration) (string, time.Time, error)
}

type commandLine struct {
	migrate func(ctx context.Context, command string) error
	users   userCreator
	finder  userFinder
	courses courseReindexer
	tokens  tokenIssuer
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND                                    - run goose (up, up-by-one, down, redo, reset, status, version)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME -role ROLE         - create a user; the password is prompted next")
	fmt.Fprintln(cli.out, "  reindex                                            - rebuild the lecture index from every course")
	fmt.Fprintln(cli.out, "  token -email EMAIL [-ttl 1h]                       - sign an access token for local testing")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if _, ok := migrateCommands[args[2]]; !ok {
			return fmt.Errorf("%q: no such command", args[2])
		}
		return cli.migrate(ctx, args[2])

	case "adduser":
		cmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		email := cmd.String("email", "", "The user's email.")
		name := cmd.String("name", "", "The user's full name.")
		role := cmd.String("role", string(models.RoleStudent), "ADMIN, INSTRUCTOR or STUDENT.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" || *name == "" {
			cmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cmd.Usage()
			return errHelp
		}
		user, err := cli.users.Create(ctx, dto.CreateUserRequest{
			Email:    *email,
			FullName: *name,
			Role:     models.UserRole(strings.ToUpper(*role)),
			Password: string(pwd),
		}, "", models.RequestMeta{UserAgent: "gurukul-admin"})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created %s %s (%s)\n", user.Role, user.Email, user.ID)
		return nil

	case "reindex":
		n, err := cli.courses.Reindex(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "reindexed %d courses\n", n)
		return nil

	case "token":
		cmd := flag.NewFlagSet("token", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		email := cmd.String("email", "", "The user's email.")
		ttl := cmd.Duration("ttl", time.Hour, "Token lifetime.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		user, err := cli.finder.FindByEmail(ctx, strings.ToLower(*email))
		if err != nil {
			return fmt.Errorf("find user %s: %w", *email, err)
		}
		if !user.Active {
			return fmt.Errorf("user %s is inactive", *email)
		}
		token, expiresAt, err := cli.tokens.IssueToken(user, *ttl)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}
