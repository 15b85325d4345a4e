package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
	"github.com/pawhaven/pawhaven/domain/valueobject"
	"github.com/pawhaven/pawhaven/infrastructure/adapter/postgres"
	"github.com/pawhaven/pawhaven/infrastructure/config"
	"github.com/pawhaven/pawhaven/infrastructure/service/password"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type options struct {
	email string
	role  string
}

func main() {
	var opts options
	flag.StringVar(&opts.email, "email", "", "account email (required)")
	flag.StringVar(&opts.role, "role", string(entity.RoleAdmin), "account role")
	migrate := flag.Bool("migrate", false, "apply pending migrations first")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if *migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	account, err := createAccount(ctx, opts, postgres.NewAccountRepository(db), password.NewBcryptPasswordService(10), os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}

	fmt.Printf("Account created\n")
	fmt.Printf("  ID:    %s\n", account.ID)
	fmt.Printf("  Email: %s\n", account.Email)
	fmt.Printf("  Role:  %s\n", account.Role)
}

func createAccount(ctx context.Context, opts options, repo outbound.AccountRepository, hasher outbound.PasswordService, w io.Writer) (*entity.Account, error) {
	role, err := entity.ParseRole(opts.role)
	if err != nil {
		return nil, err
	}

	pw, err := promptPassword(w)
	if err != nil {
		return nil, err
	}

	creds, err := valueobject.NewCredentials(opts.email, pw)
	if err != nil {
		return nil, err
	}
	if err := valueobject.ValidateNewPassword(pw); err != nil {
		return nil, err
	}

	hash, err := hasher.HashPassword(creds.Password())
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := entity.NewAccount(uuid.New().String(), creds.Email(), hash, role)
	if err := repo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// promptPassword reads the password twice without echo.
func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return strings.TrimRight(string(first), "\r\n"), nil
}
