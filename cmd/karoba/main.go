package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	apiclient "github.com/karoba/wellness/pkg/api/client"
	"golang.org/x/term"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

const defaultAPIBase = "http://localhost:4000"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "users":
		err = commandUsers(args)
	case "profile":
		err = commandProfile(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	secret := strings.TrimSpace(*password)
	if secret == "" {
		var err error
		if secret, err = promptPassword("Password: "); err != nil {
			return err
		}
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = resp.Tokens.AccessToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", resp.User.Email, resp.User.Role)
	return nil
}

func commandUsers(args []string) error {
	if len(args) == 0 {
		return errors.New("users subcommand required (list|get|create|update|deactivate)")
	}
	switch args[0] {
	case "list":
		return usersList(args[1:])
	case "get":
		return usersGet(args[1:])
	case "create":
		return usersCreate(args[1:])
	case "update":
		return usersUpdate(args[1:])
	case "deactivate", "delete":
		return usersDeactivate(args[1:])
	default:
		return fmt.Errorf("unknown users subcommand: %s", args[0])
	}
}

func usersList(args []string) error {
	fs := flag.NewFlagSet("users list", flag.ExitOnError)
	page := fs.Int("page", 0, "Page number (default 1)")
	limit := fs.Int("limit", 0, "Page size (default 10)")
	includeInactive := fs.Bool("include-inactive", false, "Include deactivated accounts")
	fs.Parse(args)

	client, cfg, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	list, err := client.ListAccounts(ctx, cfg.AccessToken, apiclient.ListOptions{
		Page:            *page,
		Limit:           *limit,
		IncludeInactive: *includeInactive,
	})
	if err != nil {
		return err
	}
	if len(list.Users) == 0 {
		fmt.Println("no accounts found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tACTIVE\tCREATED")
	for _, u := range list.Users {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%t\t%s\n", u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.IsActive, u.CreatedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	p := list.Pagination
	fmt.Printf("page %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
	return nil
}

func usersGet(args []string) error {
	fs := flag.NewFlagSet("users get", flag.ExitOnError)
	id := fs.String("id", "", "Account ID")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	client, cfg, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	acct, err := client.GetAccount(ctx, cfg.AccessToken, *id)
	if err != nil {
		return err
	}
	return printAccount(os.Stdout, acct)
}

func usersCreate(args []string) error {
	fs := flag.NewFlagSet("users create", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	firstName := fs.String("first-name", "", "First name")
	lastName := fs.String("last-name", "", "Last name")
	phone := fs.String("phone", "", "Phone number")
	birthDate := fs.String("birth-date", "", "Birth date (YYYY-MM-DD)")
	interests := fs.String("interests", "", "Comma separated interests")
	role := fs.String("role", "", "Role (member|administrator)")
	fs.Parse(args)

	for name, v := range map[string]string{"email": *email, "first-name": *firstName, "last-name": *lastName, "phone": *phone} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}

	secret, err := promptPassword("Password for new account: ")
	if err != nil {
		return err
	}

	client, cfg, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	acct, err := client.CreateAccount(ctx, cfg.AccessToken, apiclient.CreateAccountInput{
		Email:     *email,
		Password:  secret,
		FirstName: *firstName,
		LastName:  *lastName,
		Phone:     *phone,
		BirthDate: strings.TrimSpace(*birthDate),
		Interests: splitList(*interests),
		Role:      strings.TrimSpace(*role),
	})
	if err != nil {
		return err
	}
	fmt.Printf("created account %s\n", acct.ID)
	return nil
}

func usersUpdate(args []string) error {
	fs := flag.NewFlagSet("users update", flag.ExitOnError)
	id := fs.String("id", "", "Account ID")
	firstName := fs.String("first-name", "", "First name")
	lastName := fs.String("last-name", "", "Last name")
	phone := fs.String("phone", "", "Phone number")
	birthDate := fs.String("birth-date", "", "Birth date (YYYY-MM-DD)")
	interests := fs.String("interests", "", "Comma separated interests (replaces the list)")
	role := fs.String("role", "", "Role (member|administrator)")
	version := fs.Int64("version", 0, "Expected version; the update fails if the account changed")
	resetPassword := fs.Bool("password", false, "Prompt for a new password")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	var input apiclient.UpdateAccountInput
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first-name":
			input.FirstName = firstName
		case "last-name":
			input.LastName = lastName
		case "phone":
			input.Phone = phone
		case "birth-date":
			input.BirthDate = birthDate
		case "interests":
			list := splitList(*interests)
			input.Interests = &list
		case "role":
			input.Role = role
		case "version":
			input.Version = version
		}
	})
	if *resetPassword {
		secret, err := promptPassword("New password: ")
		if err != nil {
			return err
		}
		input.Password = &secret
	}

	client, cfg, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	acct, err := client.UpdateAccount(ctx, cfg.AccessToken, *id, input)
	if err != nil {
		return err
	}
	fmt.Printf("updated account %s (version %d)\n", acct.ID, acct.Version)
	return nil
}

func usersDeactivate(args []string) error {
	fs := flag.NewFlagSet("users deactivate", flag.ExitOnError)
	id := fs.String("id", "", "Account ID")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	client, cfg, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	if err := client.DeactivateAccount(ctx, cfg.AccessToken, *id); err != nil {
		return err
	}
	fmt.Printf("deactivated account %s\n", *id)
	return nil
}

func commandProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	fs.Parse(args)

	client, cfg, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	acct, err := client.Profile(ctx, cfg.AccessToken)
	if err != nil {
		return err
	}
	return printAccount(os.Stdout, acct)
}

func printAccount(out io.Writer, acct apiclient.Account) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(acct)
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func authedClient() (*apiclient.Client, cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cliConfig{}, err
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, cliConfig{}, errors.New("not logged in; run karoba login first")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, cliConfig{}, err
	}
	return client, cfg, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "karoba", "config.json"), nil
}

func printUsage() {
	fmt.Printf("karoba CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	karoba login --email admin@karoba.test [--password secret] [--api http://localhost:4000]
	karoba users list [--page N] [--limit N] [--include-inactive]
	karoba users get --id <account-id>
	karoba users create --email <email> --first-name <name> --last-name <name> --phone <phone> [--birth-date YYYY-MM-DD] [--interests a,b] [--role member|administrator]
	karoba users update --id <account-id> [--first-name ..] [--last-name ..] [--phone ..] [--birth-date ..] [--interests ..] [--role ..] [--version N] [--password]
	karoba users deactivate --id <account-id>
	karoba profile
	karoba version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
