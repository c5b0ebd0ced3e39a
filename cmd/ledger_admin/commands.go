package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/secure-banking-ledger/internal/audit"
	"github.com/secure-banking-ledger/internal/config"
	"github.com/secure-banking-ledger/internal/core"
	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/data/mongo"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/logger"
	"github.com/secure-banking-ledger/internal/platform/messaging/consumers"
	"github.com/secure-banking-ledger/internal/platform/persistence"
)

const configName = "ledger_admin"

var commands = []subcommands.Command{
	&initCmd{},
	&hashPasswordCmd{},
	&accountsCmd{},
	&historyCmd{},
	&auditCmd{},
}

// adminFlags selects where the administrative password comes from
type adminFlags struct {
	passwordEnv string
}

func (a *adminFlags) register(f *flag.FlagSet) {
	f.StringVar(&a.passwordEnv, "password-env", "LEDGER_ADMIN_PASSWORD",
		"Environment variable holding the administrator password. When unset, the password is read from stdin.")
}

func (a *adminFlags) password(stdin io.Reader) (string, error) {
	if pw, ok := os.LookupEnv(a.passwordEnv); ok && pw != "" {
		return pw, nil
	}
	return readSecret(stdin)
}

// readSecret reads one line and strips the line ending
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given")
	}
	return line, nil
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configName)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLoggerTo(cfg, os.Stderr), nil
}

// openAuthorized opens the core and checks the administrator password
func openAuthorized(ctx context.Context, admin *adminFlags) (*core.Core, *config.Config, *slog.Logger, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	pw, err := admin.password(os.Stdin)
	if err != nil {
		return nil, nil, nil, err
	}

	c, err := core.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := c.AuthorizeAdmin(ctx, pw); err != nil {
		c.Close()
		return nil, nil, nil, err
	}
	return c, cfg, log, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return subcommands.ExitFailure
}

type initCmd struct{}

func (*initCmd) Name() string     { return "init" }
func (*initCmd) Synopsis() string { return "apply schema migrations and create the key file if missing" }
func (*initCmd) Usage() string {
	return `ledger_admin init

  Applies pending PostgreSQL migrations and loads the master key, creating
  it on first use. Existing data and keys are never touched.
`
}
func (*initCmd) SetFlags(*flag.FlagSet) {}

func (*initCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	c, err := core.Open(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	c.Close()

	fmt.Printf("Schema is up to date. Master key: %s\n", cfg.Crypto.KeyFilePath)
	return subcommands.ExitSuccess
}

type hashPasswordCmd struct{}

func (*hashPasswordCmd) Name() string { return "hash-password" }
func (*hashPasswordCmd) Synopsis() string {
	return "print ADMIN_PASSWORD_HASH and ADMIN_PASSWORD_SALT for a password read from stdin"
}
func (*hashPasswordCmd) Usage() string {
	return `echo <password> | ledger_admin hash-password
`
}
func (*hashPasswordCmd) SetFlags(*flag.FlagSet) {}

func (*hashPasswordCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, _, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	pw, err := readSecret(os.Stdin)
	if err != nil {
		return fail(err)
	}
	hash, salt, err := crypto.NewPasswordHasher(cfg.Crypto.PBKDF2Iterations).Hash(pw, "")
	if err != nil {
		return fail(err)
	}

	fmt.Printf("ADMIN_PASSWORD_HASH=%s\nADMIN_PASSWORD_SALT=%s\n", hash, salt)
	return subcommands.ExitSuccess
}

type accountsCmd struct {
	admin adminFlags
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list every account with masked number and holder" }
func (*accountsCmd) Usage() string {
	return `ledger_admin accounts [-password-env <VAR>]
`
}
func (p *accountsCmd) SetFlags(f *flag.FlagSet) { p.admin.register(f) }

func (p *accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c, _, _, err := openAuthorized(ctx, &p.admin)
	if err != nil {
		return fail(err)
	}
	defer c.Close()

	accounts, err := c.ListAccountsMasked(ctx)
	if err != nil {
		return fail(err)
	}
	if err := writeJSON(os.Stdout, accounts); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type historyCmd struct {
	admin     adminFlags
	accountID int64
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print the decrypted transaction history of one account" }
func (*historyCmd) Usage() string {
	return `ledger_admin history -id <account_id> [-password-env <VAR>]
`
}
func (p *historyCmd) SetFlags(f *flag.FlagSet) {
	p.admin.register(f)
	f.Int64Var(&p.accountID, "id", 0, "Account ID.")
}

func (p *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.accountID <= 0 {
		fmt.Fprintln(os.Stderr, "-id is required")
		return subcommands.ExitUsageError
	}

	c, _, _, err := openAuthorized(ctx, &p.admin)
	if err != nil {
		return fail(err)
	}
	defer c.Close()

	snapshot, err := c.GetAccountByID(ctx, p.accountID)
	if err != nil {
		return fail(err)
	}
	if snapshot == nil {
		return fail(fmt.Errorf("account %d not found", p.accountID))
	}

	entries, err := c.ListTransactionHistory(ctx, p.accountID)
	if err != nil {
		return fail(err)
	}

	out := struct {
		AccountNumber string      `json:"account_number"`
		Entries       interface{} `json:"entries"`
	}{
		AccountNumber: crypto.Mask(snapshot.AccountNumber, crypto.MaskAccount),
		Entries:       entries,
	}
	if err := writeJSON(os.Stdout, out); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type auditCmd struct {
	admin   adminFlags
	account string
	limit   int
	offset  int
	follow  bool
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "read the archived audit trail or follow the live stream" }
func (*auditCmd) Usage() string {
	return `ledger_admin audit -account <account_number> [-limit n] [-offset n]
ledger_admin audit -follow

  Without -follow, lists archived events for a full account number,
  newest first. With -follow, prints events from
  the audit stream as they arrive until interrupted.
`
}
func (p *auditCmd) SetFlags(f *flag.FlagSet) {
	p.admin.register(f)
	f.StringVar(&p.account, "account", "", "Account number to look up in the archive.")
	f.IntVar(&p.limit, "limit", 50, "Maximum number of archived events.")
	f.IntVar(&p.offset, "offset", 0, "Number of archived events to skip.")
	f.BoolVar(&p.follow, "follow", false, "Follow the audit stream instead of reading the archive.")
}

func (p *auditCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !p.follow && p.account == "" {
		fmt.Fprintln(os.Stderr, "either -account or -follow is required")
		return subcommands.ExitUsageError
	}

	c, cfg, log, err := openAuthorized(ctx, &p.admin)
	if err != nil {
		return fail(err)
	}
	defer c.Close()

	if p.follow {
		consumer := consumers.NewAuditConsumer(log, &cfg.Kafka)
		defer consumer.Close()

		err := consumer.Consume(ctx, func(_ context.Context, event *auditevent.Event) error {
			_, err := io.WriteString(os.Stdout, audit.FormatLine(event))
			return err
		})
		if err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := mongoDB.Close(context.Background()); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}()

	archive := mongo.NewAuditArchive(log, mongoDB.Database())
	events, err := archive.ListByAccountNumber(ctx, p.account, p.limit, p.offset)
	if err != nil {
		return fail(err)
	}
	if err := writeJSON(os.Stdout, events); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
