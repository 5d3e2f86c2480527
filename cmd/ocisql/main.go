package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/term"

	"github.com/tomyedwab/ocidb/oci/host"
	"github.com/tomyedwab/ocidb/oracle"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type bindFlags map[string]oracle.BindValue

func (b bindFlags) String() string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	return strings.Join(names, ",")
}

func (b bindFlags) Set(value string) error {
	name, v, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("bind must be name=value, got %q", value)
	}
	b[":"+strings.TrimPrefix(name, ":")] = oracle.String(v)
	return nil
}

type options struct {
	dataSource   string
	service      string
	user         string
	sysdba       bool
	createUser   bool
	serverOutput bool
	enqueue      string
	dequeue      string
	correlation  string
	binds        bindFlags
}

func main() {
	opts := options{binds: bindFlags{}}
	var verbose bool
	flag.StringVar(&opts.dataSource, "db", "ocidb.db", "SQLite file backing the database")
	flag.StringVar(&opts.service, "service", "localhost:1521/orcl", "Service to connect to")
	flag.StringVar(&opts.user, "user", "", "User name")
	flag.BoolVar(&opts.sysdba, "sysdba", false, "Connect AS SYSDBA")
	flag.BoolVar(&opts.createUser, "create-user", false, "Create the user with the given password before connecting")
	flag.BoolVar(&opts.serverOutput, "serveroutput", false, "Capture and print server output")
	flag.StringVar(&opts.enqueue, "enqueue", "", "Enqueue the statement argument as a RAW message on this queue")
	flag.StringVar(&opts.dequeue, "dequeue", "", "Dequeue one RAW message from this queue")
	flag.StringVar(&opts.correlation, "correlation", "", "Correlation id for -enqueue")
	flag.Var(opts.binds, "bind", "Bind a text value as name=value (repeatable)")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if opts.user == "" {
		fmt.Fprintln(os.Stderr, "usage: ocisql -user NAME [flags] [SQL]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := run(opts, strings.Join(flag.Args(), " "), logger); err != nil {
		logger.Error("ocisql failed", "error", err)
		if d := oracle.NativeDetail(err); d != nil {
			fmt.Fprintln(os.Stderr, d.Text)
		}
		os.Exit(1)
	}
}

func readPassword() (string, error) {
	if password, ok := os.LookupEnv("OCI_PASSWORD"); ok {
		return password, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", errors.New("OCI_PASSWORD is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(passwordBytes)), nil
}

func run(opts options, statement string, logger *slog.Logger) error {
	password, err := readPassword()
	if err != nil {
		return err
	}

	h, err := host.New(host.Config{DataSource: opts.dataSource, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", opts.dataSource, err)
	}
	defer h.Close()
	if opts.createUser {
		if err := h.CreateUser(opts.user, password, opts.sysdba); err != nil {
			return err
		}
	}

	conn := oracle.NewConnection(oracle.ConnectionConfig{
		Service:     oracle.ServiceFromString(opts.service),
		User:        opts.user,
		Password:    password,
		SysDBA:      opts.sysdba,
		Environment: oracle.NewEnvironment(h, oracle.WithLogger(logger)),
		Logger:      logger,
	})
	if err := conn.Open(); err != nil {
		return err
	}
	defer conn.Close()
	logger.Debug("Connected", "service", opts.service, "server_version", conn.ServerVersion())

	switch {
	case opts.enqueue != "":
		id, err := conn.Enqueue(opts.enqueue, "RAW", oracle.WithCorrelation(opts.correlation), oracle.WithPayload([]byte(statement)))
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"msg_id": id})
	case opts.dequeue != "":
		msg, err := conn.Dequeue(opts.dequeue, "RAW")
		if errors.Is(err, oracle.ErrQueueEmpty) {
			logger.Info("Queue is empty", "queue", opts.dequeue)
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"msg_id": msg.ID, "correlation": msg.Correlation, "payload": string(msg.Payload)})
	}

	if statement == "" {
		return errors.New("no SQL statement given")
	}
	if err := conn.SetAutoCommit(true); err != nil {
		return err
	}
	return execute(conn, statement, opts)
}

func execute(conn *oracle.Connection, statement string, opts options) error {
	cur, err := conn.Cursor()
	if err != nil {
		return err
	}
	defer cur.Close()

	var execOpts []oracle.ExecuteOption
	if opts.serverOutput {
		execOpts = append(execOpts, oracle.WithServerOutput())
	}
	if err := cur.Execute(statement, opts.binds, execOpts...); err != nil {
		return err
	}
	if out := cur.ServerOutput(); out != "" {
		fmt.Fprintln(os.Stderr, out)
	}

	columns, err := cur.Columns()
	if errors.Is(err, oracle.ErrUnsupportedType) {
		slog.Warn("Some columns cannot be decoded", "error", err)
	}
	if len(columns) == 0 {
		return printJSON(map[string]any{"affected": cur.Affected(), "sql_id": cur.SQLID()})
	}
	for row, err := range cur.All() {
		if err != nil {
			return err
		}
		if err := printJSON(row); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(line))
	return err
}
