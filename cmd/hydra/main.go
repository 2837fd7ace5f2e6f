package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hydra/internal/adapter/api"
	"hydra/internal/infra/config"
	"hydra/internal/infra/logger"
	"hydra/internal/infra/tracer"
)

func main() {
	cmd := "serve"
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "help":
		showUsage()
		return
	case "serve":
		err = runServe()
	case "query":
		err = runQuery(os.Args[2:], os.Stdout)
	case "encrypt-secret":
		err = runEncryptSecret(os.Stdin, os.Stdout, os.Getenv("HYDRA_CONFIG_KEY"))
	case "doctor":
		err = runDoctor()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'hydra help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`hydra - multi-agent query routing service

USAGE:
    hydra [COMMAND] [FLAGS]

COMMANDS:
    serve            Run the systems HTTP API (default)
    query            Answer one question against a system file
                     hydra query --system system.yaml "question"
    encrypt-secret   Read a secret from stdin and print its enc: form
                     (requires HYDRA_CONFIG_KEY)
    doctor           Run health checks on your setup
    help             Show this help message

FLAGS:
    --config PATH    Config file path (default: ./config.yaml)
    --system PATH    System configuration for 'query' (YAML or JSON)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: HYDRA_* variables override config`)
}

// configPath returns --config, then HYDRA_CONFIG, then ./config.yaml.
func configPath() string {
	if p := flagValue(os.Args[1:], "--config"); p != "" {
		return p
	}
	if p := os.Getenv("HYDRA_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// flagValue finds "--name value" or "--name=value" in args.
func flagValue(args []string, name string) string {
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
	}
	return ""
}

// positional returns args that are neither flags nor flag values.
func positional(args []string, valueFlags ...string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--") {
			if !strings.Contains(arg, "=") {
				for _, f := range valueFlags {
					if arg == f {
						i++
						break
					}
				}
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}

func runServe() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	comp, err := buildComponents(cfg, newChatClient(cfg, log), log)
	if err != nil {
		return err
	}
	defer comp.Close()

	srv, err := api.NewServer(api.ServerDeps{
		Systems: comp.Systems,
		Tools:   comp.Tools,
		Config:  cfg.Server,
		Logger:  logger.Component(log, "api"),
	})
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("hydra starting",
		"addr", srv.BoundAddr(),
		"store", cfg.Store.Backend,
		"refine", cfg.Orchestrator.Refine,
		"mcp", cfg.Server.MCPEnabled,
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	return srv.Stop(shutdownCtx)
}

func runQuery(args []string, out io.Writer) error {
	systemPath := flagValue(args, "--system")
	if systemPath == "" {
		return errors.New(`usage: hydra query --system system.yaml "question"`)
	}
	query := strings.Join(positional(args, "--system", "--config"), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a question is required")
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Store.Backend = "memory"

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	sysCfg, err := loadSystemConfig(systemPath)
	if err != nil {
		return err
	}

	comp, err := buildComponents(cfg, newChatClient(cfg, log), log)
	if err != nil {
		return err
	}
	defer comp.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sys, err := comp.Systems.Create(ctx, sysCfg)
	if err != nil {
		return err
	}
	answer, err := comp.Systems.ProcessQuery(ctx, sys.ID, query)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, answer)
	return err
}

func runEncryptSecret(in io.Reader, out io.Writer, passphrase string) error {
	if passphrase == "" {
		return errors.New("HYDRA_CONFIG_KEY must be set")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("empty secret")
	}
	enc, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, "enc:"+enc)
	return err
}
