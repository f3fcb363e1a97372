package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/stoik/phishing-risk/internal/adapters/mailsource"
	"github.com/stoik/phishing-risk/internal/application"
	"github.com/stoik/phishing-risk/internal/config"
	"github.com/stoik/phishing-risk/internal/di"
	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/logging"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
)

// exitHighRisk is returned when at least one analyzed email is high risk
const exitHighRisk = 2

type output struct {
	Reports []domain.RiskReport `json:"reports"`
	Summary application.Summary `json:"summary"`
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	input := flag.String("input", "", "Email to analyze: .eml, mbox, .json record(s), a directory, or - for stdin")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	jsonLogs := flag.Bool("json", false, "Write logs as JSON")
	noWhois := flag.Bool("no-whois", false, "Skip domain registration lookups")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -input <path>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Prints one phishing risk report per email as JSON.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *input == "" && flag.NArg() > 0 {
		*input = flag.Arg(0)
	}
	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := config.New(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *noWhois {
		cfg.Set("whois.enabled", false)
	}

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLogs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	container, err := di.BuildContainer(cfg)
	if err != nil {
		logger.Fatal("Failed to build dependency container", zap.Error(err))
	}
	if err := container.Decorate(func(*zap.Logger) *zap.Logger { return logger }); err != nil {
		logger.Fatal("Failed to install console logger", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var highRisk bool
	err = container.Invoke(func(service *application.AnalysisService, stack *di.WhoisStack) error {
		defer stack.Close()

		reports, err := analyze(ctx, service, *input, logger)
		if err != nil {
			return err
		}

		summary := service.Summarize(reports)
		highRisk = summary.HighRisk > 0

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(output{Reports: reports, Summary: summary})
	})
	if err != nil {
		logger.Error("Analysis failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	if highRisk {
		logger.Sync()
		os.Exit(exitHighRisk)
	}
}

func analyze(ctx context.Context, service *application.AnalysisService, input string, logger *zap.Logger) ([]domain.RiskReport, error) {
	if input == "-" {
		email, err := mailsource.ParseMessage(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to parse message from stdin: %w", err)
		}
		return []domain.RiskReport{service.AnalyzeEmail(ctx, email)}, nil
	}

	return service.AnalyzeSource(ctx, sourceFor(input, logger))
}

func sourceFor(path string, logger *zap.Logger) ports.EmailSource {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return mailsource.NewJSONSource(path)
	}
	return mailsource.NewFileSource(path, logger)
}
