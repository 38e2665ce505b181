package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/topiga/currency/internal/config"
	"github.com/topiga/currency/internal/logger"
	"github.com/topiga/currency/internal/models"
	"github.com/topiga/currency/internal/service"
)

const usageText = `currency -- Currency converter.
Usage:   currency FROM TO amount
Example: currency USD EUR 123.45
`

// NewRootCmd creates the currency command reading the process environment.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithEnv(os.LookupEnv)
}

// NewRootCmdWithEnv creates the currency command with an explicit environment
// lookup. The command has no subcommands; anything but three positional
// arguments, help requests and flag errors included, prints the usage text
// to stderr and succeeds.
func NewRootCmdWithEnv(lookupEnv func(string) (string, bool)) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "currency FROM TO AMOUNT",
		Short:   "Currency converter",
		Long:    "Convert AMOUNT from currency FROM to currency TO using hourly cached exchange rates.",
		Example: "  currency USD EUR 123.45",
		// Wrong arity prints usage and succeeds, so validation happens in RunE.
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				fmt.Fprint(cmd.ErrOrStderr(), usageText)
				return nil
			}

			cfg, err := config.LoadWithLookup(lookupEnv)
			if err != nil {
				return err
			}
			if debug {
				cfg.LogLevel = "debug"
			}
			return runConvert(cmd.Context(), cfg, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	// "currency EUR USD -5" must not treat -5 as a flag
	cmd.Flags().SetInterspersed(false)
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		fmt.Fprint(cmd.ErrOrStderr(), usageText)
	})
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, _ error) error {
		fmt.Fprint(cmd.ErrOrStderr(), usageText)
		return nil
	})

	return cmd
}

func runConvert(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	log := logger.New(cfg.LogLevel, logger.FormatText, stderr)

	ratesService := service.NewRatesService(cfg, log).WithRefreshErrorHandler(func(err error) {
		fmt.Fprintf(stderr, "Warning: unable to refresh currency rates (%v). Trying to use previous data.\n", refreshCause(err))
	})

	result, err := ratesService.Convert(ctx, parseQuery(args, log))
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, result.String())
	return nil
}

// parseQuery upper-cases both codes. An amount that is not a number becomes 0.
func parseQuery(args []string, log *logrus.Logger) models.ConvertQuery {
	amount, err := strconv.ParseFloat(args[2], 64)
	// out of range values keep their ±Inf
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		log.WithField("amount", args[2]).Debug("amount is not a number, using 0")
		amount = 0
	}

	return models.ConvertQuery{
		From:   strings.ToUpper(args[0]),
		To:     strings.ToUpper(args[1]),
		Amount: amount,
	}
}

func refreshCause(err error) error {
	if cause := errors.Unwrap(err); cause != nil {
		return cause
	}
	return err
}

// FormatError renders err as the single line printed before exiting with status 1.
func FormatError(err error) string {
	var serviceError *service.ServiceError
	if errors.As(err, &serviceError) && serviceError.Type != service.ErrorTypeMalformedCache {
		return "Error: " + serviceError.Message
	}
	return "Error: " + err.Error()
}
