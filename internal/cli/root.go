package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/spf13/cobra"

	"kasbuku/internal/automation"
	"kasbuku/internal/config"
	"kasbuku/internal/core"
	"kasbuku/internal/ledger"
)

var (
	dryRun    bool
	basisFlag string
)

// NewRootCmd builds the kasbuku-admin command tree. The ledger service is
// constructed lazily so `--help` never touches the database.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kasbuku-admin",
		Short:         "Maintenance commands for the kasbuku ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newVerifyCmd(cfg),
		newRebuildCmd(cfg),
		newFeesCmd(cfg),
		newInterestCmd(cfg),
		newInstallmentsCmd(cfg),
		newAccountsCmd(cfg),
	)

	cc.Init(&cc.Config{
		RootCmd:  rootCmd,
		Headings: cc.HiCyan + cc.Bold + cc.Underline,
		Commands: cc.HiYellow + cc.Bold,
		Example:  cc.Italic,
		ExecName: cc.Bold,
		Flags:    cc.Bold,
	})

	return rootCmd
}

func withLedger(cfg *config.Config, fn func(svc *ledger.Service) error) error {
	repo := OpenStorage(cfg.SQLiteDBPath)
	defer repo.Close()
	return fn(ledger.NewService(repo, nil))
}

func newVerifyCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check cached balances and summary aggregates against the transaction log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cfg, func(svc *ledger.Service) error {
				report, err := svc.Verify(cmd.Context())
				if err != nil {
					return err
				}
				printJSON(report)
				if !report.Clean() {
					return report.Err()
				}
				fmt.Println("ledger is consistent")
				return nil
			})
		},
	}
}

func newRebuildCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Drop and replay all summary aggregates from the transaction log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cfg, func(svc *ledger.Service) error {
				if err := svc.Rebuild(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("summaries rebuilt")
				return nil
			})
		},
	}
}

func newFeesCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Run the monthly admin fee batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cfg, cmd, func(engine *automation.Engine, opts automation.RunOptions) (*automation.BatchResult, error) {
				return engine.RunAdminFees(cmd.Context(), opts)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be posted without writing")
	return cmd
}

func newInterestCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interest",
		Short: "Run the monthly interest batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cfg, cmd, func(engine *automation.Engine, opts automation.RunOptions) (*automation.BatchResult, error) {
				return engine.RunInterest(cmd.Context(), opts)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be posted without writing")
	cmd.Flags().StringVar(&basisFlag, "basis", "", "interest basis: current or minimum (default from config)")
	return cmd
}

func newInstallmentsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "installments",
		Short: "Post this month's payment for every active installment plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cfg, cmd, func(engine *automation.Engine, opts automation.RunOptions) (*automation.BatchResult, error) {
				return engine.RunInstallments(cmd.Context(), opts)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be posted without writing")
	return cmd
}

func newAccountsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with their cached balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cfg, func(svc *ledger.Service) error {
				accounts, err := svc.Repo().Queries().ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				for _, a := range accounts {
					fmt.Printf("%s  %-12s  %-30s  %s\n",
						a.ID, a.Kind, a.Name, core.Format(a.CurrentBalance, cfg.Locale))
				}
				return nil
			})
		},
	}
}

func runBatch(cfg *config.Config, cmd *cobra.Command, run func(*automation.Engine, automation.RunOptions) (*automation.BatchResult, error)) error {
	basis := automation.InterestBasis(cfg.InterestBasis)
	if basisFlag != "" {
		basis = automation.InterestBasis(basisFlag)
	}

	return withLedger(cfg, func(svc *ledger.Service) error {
		engine := automation.NewEngine(svc, nil)
		result, err := run(engine, automation.RunOptions{
			Now:         time.Now().UTC(),
			DryRun:      dryRun,
			Basis:       basis,
			ItemTimeout: cfg.ItemTimeout,
		})
		if err != nil {
			return err
		}
		printJSON(result)
		return nil
	})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
