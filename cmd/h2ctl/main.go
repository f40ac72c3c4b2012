package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/h2trust/hydroledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	asJSON    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "h2ctl",
	Short: "Hydrogen credit ledger CLI",
	Long: `h2ctl is the command-line interface for the green hydrogen credit ledger.

It lets producers submit production batches, certifiers verify and mint,
and holders transfer or retire credits from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".h2ctl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.h2ctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledger service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON output")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(creditCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client carrying the saved session token, if any.
func newClient() *client.Client {
	opts := []client.Option{}
	if token := loadToken(); token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

func tokenPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".h2ctl", "token")
}

func loadToken() string {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return string(b)
}

func saveToken(token string) error {
	path := tokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ── login ────────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and save a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("H2CTL_PASSWORD")
		if password == "" {
			return fmt.Errorf("set H2CTL_PASSWORD with your account password")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		session, err := client.New(serverURL).Login(ctx, args[0], password)
		if err != nil {
			return err
		}
		if err := saveToken(session.Token); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Println("logged in; token saved to", tokenPath())
		return nil
	},
}

// ── batch ────────────────────────────────────────────────────────────────────

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage production batches",
}

var (
	batchKg       float64
	batchKwh      float64
	batchRegion   string
	batchDate     string
	batchCerts    []string
	batchNotes    string
	batchStatus   string
	rejectReason  string
	approveKwhKg  float64
	approveScore  int
	approveCI     float64
	approveNotes  string
)

func init() {
	submitCmd := &cobra.Command{
		Use:   "submit <batch-number>",
		Short: "Submit a production batch for verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.Parse("2006-01-02", batchDate)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			batch, err := newClient().SubmitBatch(ctx, client.SubmitBatchRequest{
				BatchNumber:      args[0],
				KgProduced:       batchKg,
				KwhUsed:          batchKwh,
				Region:           batchRegion,
				ProductionDate:   date,
				CertificateFiles: batchCerts,
				Notes:            batchNotes,
			})
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(batch)
				return nil
			}
			fmt.Printf("batch %s submitted (%s)\nevidence hash: %s\n", batch.BatchNumber, batch.ID, batch.EvidenceHash)
			return nil
		},
	}
	submitCmd.Flags().Float64Var(&batchKg, "kg", 0, "kilograms of hydrogen produced (required)")
	submitCmd.Flags().Float64Var(&batchKwh, "kwh", 0, "kilowatt-hours of energy used")
	submitCmd.Flags().StringVar(&batchRegion, "region", "", "production region (required)")
	submitCmd.Flags().StringVar(&batchDate, "date", "", "production date, YYYY-MM-DD (required)")
	submitCmd.Flags().StringSliceVar(&batchCerts, "cert", nil, "certificate file reference (repeatable, required)")
	submitCmd.Flags().StringVar(&batchNotes, "notes", "", "free-form notes")
	_ = submitCmd.MarkFlagRequired("kg")
	_ = submitCmd.MarkFlagRequired("region")
	_ = submitCmd.MarkFlagRequired("date")
	_ = submitCmd.MarkFlagRequired("cert")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List batches visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			batches, err := newClient().ListBatches(ctx, batchStatus, 100, 0)
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(batches)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BATCH\tKG\tKWH\tREGION\tSTATUS\tID")
			for _, b := range batches {
				fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%s\t%s\t%s\n",
					b.BatchNumber, b.KgProduced, b.KwhUsed, b.Region, b.Status, b.ID)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&batchStatus, "status", "", "filter by status (pending, approved, rejected, minted)")

	verifyCmd := &cobra.Command{
		Use:   "verify <batch-id>",
		Short: "Run the certifier assessment without changing batch state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			result, err := newClient().VerifyBatch(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	approveCmd := &cobra.Command{
		Use:   "approve <batch-id>",
		Short: "Approve a pending batch with a verification result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			verification := map[string]any{
				"kwh_per_kg":       approveKwhKg,
				"trust_score":      approveScore,
				"carbon_intensity": approveCI,
				"anomaly_flags":    []string{},
			}
			batch, err := newClient().ApproveBatch(ctx, args[0], verification, approveNotes)
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(batch)
				return nil
			}
			fmt.Printf("batch %s approved\n", batch.BatchNumber)
			return nil
		},
	}
	approveCmd.Flags().Float64Var(&approveKwhKg, "kwh-per-kg", 0, "measured efficiency ratio")
	approveCmd.Flags().IntVar(&approveScore, "trust-score", 0, "trust score (0-100)")
	approveCmd.Flags().Float64Var(&approveCI, "carbon-intensity", 0, "carbon intensity")
	approveCmd.Flags().StringVar(&approveNotes, "notes", "", "approval notes")

	rejectCmd := &cobra.Command{
		Use:   "reject <batch-id>",
		Short: "Reject a pending batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			batch, err := newClient().RejectBatch(ctx, args[0], rejectReason)
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(batch)
				return nil
			}
			fmt.Printf("batch %s rejected\n", batch.BatchNumber)
			return nil
		},
	}
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "rejection reason (required)")
	_ = rejectCmd.MarkFlagRequired("reason")

	batchCmd.AddCommand(submitCmd, listCmd, verifyCmd, approveCmd, rejectCmd)
}

// ── credit ───────────────────────────────────────────────────────────────────

var creditCmd = &cobra.Command{
	Use:   "credit",
	Short: "Manage credits",
}

var (
	creditStatus   string
	transferTo     string
	transferAmount float64
	retireReason   string
	retireAmount   float64
)

func init() {
	mintCmd := &cobra.Command{
		Use:   "mint <batch-id>",
		Short: "Mint a credit from an approved batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			credit, err := newClient().MintCredit(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(credit)
				return nil
			}
			fmt.Printf("minted %s (supply %.1f kg) id %s\n", credit.CreditID, credit.Supply, credit.ID)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List credits visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			credits, err := newClient().ListCredits(ctx, creditStatus, 100, 0)
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(credits)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREDIT\tSUPPLY\tSTATUS\tOWNER\tID")
			for _, cr := range credits {
				fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\t%s\n",
					cr.CreditID, cr.Supply, cr.Status, cr.OwnerID, cr.ID)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&creditStatus, "status", "", "filter by status (active, retired)")

	transferCmd := &cobra.Command{
		Use:   "transfer <credit-id>",
		Short: "Transfer credit supply to another participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			credit, err := newClient().TransferCredit(ctx, args[0], transferTo, transferAmount)
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(credit)
				return nil
			}
			fmt.Printf("credit %s transferred to %s\n", credit.CreditID, credit.OwnerID)
			return nil
		},
	}
	transferCmd.Flags().StringVar(&transferTo, "to", "", "recipient user ID (required)")
	transferCmd.Flags().Float64Var(&transferAmount, "amount", 0, "amount in kg (required)")
	_ = transferCmd.MarkFlagRequired("to")
	_ = transferCmd.MarkFlagRequired("amount")

	retireCmd := &cobra.Command{
		Use:   "retire <credit-id>",
		Short: "Permanently retire credit supply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			credit, err := newClient().RetireCredit(ctx, args[0], retireReason, retireAmount)
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(credit)
				return nil
			}
			fmt.Printf("credit %s retired; remaining supply %.1f kg\n", credit.CreditID, credit.Supply)
			return nil
		},
	}
	retireCmd.Flags().StringVar(&retireReason, "reason", "", "retirement reason (required)")
	retireCmd.Flags().Float64Var(&retireAmount, "amount", 0, "amount in kg (0 retires everything)")
	_ = retireCmd.MarkFlagRequired("reason")

	historyCmd := &cobra.Command{
		Use:   "history <credit-id>",
		Short: "Show a credit's provenance event trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			events, err := newClient().CreditHistory(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(events)
			return nil
		},
	}

	creditCmd.AddCommand(mintCmd, listCmd, transferCmd, retireCmd, historyCmd)
}

// ── events ───────────────────────────────────────────────────────────────────

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the append-only credit event log",
}

func init() {
	overviewCmd := &cobra.Command{
		Use:   "overview",
		Short: "Show event log length and root hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			o, err := newClient().EventLogOverview(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(o)
				return nil
			}
			fmt.Printf("entries: %d\nroot:    %s\n", o.Entries, o.Root)
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the full event log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			res, err := newClient().VerifyEventLog(ctx)
			if err != nil {
				return err
			}
			if res.Valid {
				fmt.Println("event log OK")
				return nil
			}
			return fmt.Errorf("event log INVALID: %s", res.Error)
		},
	}

	eventsCmd.AddCommand(overviewCmd, verifyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the h2ctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("h2ctl", version)
	},
}
