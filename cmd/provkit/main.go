package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"provkit/internal/app"
	"provkit/internal/credentials"
	"provkit/internal/gpo"
	"provkit/internal/kvstore"
	"provkit/internal/logscan"
	"provkit/internal/parser"
)

// version is set at build time via ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "provkit",
	Short:   "Provkit - Database provisioning sequencer for customer environments",
	Version: version,
	Long: `Provkit provisions and upgrades customer database environments: it creates
schemas from templates, imports customer configuration, runs schema upgrades
and provisions reader credentials, all as one ordered, auditable sequence.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full provisioning sequence",
	Long: `Run executes the complete provisioning sequence for a customer profile:
connectivity and artifact checks, schema creation, configuration import,
schema upgrades and reader credential provisioning.

Recoverable failures are collected as incidents and reported at the end;
fatal failures abort the run immediately.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if err := app.Run(cmd.Context(), file, dryRun); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a provisioning profile without executing anything",
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		p, err := app.Validate(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Profile is valid: %s (schema %s)\n", p.Customer.Name, p.Customer.SchemaVersion)
	},
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Show the provisioned reader credentials, creating them if absent",
	Long: `Credentials looks up the reader account in the persistent settings store
and prints it. Missing values are generated and persisted, so repeated
invocations always print the same account.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		p, err := parser.Parse(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		store, err := kvstore.Open(p.Paths.StoreFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close settings store", "error", err)
			}
		}()

		reader, err := credentials.EnsureReader(store, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Username: %s\n", reader.Username)
		fmt.Printf("Password: %s\n", reader.Password)
		fmt.Printf("Server:   %s\n", reader.ServerName)
	},
}

var verifyLogsCmd = &cobra.Command{
	Use:   "verify-logs",
	Short: "Scan the newest upgrade log for error markers",
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		p, err := parser.Parse(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		findings, err := logscan.Verify(p.Paths.LogDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		if len(findings) == 0 {
			fmt.Println("Upgrade log verified: no error markers found.")
			return
		}

		fmt.Fprintf(os.Stderr, "Upgrade log verification found %d problem(s):\n", len(findings))
		for _, finding := range findings {
			fmt.Fprintf(os.Stderr, "  %s\n", finding)
		}
		os.Exit(1)
	},
}

var gpoCmd = &cobra.Command{
	Use:   "gpo <report-directory>",
	Short: "List group policy assignments from exported policy reports",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		policies, warnings, err := gpo.ParseDir(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}
		if len(policies) == 0 {
			fmt.Println("No policy reports found.")
			return
		}
		for _, policy := range policies {
			fmt.Printf("%s\t%s\n", policy.Name, policy.Path)
		}
	},
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Path to the provisioning profile YAML file (required)")
	runCmd.Flags().Bool("dry-run", false, "Print the step table without executing any step")
	if err := runCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for run command", "error", err)
	}
	rootCmd.AddCommand(runCmd)

	validateCmd.Flags().StringP("file", "f", "", "Path to the provisioning profile YAML file (required)")
	if err := validateCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for validate command", "error", err)
	}
	rootCmd.AddCommand(validateCmd)

	credentialsCmd.Flags().StringP("file", "f", "", "Path to the provisioning profile YAML file (required)")
	if err := credentialsCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for credentials command", "error", err)
	}
	rootCmd.AddCommand(credentialsCmd)

	verifyLogsCmd.Flags().StringP("file", "f", "", "Path to the provisioning profile YAML file (required)")
	if err := verifyLogsCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for verify-logs command", "error", err)
	}
	rootCmd.AddCommand(verifyLogsCmd)

	rootCmd.AddCommand(gpoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
