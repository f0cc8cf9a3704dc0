package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal"
	"github.com/spf13/cobra"
)

var relocateCmd = &cobra.Command{
	Use:   "relocate",
	Short: "Replay the relocation of an approved payment",
	Long:  `Reopen a failed or abandoned relocation and move the funds to the payee pocket now`,
	Run: func(cmd *cobra.Command, args []string) {
		runRelocate()
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Refresh and print a payee pocket balance",
	Run: func(cmd *cobra.Command, args []string) {
		runBalance()
	},
}

var (
	relocateTxID int64
	balancePayee int64
)

func runRelocate() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	app, err := newApp(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer shutdownApp(app)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := app.Settlement.Replay(ctx, relocateTxID); err != nil {
		app.Logger.Error("relocation replay failed", "transaction_id", relocateTxID, "error", err)
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		return
	}

	tx, err := app.Payments.GetByID(ctx, relocateTxID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay finished but transaction could not be read: %v\n", err)
		return
	}
	fmt.Printf("transaction %d: %s\n", tx.ID, tx.Status)
}

func runBalance() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	app, err := newApp(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer shutdownApp(app)

	ctx, cancel := internal.WithTimeout(context.Background(), config.Processor.Timeout)
	defer cancel()

	view, err := app.Payees.RefreshBalance(ctx, balancePayee)
	if err != nil {
		fmt.Fprintf(os.Stderr, "balance refresh failed: %v\n", err)
		return
	}
	out, _ := json.MarshalIndent(view, "", "  ")
	fmt.Println(string(out))
}

func init() {
	relocateCmd.Flags().Int64Var(&relocateTxID, "transaction", 0, "Transaction id to relocate")
	_ = relocateCmd.MarkFlagRequired("transaction")
	balanceCmd.Flags().Int64Var(&balancePayee, "payee", 0, "Payee id")
	_ = balanceCmd.MarkFlagRequired("payee")

	rootCmd.AddCommand(relocateCmd)
	rootCmd.AddCommand(balanceCmd)
}
