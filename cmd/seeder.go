package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample payees",
	Long:  `Seed the database with payees for development. With the stub processor their pockets start empty.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := db.Exec("DELETE FROM payees WHERE id NOT IN (SELECT recipient_id FROM transactions UNION SELECT user_id FROM payout_requests)").Error; err != nil {
				log.Fatalf("failed to clear payees: %v", err)
			}
			fmt.Println("Cleared payees without history")
		}

		payees := []struct {
			Name  string
			SdRef *string
		}{
			{"Coffee Corner", strPtr("pocket-coffee-corner")},
			{"Book Stall", strPtr("pocket-book-stall")},
			// left without a pocket so approved payments wait for assignment
			{"New Vendor", nil},
		}

		for _, p := range payees {
			var exists int
			row := db.Raw("SELECT 1 FROM payees WHERE name = ?", p.Name).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Printf("payee %s already exists\n", p.Name)
				continue
			}

			if err := db.Exec("INSERT INTO payees (name, sd_ref, created_at, updated_at) VALUES (?, ?, now(), now())", p.Name, p.SdRef).Error; err != nil {
				log.Fatalf("failed to insert payee %s: %v", p.Name, err)
			}
			fmt.Printf("Seeded payee: %s\n", p.Name)
		}

		fmt.Println("Payees seeded successfully")
	},
}

func strPtr(s string) *string { return &s }
