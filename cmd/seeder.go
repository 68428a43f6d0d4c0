package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlxDB.Close()

		db, err := initGormDB(sqlxDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{"nda_signatures", "payment_records", "applications", "user_permissions"} {
				if err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing application data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		applicantEmail := "amina@mail.com"
		seedUser(db, applicantEmail, "Amina Applicant", string(hash), "KE")

		adminEmail := "joseph@mail.com"
		seedUser(db, adminEmail, "Joseph Admin", string(hash), "NG")

		permissions := []struct {
			Name string
			Desc string
		}{
			{"admin", "full administrator"},
			{"review_applications", "Can move submitted applications into review"},
			{"approve_applications", "Can approve applications"},
			{"reject_applications", "Can reject applications"},
			{"view_applications", "Can view own applications"},
			{"create_applications", "Can create applications"},
		}

		for _, p := range permissions {
			var pid int64
			row := db.Raw("SELECT id FROM permissions WHERE name = ?", p.Name).Row()
			if err := row.Scan(&pid); err != nil {
				if err := db.Exec("INSERT INTO permissions (name, description, created_at) VALUES (?, ?, now())", p.Name, p.Desc).Error; err != nil {
					log.Fatalf("failed to insert permission %s: %v", p.Name, err)
				}
			}
		}

		grantPermissions(db, adminEmail, []string{
			"admin", "review_applications", "approve_applications", "reject_applications",
			"view_applications", "create_applications",
		})
		fmt.Println("Granted all permissions to admin user:", adminEmail)

		grantPermissions(db, applicantEmail, []string{"view_applications", "create_applications"})
		fmt.Println("Granted applicant permissions to:", applicantEmail)
	},
}

func seedUser(db *gorm.DB, email, name, passwordHash, country string) {
	var exists int
	row := db.Raw("SELECT 1 FROM users WHERE email = ?", email).Row()
	if err := row.Scan(&exists); err == nil {
		fmt.Printf("user %s already exists; will ensure permissions\n", email)
		return
	}

	if err := db.Exec(
		"INSERT INTO users (email, name, password_hash, country, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, true, now(), now())",
		email, name, passwordHash, country,
	).Error; err != nil {
		log.Fatalf("failed to insert user %s: %v", email, err)
	}
	fmt.Println("Seeded user:", email)
}

func grantPermissions(db *gorm.DB, email string, permissionNames []string) {
	var userID int64
	if err := db.Raw("SELECT id FROM users WHERE email = ?", email).Row().Scan(&userID); err != nil {
		log.Fatalf("failed to lookup user id for %s: %v", email, err)
	}

	for _, permName := range permissionNames {
		var pid int64
		if err := db.Raw("SELECT id FROM permissions WHERE name = ?", permName).Row().Scan(&pid); err != nil {
			log.Fatalf("permission not found %s: %v", permName, err)
		}

		var exists int
		if err := db.Raw("SELECT 1 FROM user_permissions WHERE user_id = ? AND permission_id = ?", userID, pid).Row().Scan(&exists); err == nil {
			continue
		}

		if err := db.Exec("INSERT INTO user_permissions (user_id, permission_id, granted_by, created_at) VALUES (?, ?, NULL, now())", userID, pid).Error; err != nil {
			log.Fatalf("failed to grant permission %s to %s: %v", permName, email, err)
		}
	}
}
