package main

import (
	"fmt"
	"strings"

	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/spf13/cobra"
)

const minPasswordLength = 6

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage admin accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account, or reset the password of an existing one",
	Args:  cobra.NoArgs,
	RunE:  createUser,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List admin accounts",
	Args:  cobra.NoArgs,
	RunE:  listUsers,
}

var (
	username     string
	password     string
	generateTOTP bool
)

func init() {
	// User create flags
	userCreateCmd.Flags().StringVarP(&username, "username", "u", "", "Username (required)")
	userCreateCmd.Flags().StringVarP(&password, "password", "p", "", "Password (required)")
	userCreateCmd.Flags().BoolVar(&generateTOTP, "generate-totp", false, "Require a TOTP code at login and print its secret")

	userCreateCmd.MarkFlagRequired("username")
	userCreateCmd.MarkFlagRequired("password")

	// Add commands
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
}

func createUser(cmd *cobra.Command, args []string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	if err := initDB(); err != nil {
		return err
	}
	defer closeDB()

	// Hash password
	passwordHash, err := auth.HashPassword(password, cfg.Admin.BcryptCost)
	if err != nil {
		return err
	}

	var secret, otpURL string
	if generateTOTP {
		secret, otpURL, err = auth.GenerateTOTPSecret(username, cfg.Session.Issuer)
		if err != nil {
			return err
		}
	}

	adminRepo := repository.NewAdminRepository(database.DB)
	user := &models.AdminUser{
		Username:     username,
		PasswordHash: passwordHash,
		TOTPSecret:   secret,
	}

	created, err := adminRepo.Upsert(user)
	if err != nil {
		return fmt.Errorf("failed to save admin user: %w", err)
	}

	if created {
		fmt.Printf("%s admin user %q created (ID %d)\n", okFmt("OK"), user.Username, user.ID)
	} else {
		fmt.Printf("%s admin user %q updated\n", okFmt("OK"), user.Username)
	}

	if generateTOTP {
		fmt.Printf("\nTOTP Secret: %s\n", secret)
		fmt.Printf("TOTP URL:    %s\n", otpURL)
		fmt.Printf("\nAdd the URL to a TOTP app (Google Authenticator, Authy, etc.)\n")
	}

	return nil
}

func listUsers(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer closeDB()

	adminRepo := repository.NewAdminRepository(database.DB)
	users, err := adminRepo.List()
	if err != nil {
		return fmt.Errorf("failed to list admin users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No admin users found")
		return nil
	}

	fmt.Printf("\nTotal admin users: %d\n\n", len(users))
	fmt.Printf("%-5s %-20s %-6s %s\n", "ID", "Username", "TOTP", "Created")
	fmt.Println(strings.Repeat("-", 60))

	for _, user := range users {
		totpStr := "No"
		if user.TOTPEnabled() {
			totpStr = "Yes"
		}
		fmt.Printf("%-5d %-20s %-6s %s\n",
			user.ID,
			user.Username,
			totpStr,
			user.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}
