package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adamscao/licenseserver/internal/api/handlers"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage license keys",
}

var keyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new license key",
	Args:  cobra.NoArgs,
	RunE:  createKey,
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all license keys",
	Args:  cobra.NoArgs,
	RunE:  listKeys,
}

var keyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a license key",
	Args:  cobra.ExactArgs(1),
	RunE:  showKey,
}

var keyStatusCmd = &cobra.Command{
	Use:   "status <id> <active|suspended|revoked|expired>",
	Short: "Change the status of a license key",
	Args:  cobra.ExactArgs(2),
	RunE:  setKeyStatus,
}

var keyUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update max devices, expiry or note of a license key",
	Args:  cobra.ExactArgs(1),
	RunE:  updateKey,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a license key and all its devices",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteKey,
}

var keyDevicesCmd = &cobra.Command{
	Use:   "devices <id>",
	Short: "List the devices bound to a license key",
	Args:  cobra.ExactArgs(1),
	RunE:  listKeyDevices,
}

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage bound devices",
}

var deviceDeleteCmd = &cobra.Command{
	Use:   "delete <device-id>",
	Short: "Unbind a device, freeing its slot",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteDevice,
}

var (
	maxDevices  int
	expiresAt   string
	note        string
	clearExpiry bool
)

func init() {
	keyCreateCmd.Flags().IntVarP(&maxDevices, "max-devices", "m", 1, "Maximum number of devices")
	keyCreateCmd.Flags().StringVarP(&expiresAt, "expires", "e", "", "Expiry as YYYY-MM-DD or RFC 3339")
	keyCreateCmd.Flags().StringVarP(&note, "note", "n", "", "Free-form note")

	keyUpdateCmd.Flags().IntVarP(&maxDevices, "max-devices", "m", 0, "Maximum number of devices")
	keyUpdateCmd.Flags().StringVarP(&expiresAt, "expires", "e", "", "Expiry as YYYY-MM-DD or RFC 3339")
	keyUpdateCmd.Flags().BoolVar(&clearExpiry, "no-expiry", false, "Remove the expiry date")
	keyUpdateCmd.Flags().StringVarP(&note, "note", "n", "", "Free-form note")

	keyCmd.AddCommand(keyCreateCmd, keyListCmd, keyShowCmd, keyStatusCmd, keyUpdateCmd, keyDeleteCmd, keyDevicesCmd)
	deviceCmd.AddCommand(deviceDeleteCmd)
}

func createKey(cmd *cobra.Command, args []string) error {
	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	opts := license.CreateKeyOptions{MaxDevices: maxDevices, Note: note}
	if expiresAt != "" {
		t, err := handlers.ParseExpiry(expiresAt)
		if err != nil {
			return err
		}
		opts.ExpiresAt = &t
	}

	created, err := service.CreateKey(opts, cliAddress)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	rule := strings.Repeat("=", 50)
	fmt.Println(rule)
	fmt.Println(headerFmt("  NEW LICENSE KEY GENERATED"))
	fmt.Println(rule)
	fmt.Printf("  Key:         %s\n", okFmt(created.RawKey))
	fmt.Printf("  ID:          %d\n", created.Key.ID)
	fmt.Printf("  Max Devices: %d\n", created.Key.MaxDevices)
	fmt.Printf("  Expires:     %s\n", formatExpiry(created.Key.ExpiresAt))
	fmt.Printf("  Note:        %s\n", orNone(created.Key.Note))
	fmt.Println(rule)
	fmt.Println(warnFmt("  SAVE THIS KEY! It cannot be recovered."))
	fmt.Println(rule)

	return nil
}

func listKeys(cmd *cobra.Command, args []string) error {
	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := service.ListKeys()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No license keys found")
		return nil
	}

	fmt.Printf("\nTotal keys: %d\n\n", len(keys))
	fmt.Printf("%-5s %-10s %-10s %-9s %-20s %s\n", "ID", "Hint", "Status", "Devices", "Expires", "Note")
	fmt.Println(strings.Repeat("-", 80))

	for _, k := range keys {
		fmt.Printf("%-5d %-10s %s %-9s %-20s %s\n",
			k.ID,
			k.DisplayHint,
			paintStatus(k.Status, 10),
			fmt.Sprintf("%d/%d", k.DeviceCount, k.MaxDevices),
			formatExpiry(k.ExpiresAt),
			k.Note,
		)
	}

	return nil
}

func showKey(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	k, err := service.GetKey(id)
	if err != nil {
		return err
	}

	fmt.Printf("ID:          %d\n", k.ID)
	fmt.Printf("Hint:        %s\n", k.DisplayHint)
	fmt.Printf("Status:      %s\n", paintStatus(k.Status, 0))
	fmt.Printf("Devices:     %d/%d\n", k.DeviceCount, k.MaxDevices)
	fmt.Printf("Expires:     %s\n", formatExpiry(k.ExpiresAt))
	fmt.Printf("Note:        %s\n", orNone(k.Note))
	fmt.Printf("Created:     %s\n", k.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:     %s\n", k.UpdatedAt.Format("2006-01-02 15:04:05"))

	return nil
}

func setKeyStatus(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := service.UpdateKeyStatus(id, args[1], cliAddress); err != nil {
		return err
	}

	fmt.Printf("%s key %d is now %s\n", okFmt("OK"), id, paintStatus(args[1], 0))
	return nil
}

func updateKey(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	var update license.KeyUpdate
	if cmd.Flags().Changed("max-devices") {
		update.MaxDevices = &maxDevices
	}
	if cmd.Flags().Changed("note") {
		update.Note = &note
	}
	switch {
	case clearExpiry:
		update.ClearExpiry = true
	case expiresAt != "":
		t, err := handlers.ParseExpiry(expiresAt)
		if err != nil {
			return err
		}
		update.ExpiresAt = &t
	}

	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := service.UpdateKey(id, update, cliAddress); err != nil {
		return err
	}

	fmt.Printf("%s key %d updated\n", okFmt("OK"), id)
	return nil
}

func deleteKey(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := service.DeleteKey(id, cliAddress); err != nil {
		return err
	}

	fmt.Printf("%s key %d deleted\n", okFmt("OK"), id)
	return nil
}

func listKeyDevices(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	devices, err := service.ListDevices(id)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices bound")
		return nil
	}

	fmt.Printf("%-6s %-66s %-20s %s\n", "ID", "Fingerprint", "Last Seen", "Hardware")
	fmt.Println(strings.Repeat("-", 110))
	for _, d := range devices {
		fmt.Printf("%-6d %-66s %-20s %s\n",
			d.ID,
			d.Fingerprint,
			d.LastSeen.Format("2006-01-02 15:04:05"),
			dimFmt(string(d.HardwareInfo)),
		)
	}

	return nil
}

func deleteDevice(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := service.DeleteDevice(id, cliAddress); err != nil {
		return err
	}

	fmt.Printf("%s device %d deleted\n", okFmt("OK"), id)
	return nil
}

func parseIDArg(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// paintStatus pads status to width before colouring it, so escape codes do
// not break column alignment
func paintStatus(status string, width int) string {
	padded := fmt.Sprintf("%-*s", width, status)
	switch license.Status(status) {
	case license.StatusActive:
		return okFmt(padded)
	case license.StatusSuspended:
		return warnFmt(padded)
	case license.StatusRevoked, license.StatusExpired:
		return errorFmt(padded)
	}
	return padded
}
