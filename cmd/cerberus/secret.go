package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fieldju/cerberus/internal/secure"
)

var (
	secretSDBName   string
	secretData      string
	secretDataFile  string
	secretPrincipal string
	secretRecursive bool
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Read, write, list, and delete secrets",
}

var secretPutCmd = &cobra.Command{
	Use:   "put <path>",
	Short: "Write a secret payload to a path",
	Long: `Write a JSON secret payload to a path inside a safe deposit box.
A previous value at the same path is archived to the version history before
being overwritten.

Examples:
  cerberus secret put app/payments/db --sdb payments --data '{"password": "hunter2"}'
  cerberus secret put app/payments/db --sdb payments --file secret.json`,
	Args: cobra.ExactArgs(1),
	RunE: runSecretPut,
}

var secretGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Read and decrypt the secret at a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretGet,
}

var secretListCmd = &cobra.Command{
	Use:   "list <path>",
	Short: "List the keys directly under a path",
	Long: `List the keys one level below a path in the virtual secret tree.
Keys with deeper children are shown with a trailing slash.`,
	Args: cobra.ExactArgs(1),
	RunE: runSecretList,
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete the secret at a path",
	Long: `Delete the secret at a path, archiving it to the version history.
With --recursive, every secret under the path prefix is removed in bulk
without version archiving.`,
	Args: cobra.ExactArgs(1),
	RunE: runSecretDelete,
}

func init() {
	secretPutCmd.Flags().StringVar(&secretSDBName, "sdb", "", "safe deposit box name (required)")
	secretPutCmd.Flags().StringVar(&secretData, "data", "", "JSON payload")
	secretPutCmd.Flags().StringVar(&secretDataFile, "file", "", "file holding the JSON payload")
	_ = secretPutCmd.MarkFlagRequired("sdb")

	secretDeleteCmd.Flags().BoolVar(&secretRecursive, "recursive", false, "delete everything under the path prefix, without versioning")

	for _, c := range []*cobra.Command{secretPutCmd, secretDeleteCmd} {
		c.Flags().StringVar(&secretPrincipal, "principal", "", "acting principal recorded in the audit trail (default: current user)")
	}

	secretCmd.AddCommand(secretPutCmd, secretGetCmd, secretListCmd, secretDeleteCmd)
}

func runSecretPut(_ *cobra.Command, args []string) error {
	path := args[0]
	payload, err := resolvePayload()
	if err != nil {
		return err
	}

	sc, err := initShared()
	if err != nil {
		return err
	}
	defer sc.Cleanup()
	ctx := context.Background()

	sdbID, ok, err := sc.Store.SafeDepositBoxes().IDByName(ctx, secretSDBName)
	if err != nil {
		return fmt.Errorf("resolving safe deposit box %q: %w", secretSDBName, err)
	}
	if !ok {
		return fmt.Errorf("safe deposit box %q does not exist", secretSDBName)
	}

	if err := sc.Secure.WriteSecret(ctx, sdbID, path, payload, principal()); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func runSecretGet(_ *cobra.Command, args []string) error {
	path := args[0]

	sc, err := initShared()
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	sd, err := sc.Secure.ReadSecret(context.Background(), path)
	if err != nil {
		return err
	}
	if sd == nil {
		return fmt.Errorf("no secret at %s", path)
	}
	fmt.Println(sd.Data)
	return nil
}

func runSecretList(_ *cobra.Command, args []string) error {
	path := args[0]

	sc, err := initShared()
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	keys, err := sc.Secure.ListKeys(context.Background(), path)
	if err != nil {
		return err
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		fmt.Println(k)
	}
	return nil
}

func runSecretDelete(_ *cobra.Command, args []string) error {
	path := args[0]

	sc, err := initShared()
	if err != nil {
		return err
	}
	defer sc.Cleanup()
	ctx := context.Background()

	if secretRecursive {
		if err := sc.Secure.DeleteAllSecretsUnderPrefix(ctx, path); err != nil {
			return err
		}
		fmt.Printf("deleted everything under %s\n", path)
		return nil
	}

	if err := sc.Secure.DeleteSecret(ctx, path, principal()); err != nil {
		if errors.Is(err, secure.ErrNotFound) {
			return fmt.Errorf("no secret at %s", path)
		}
		return err
	}
	fmt.Printf("deleted %s\n", path)
	return nil
}

// resolvePayload returns the payload from --data or --file, exactly one of
// which must be set.
func resolvePayload() (string, error) {
	if secretData != "" && secretDataFile != "" {
		return "", fmt.Errorf("--data and --file are mutually exclusive")
	}
	if secretData != "" {
		return secretData, nil
	}
	if secretDataFile != "" {
		data, err := os.ReadFile(secretDataFile)
		if err != nil {
			return "", fmt.Errorf("reading payload file: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("a payload is required: use --data or --file")
}

// principal returns the acting principal, defaulting to the OS user.
func principal() string {
	if secretPrincipal != "" {
		return secretPrincipal
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
