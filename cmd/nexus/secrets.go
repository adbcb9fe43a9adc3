package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rendis/nexus/internal/secrets"
	"github.com/rendis/nexus/pkg/schema"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted API keys in the local store",
	Long: `Stores provider API keys encrypted with the vault passphrase
(NEXUS_VAULT_PASSPHRASE). Well-known keys: ` + secrets.KeyGeminiAPIKey + `, ` + secrets.KeyOpenAIAPIKey + `.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store a secret; prompts for the value when omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := secrets.ValidateKey(key); err != nil {
			return err
		}
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			v, err := promptSecret(cmd, key)
			if err != nil {
				return err
			}
			value = v
		}
		if strings.TrimSpace(value) == "" {
			return schema.NewError(schema.ErrCodeValidation, "secret value is empty")
		}
		return withVault(cmd.Context(), func(v secrets.Vault) error {
			if err := v.Store(cmd.Context(), key, []byte(value)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
			return nil
		})
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd.Context(), func(v secrets.Vault) error {
			keys, err := v.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		})
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd.Context(), func(v secrets.Vault) error {
			if err := v.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

// withVault opens only the store and the vault, not the whole app.
func withVault(ctx context.Context, fn func(secrets.Vault) error) error {
	if cfg.VaultPassphrase == "" {
		return schema.NewError(schema.ErrCodeVault, "NEXUS_VAULT_PASSPHRASE is not set")
	}
	a := &app{cfg: cfg, logger: logger}
	if err := a.openStore(ctx); err != nil {
		return err
	}
	defer a.store.Close()
	if err := a.openVault(ctx); err != nil {
		return err
	}
	return fn(a.vault)
}

func promptSecret(cmd *cobra.Command, key string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", schema.NewError(schema.ErrCodeValidation, "no value given and stdin is not a terminal")
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", key)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(b), nil
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsListCmd, secretsDeleteCmd)
	rootCmd.AddCommand(secretsCmd)
}
