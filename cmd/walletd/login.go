package main

import (
	"fmt"

	"github.com/AlexZinkM/custody-wallet/internal/config"
	"github.com/AlexZinkM/custody-wallet/internal/crypto"

	"github.com/spf13/cobra"
)

// newLoginCmd groups operator helpers for the login cipher, e.g. to find
// a user row by login or read the login of a row.
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Encrypt or decrypt user logins with the configured login cipher",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "encrypt <login>",
			Short: "Print the stored ciphertext of a login",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := loginCipher()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.EncryptLogin(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "decrypt <hex>",
			Short: "Print the login of a stored ciphertext",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := loginCipher()
				if err != nil {
					return err
				}
				login, err := c.DecryptLogin(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), login)
				return nil
			},
		},
	)
	return cmd
}

func loginCipher() (*crypto.LoginCipher, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	defer cfg.Wipe()
	return crypto.NewLoginCipher(cfg.LoginKey, cfg.LoginIV)
}
