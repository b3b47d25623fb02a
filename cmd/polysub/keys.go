package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oukeidos/polysub/internal/auth"
)

var keyServices = []string{"groq", "gemini"}

func validService(service string) error {
	for _, s := range keyServices {
		if s == service {
			return nil
		}
	}
	return fmt.Errorf("unknown service %q (expected groq or gemini)", service)
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys in the OS keychain",
	}
	cmd.AddCommand(newKeysSetCmd(), newKeysDeleteCmd(), newKeysStatusCmd())
	return cmd
}

func newKeysSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <groq|gemini>",
		Short: "Store an API key in the OS keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]
			if err := validService(service); err != nil {
				return err
			}
			key, err := auth.PromptForAPIKey(fmt.Sprintf("Enter %s API key: ", service))
			if err != nil {
				return err
			}
			if err := auth.SaveKey(service, key); err != nil {
				return fmt.Errorf("failed to save key: %w", err)
			}
			fmt.Printf("Saved %s API key to the keychain.\n", service)
			return nil
		},
		SilenceUsage: true,
	}
}

func newKeysDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <groq|gemini>",
		Short: "Remove an API key from the OS keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]
			if err := validService(service); err != nil {
				return err
			}
			if err := auth.DeleteKey(service); err != nil {
				return fmt.Errorf("failed to delete key: %w", err)
			}
			fmt.Printf("Deleted %s API key from the keychain.\n", service)
			return nil
		},
		SilenceUsage: true,
	}
}

func newKeysStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which API keys are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, service := range keyServices {
				status := "not set"
				if auth.HasKey(service) {
					status = "stored in keychain"
				}
				fmt.Printf("%-7s %s\n", service+":", status)
			}
			return nil
		},
		SilenceUsage: true,
	}
}
