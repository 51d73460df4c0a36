package main

import (
	"fmt"
	"strings"

	"faceenroll/internal/repository"

	"github.com/spf13/cobra"
)

func newLabelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Show or change the stored identity label",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Store the label used when --label and ENROLL_LABEL are absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("label must not be blank")
			}
			application, err := openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Settings().Set(repository.LabelKey, name); err != nil {
				return fmt.Errorf("failed to store label: %w", err)
			}
			fmt.Printf("✅ Label set to '%s'\n", name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			name, ok, err := application.Settings().Get(repository.LabelKey)
			if err != nil {
				return fmt.Errorf("failed to read label: %w", err)
			}
			if !ok {
				fmt.Println("No label stored")
				return nil
			}
			fmt.Println(name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Settings().Delete(repository.LabelKey); err != nil {
				return fmt.Errorf("failed to clear label: %w", err)
			}
			fmt.Println("✅ Label cleared")
			return nil
		},
	})

	return cmd
}
