package main

import (
	"fmt"
	"os"

	"github.com/openchami/realmgate/pkg/gateway"
	"github.com/openchami/realmgate/pkg/policy"
	"github.com/spf13/cobra"
)

var policyOutput string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the route requirement registry",
}

var policyDocsCmd = &cobra.Command{
	Use:   "docs [policy-file]",
	Short: "Render the effective requirement table as Markdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		registry, err := policy.LoadRegistryFile(path, gateway.DefaultRegistry())
		if err != nil {
			return err
		}

		source := "built-in defaults"
		if path != "" {
			source = path
		}
		doc, err := policy.GenerateMarkdown(registry, source)
		if err != nil {
			return err
		}

		if policyOutput == "" {
			fmt.Print(doc)
			return nil
		}
		if err := os.WriteFile(policyOutput, []byte(doc), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", policyOutput, err)
		}
		fmt.Printf("Wrote %d operations to %s\n", registry.Len(), policyOutput)
		return nil
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <policy-file>",
	Short: "Check a requirement file against the built-in routes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := policy.LoadRegistryFile(args[0], gateway.DefaultRegistry())
		if err != nil {
			return err
		}
		if err := registry.CheckRoutes(gateway.Routes()); err != nil {
			return err
		}
		fmt.Printf("%s: %d guarded operations, all routed\n", args[0], registry.Len())
		return nil
	},
}

func init() {
	policyDocsCmd.Flags().StringVarP(&policyOutput, "output", "o", "", "Write the table to a file instead of stdout")
	policyCmd.AddCommand(policyDocsCmd)
	policyCmd.AddCommand(policyValidateCmd)
	rootCmd.AddCommand(policyCmd)
}
