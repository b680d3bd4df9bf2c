package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goose-run/goose-core/internal/coreops"
)

var coreCmd = &cobra.Command{
	Use:   "core",
	Short: "inspect registered agent cores",
}

var coreListCmd = &cobra.Command{
	Use:   "list",
	Short: "list the built-in core strategies and the configured default",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := coreops.NewRegistry()
		for _, c := range []coreops.Core{
			coreops.NewFreeformCore(),
			coreops.NewStructuredCore(),
			coreops.NewOrchestratorCore(),
			coreops.NewSwarmCore(),
			coreops.NewWorkflowCore(),
			coreops.NewAdversarialCore(),
		} {
			if err := registry.Register(c); err != nil {
				return err
			}
		}
		if err := registry.SwitchCore(cfg.Core.DefaultCore); err != nil {
			fmt.Printf("warning: configured default core %q not registered, staying on %s\n", cfg.Core.DefaultCore, coreops.Freeform)
		}

		active, err := registry.ActiveCore()
		if err != nil {
			return err
		}

		fmt.Println("## Registered Cores")
		fmt.Println()
		fmt.Println("| variant | active |")
		fmt.Println("|---|---|")
		for _, v := range registry.ListCores() {
			marker := ""
			if v == active.Variant() {
				marker = "yes"
			}
			fmt.Printf("| %s | %s |\n", v, marker)
		}
		return nil
	},
}
