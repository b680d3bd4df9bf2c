package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goose-run/goose-core/internal/capability"
)

var (
	capCheckRole    string
	capCheckPath    string
	capCheckCommand string
)

var capabilityCmd = &cobra.Command{
	Use:   "capability",
	Short: "inspect and exercise the per-role permission table",
}

var capabilityListCmd = &cobra.Command{
	Use:   "list",
	Short: "show the permission table, applying .goose/roles.yaml overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		rolesFile := cfg.Capability.RolesFile
		if !filepath.IsAbs(rolesFile) {
			rolesFile = filepath.Join(workspaceRoot(), rolesFile)
		}
		configs, err := capability.LoadRoleConfigs(rolesFile)
		if err != nil {
			return err
		}

		fmt.Println("## Capability Table")
		fmt.Println()
		fmt.Println("| role | read | write | execute | edit_code | delete | allowed files | blocked files |")
		fmt.Println("|---|---|---|---|---|---|---|---|")
		for _, r := range []capability.Role{capability.Architect, capability.Developer, capability.Qa, capability.Security, capability.Deployer} {
			c := configs[r]
			fmt.Printf("| %s | %v | %v | %v | %v | %v | %v | %v |\n",
				r, c.Caps.Read, c.Caps.Write, c.Caps.Execute, c.Caps.EditCode, c.Caps.Delete, c.Files.Allowed, c.Files.Blocked)
		}
		return nil
	},
}

var capabilityCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "evaluate a single read/write/execute request against a role",
	RunE: func(cmd *cobra.Command, args []string) error {
		rolesFile := cfg.Capability.RolesFile
		if !filepath.IsAbs(rolesFile) {
			rolesFile = filepath.Join(workspaceRoot(), rolesFile)
		}

		e := capability.NewEnforcer(capability.Role(capCheckRole))
		if err := capability.ApplyRoleConfigFile(e, rolesFile); err != nil {
			return err
		}

		op := capability.Operation{Kind: capability.OpRead, Path: capCheckPath}
		if capCheckCommand != "" {
			op = capability.Operation{Kind: capability.OpExecute, Command: capCheckCommand}
		}

		d := e.CheckOperation(op)
		fmt.Printf("allowed: %v\n", d.Allowed)
		if d.Reason != "" {
			fmt.Printf("reason: %s\n", d.Reason)
		}
		return nil
	},
}

func init() {
	capabilityCmd.AddCommand(capabilityListCmd, capabilityCheckCmd)

	capabilityCheckCmd.Flags().StringVar(&capCheckRole, "role", "developer", "role to evaluate as")
	capabilityCheckCmd.Flags().StringVar(&capCheckPath, "path", "", "file path to check (read)")
	capabilityCheckCmd.Flags().StringVar(&capCheckCommand, "command", "", "command to check (execute), overrides --path")
}
