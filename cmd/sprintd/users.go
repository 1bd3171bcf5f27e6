package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scullers68/sprint-reports/internal/types"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage service users and their roles",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Create or update a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		roles, _ := cmd.Flags().GetStringSlice("roles")
		superuser, _ := cmd.Flags().GetBool("superuser")

		user := &types.User{
			ID:        args[0],
			Email:     email,
			Active:    true,
			Superuser: superuser,
			Roles:     roles,
		}
		if err := store.UpsertUser(rootCtx, user); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("User %s saved (roles: %s)\n", user.ID, strings.Join(roles, ", "))
	},
}

var usersDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Deactivate a user without removing the account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		user, err := store.GetUser(rootCtx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		user.Active = false
		if err := store.UpsertUser(rootCtx, user); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("User %s disabled\n", user.ID)
	},
}

var usersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a user and their effective permissions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		user, err := store.GetUser(rootCtx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(user)
			return
		}
		fmt.Printf("%s  %s  active=%t superuser=%t\n", user.ID, user.Email, user.Active, user.Superuser)
		fmt.Printf("  roles: %s\n", strings.Join(user.Roles, ", "))
	},
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Manage roles and their permissions",
}

var rolesSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or replace a role's permission list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		perms, _ := cmd.Flags().GetStringSlice("permissions")

		role := &types.Role{
			Name:        args[0],
			Permissions: perms,
			Active:      true,
		}
		if err := store.UpsertRole(rootCtx, role); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Role %s saved with %d permissions\n", role.Name, len(perms))
	},
}

func init() {
	usersAddCmd.Flags().String("email", "", "User email address")
	usersAddCmd.Flags().StringSlice("roles", nil, "Role names to assign")
	usersAddCmd.Flags().Bool("superuser", false, "Grant unconditional access")
	rolesSetCmd.Flags().StringSlice("permissions", nil, "Permission strings for the role")

	usersCmd.AddCommand(usersAddCmd, usersDisableCmd, usersShowCmd)
	rolesCmd.AddCommand(rolesSetCmd)
	rootCmd.AddCommand(usersCmd, rolesCmd)
}
