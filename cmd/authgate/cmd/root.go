package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped by the build; "dev" for local builds.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "authgate",
	Short: "authgate is a directory-backed authentication gateway",
	Long: `An HTTPS gateway that authenticates basic-auth credentials against an
LDAP directory, classifies callers by group membership, and keeps a
local user store in sync with the directory.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
