package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-threadview/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Read("threadview")
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(info)
		}
		fmt.Println(info)
		return nil
	},
}
