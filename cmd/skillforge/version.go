package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(_ *cobra.Command, _ []string) {
		info, err := version.Get().JSON()
		if err != nil {
			presenter.Error(err, "Failed to render version information")
			return
		}
		fmt.Println(info)
	},
}
