package commands

import (
	"github.com/MalekiRe/nexus-social/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for Nexus
var RootCmd = &cobra.Command{
	Use:              "nexus",
	Short:            "federated social graph node",
	TraverseChildren: true,
}
