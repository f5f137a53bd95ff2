package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/MalekiRe/nexus-social/src/client"
	"github.com/MalekiRe/nexus-social/src/config"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/spf13/cobra"
)

var (
	nodeAddr      = config.DefaultBindAddr
	clientTimeout = 5 * time.Second
)

// NewAddUserCmd returns the command that registers a user on a running node.
func NewAddUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-user [username]",
		Short: "Register a user on a running node",
		Args:  cobra.ExactArgs(1),
		RunE:  addUser,
	}
	addClientFlags(cmd)
	return cmd
}

// NewStatsCmd returns the command that prints the stats of a running node.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the stats of a running node",
		RunE:  stats,
	}
	addClientFlags(cmd)
	return cmd
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&nodeAddr, "node", "n", nodeAddr, "IP:Port of the node API")
	cmd.Flags().DurationVarP(&clientTimeout, "timeout", "t", clientTimeout, "Request timeout")
}

func addUser(cmd *cobra.Command, args []string) error {
	c := client.NewClient(clientTimeout)

	user := identity.New(args[0], nodeAddr)

	if err := c.AddUser(context.Background(), user); err != nil {
		return err
	}

	fmt.Println(user)

	return nil
}

func stats(cmd *cobra.Command, args []string) error {
	c := client.NewClient(clientTimeout)

	s, err := c.Stats(context.Background(), nodeAddr)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("%s: %s\n", k, s[k])
	}

	return nil
}
