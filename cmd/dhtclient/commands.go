package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	coreoverlay "github.com/coreoverlay/go-coreoverlay"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// 默认参数
const (
	defaultNode    = "127.0.0.1:8000"
	defaultTimeout = 5 * time.Second
)

// rootOptions 全局参数
type rootOptions struct {
	node    string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "dhtclient",
		Short:         "A client tool for Kademlia DHT",
		Version:       coreoverlay.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.node, "node", "n", defaultNode, "DHT node address (IP:PORT or multiaddr)")
	cmd.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "t", defaultTimeout, "timeout for operations")

	cmd.AddCommand(
		newListCmd(opts),
		newGetCmd(opts),
		newPutCmd(opts),
		newDeleteCmd(opts),
		newInfoCmd(opts),
		newGenerateKeyCmd(),
	)
	return cmd
}

// withClient 在超时上下文中连接节点并执行 fn
func withClient(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	c, err := dial(ctx, opts.node)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List key-value pairs known to the node's neighbourhood",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Listing key-value pairs...")
			return withClient(cmd, opts, func(ctx context.Context, c *client) error {
				target := types.KeyToNodeID(dht.RandomKey())
				peers, err := c.dht.FindNodeAt(ctx, c.target, target)
				if err != nil {
					return fmt.Errorf("find node: %w", err)
				}
				for _, p := range peers {
					nid, err := p.ID.NodeID()
					if err != nil {
						continue
					}
					key := hex.EncodeToString(nid.Bytes())
					value, _, err := c.dht.FindValueAt(ctx, p, key)
					if err != nil {
						continue
					}
					if pattern != "" && !strings.Contains(key, pattern) && !strings.Contains(string(value), pattern) {
						continue
					}
					fmt.Fprintf(out, "Key: %s\nValue: %s\n---\n", key, value)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "optional filter pattern")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a value by key (hex)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := dht.ParseHexKey(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client) error {
				value, _, err := c.dht.FindValueAt(ctx, c.target, key)
				switch {
				case errors.Is(err, dht.ErrKeyNotFound):
					fmt.Fprintln(cmd.OutOrStdout(), "Key not found")
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Value: %s\n", value)
				return nil
			})
		},
	}
}

func newPutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair (key in hex)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := dht.ParseHexKey(args[0])
			if err != nil {
				return err
			}
			if args[1] == "" {
				return dht.ErrExpectedValue
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.dht.StoreAt(ctx, c.target, key, []byte(args[1])); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Failed to store value")
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Value stored successfully")
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key-value pair (key in hex)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := dht.ParseHexKey(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.dht.StoreAt(ctx, c.target, key, nil); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Failed to delete key")
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Key deleted successfully")
				return nil
			})
		},
	}
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show information about the DHT node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client) error {
				out := cmd.OutOrStdout()
				_, rtt, err := c.dht.PingAt(ctx, c.target)
				status := "Online"
				if err != nil {
					status = "Offline"
				}

				fmt.Fprintln(out, "DHT Node Information")
				fmt.Fprintln(out, "-------------------")
				fmt.Fprintf(out, "Address: %s\n", opts.node)
				fmt.Fprintf(out, "Peer ID: %s\n", c.target.ID)
				fmt.Fprintf(out, "Status: %s\n", status)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "RTT: %s\n", rtt)

				nodes, err := c.dht.FindNodeAt(ctx, c.target, types.KeyToNodeID(dht.RandomKey()))
				if err != nil {
					return fmt.Errorf("find node: %w", err)
				}
				fmt.Fprintf(out, "Known nodes: %d\n", len(nodes))
				return nil
			})
		},
	}
}

func newGenerateKeyCmd() *cobra.Command {
	var (
		from  string
		count int
	)
	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate new keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", count)
			}
			for i := 0; i < count; i++ {
				key := dht.RandomKey()
				if from != "" {
					input := from
					if count > 1 {
						input = fmt.Sprintf("%s-%d", from, i+1)
					}
					key = dht.GenerateKeyFromString(input)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated Key: %s\n", key)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&from, "from", "f", "", "generate key by hashing the provided string")
	cmd.Flags().IntVarP(&count, "count", "c", 1, "number of keys to generate")
	return cmd
}
