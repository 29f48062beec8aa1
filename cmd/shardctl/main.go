package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/clusterkit/shard-directory/client"
)

var (
	apiFlag string
	rootCmd = &cobra.Command{
		Use:   "shardctl",
		Short: "CLI client for the shard directory REST API",
	}
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Shard directory base URL")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered shards",
		RunE: func(cmd *cobra.Command, args []string) error {
			busy, _ := cmd.Flags().GetBool("busy")
			c := client.New(apiFlag)
			var (
				shards []*client.ShardInfo
				err    error
			)
			if busy {
				shards, err = c.ListBusyShards(cmd.Context())
			} else {
				shards, err = c.ListShards(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printJSON(shards)
		},
	}
	listCmd.Flags().Bool("busy", false, "Only shards marked busy")
	rootCmd.AddCommand(listCmd)

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch one shard by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt64("id")
			info, err := client.New(apiFlag).GetShard(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
	getCmd.Flags().Int64("id", 0, "Shard id (required)")
	_ = getCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(getCmd)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a shard",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt64("id")
			class, _ := cmd.Flags().GetString("class")
			prefix, _ := cmd.Flags().GetString("prefix")
			host, _ := cmd.Flags().GetString("host")
			info := &client.ShardInfo{ID: id, ClassName: class, TablePrefix: prefix, Hostname: host}
			got, err := client.New(apiFlag).CreateShard(cmd.Context(), info)
			if err != nil {
				return err
			}
			fmt.Println(got)
			return nil
		},
	}
	createCmd.Flags().Int64("id", 0, "Shard id (required)")
	createCmd.Flags().String("class", "", "Shard class name (required)")
	createCmd.Flags().String("prefix", "", "Table prefix (required)")
	createCmd.Flags().String("host", "", "Hostname (required)")
	for _, f := range []string{"id", "class", "prefix", "host"} {
		_ = createCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(createCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a shard and its tree links",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt64("id")
			return client.New(apiFlag).DeleteShard(cmd.Context(), id)
		},
	}
	deleteCmd.Flags().Int64("id", 0, "Shard id (required)")
	_ = deleteCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(deleteCmd)

	busyCmd := &cobra.Command{
		Use:   "busy",
		Short: "Set a shard's busy state (0=normal, 1=busy, 2=cancelled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt64("id")
			state, _ := cmd.Flags().GetInt32("state")
			return client.New(apiFlag).MarkShardBusy(cmd.Context(), id, client.ShardState(state))
		},
	}
	busyCmd.Flags().Int64("id", 0, "Shard id (required)")
	busyCmd.Flags().Int32("state", 0, "Busy state")
	_ = busyCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(busyCmd)

	childrenCmd := &cobra.Command{
		Use:   "children",
		Short: "List a shard's children, heaviest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt64("id")
			kids, err := client.New(apiFlag).ListChildShards(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(kids)
		},
	}
	childrenCmd.Flags().Int64("id", 0, "Parent shard id (required)")
	_ = childrenCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(childrenCmd)

	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Link a child shard under a parent",
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, _ := cmd.Flags().GetInt64("parent")
			child, _ := cmd.Flags().GetInt64("child")
			weight, _ := cmd.Flags().GetInt("weight")
			return client.New(apiFlag).AddChildShard(cmd.Context(), parent, child, weight)
		},
	}
	linkCmd.Flags().Int64("parent", 0, "Parent shard id (required)")
	linkCmd.Flags().Int64("child", 0, "Child shard id (required)")
	linkCmd.Flags().Int("weight", 1, "Edge weight")
	_ = linkCmd.MarkFlagRequired("parent")
	_ = linkCmd.MarkFlagRequired("child")
	rootCmd.AddCommand(linkCmd)

	rootShardCmd := &cobra.Command{
		Use:   "root",
		Short: "Resolve the root of a shard's tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt64("id")
			info, err := client.New(apiFlag).GetRootShard(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
	rootShardCmd.Flags().Int64("id", 0, "Shard id (required)")
	_ = rootShardCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(rootShardCmd)

	forwardingsCmd := &cobra.Command{
		Use:   "forwardings",
		Short: "List the forwarding table",
		RunE: func(cmd *cobra.Command, args []string) error {
			fwds, err := client.New(apiFlag).ListForwardings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(fwds)
		},
	}
	rootCmd.AddCommand(forwardingsCmd)

	forwardCmd := &cobra.Command{
		Use:   "forward",
		Short: "Point a logical range at a shard",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _ := cmd.Flags().GetInt("table")
			base, _ := cmd.Flags().GetInt64("base")
			shard, _ := cmd.Flags().GetInt64("shard")
			fwd := client.Forwarding{TableID: table, BaseID: base, ShardID: shard}
			return client.New(apiFlag).SetForwarding(cmd.Context(), fwd)
		},
	}
	forwardCmd.Flags().Int("table", 0, "Table id")
	forwardCmd.Flags().Int64("base", 0, "Base source id")
	forwardCmd.Flags().Int64("shard", 0, "Target shard id (required)")
	_ = forwardCmd.MarkFlagRequired("shard")
	rootCmd.AddCommand(forwardCmd)

	jobCmd := &cobra.Command{
		Use:   "job [file]",
		Short: "Run a serialized job (from file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				payload []byte
				err     error
			)
			if len(args) == 1 {
				payload, err = os.ReadFile(args[0])
			} else {
				payload, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return err
			}
			result, err := client.New(apiFlag).RunJob(cmd.Context(), payload)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	rootCmd.AddCommand(jobCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := client.New(apiFlag).Health(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("service is unhealthy")
			}
			fmt.Println("healthy")
			return nil
		},
	}
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
