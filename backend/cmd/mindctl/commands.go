package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/api"
)

func newMapsCmd(open opener, opts *rootOptions) *cobra.Command {
	maps := &cobra.Command{
		Use:   "maps",
		Short: "Create, list and show maps",
	}

	maps.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create an empty map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, opts, func(ctx context.Context, svc api.Service) error {
				rec, err := svc.CreateMap(ctx, opts.owner)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
				return nil
			})
		},
	})

	maps.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List maps, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, opts, func(ctx context.Context, svc api.Service) error {
				summaries, err := svc.ListMaps(ctx, opts.owner)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range summaries {
					fmt.Fprintf(out, "%s\t%d nodes\trev %d\t%s\n", m.ID, m.NodeCount, m.Revision, m.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				return nil
			})
		},
	})

	maps.AddCommand(&cobra.Command{
		Use:   "show <map-id>",
		Short: "Print a map as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, opts, func(ctx context.Context, svc api.Service) error {
				rec, err := svc.GetMap(ctx, opts.owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	})

	return maps
}

func newChatCmd(open opener, opts *rootOptions) *cobra.Command {
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "chat <map-id> <text...>",
		Short: "Run one chat turn against a map",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, opts, func(ctx context.Context, svc api.Service) error {
				result, err := svc.RunTurn(ctx, agent.TurnRequest{
					MapID:            args[0],
					OwnerID:          opts.owner,
					OwnerDisplayName: opts.displayName,
					Text:             strings.Join(args[1:], " "),
				})
				if err != nil {
					return err
				}
				if showTrace {
					fmt.Fprintf(cmd.ErrOrStderr(), "trace: %v (%s)\n", result.Trace, result.Duration)
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().BoolVar(&showTrace, "trace", false, "print the turn state trace to stderr")
	return cmd
}

func newGenerateCmd(open opener, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <text...>",
		Short: "Generate a map fragment without saving it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, opts, func(ctx context.Context, svc api.Service) error {
				fragment, err := svc.Generate(ctx, agent.GenerateRequest{
					OwnerID: opts.owner,
					Text:    strings.Join(args, " "),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), fragment)
			})
		},
	}
}
