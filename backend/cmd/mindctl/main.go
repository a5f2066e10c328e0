// Command mindctl inspects and drives mind maps against the configured stores
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mindgraph/backend/internal/api"
	"mindgraph/backend/internal/services"
	"mindgraph/backend/pkg/config"
	"mindgraph/backend/pkg/logger"
)

// opener builds the service a command runs against; the returned func releases it
type opener func(ctx context.Context) (api.Service, func(), error)

func main() {
	if err := newRootCmd(openServices).Execute(); err != nil {
		os.Exit(1)
	}
}

func openServices(ctx context.Context) (api.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Env); err != nil {
		return nil, nil, err
	}

	sm, err := services.NewServiceManager(ctx, cfg, logger.Get())
	if err != nil {
		return nil, nil, err
	}
	sm.StartAll(ctx)
	return sm.Orchestrator, func() {
		sm.StopAll()
		logger.Sync()
	}, nil
}

type rootOptions struct {
	owner       string
	displayName string
}

func newRootCmd(open opener) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "mindctl",
		Short:        "Inspect and drive mind maps",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.owner, "owner", os.Getenv("MINDCTL_OWNER"), "owner id to act as")
	root.PersistentFlags().StringVar(&opts.displayName, "name", "", "display name used for the anchor node")

	root.AddCommand(
		newMapsCmd(open, opts),
		newChatCmd(open, opts),
		newGenerateCmd(open, opts),
	)
	return root
}

// withService opens the service, runs fn and releases it
func withService(cmd *cobra.Command, open opener, opts *rootOptions, fn func(ctx context.Context, svc api.Service) error) error {
	if opts.owner == "" {
		return fmt.Errorf("--owner is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, svc)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
