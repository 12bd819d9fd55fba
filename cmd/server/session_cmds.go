package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-link/internal/app"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/jrsteele09/go-auth-link/session"
	"github.com/spf13/cobra"
)

// browserFlag names the browser whose session a command acts on; it is the
// value of the browser cookie.
const browserFlag = "browser"

func browserContext(cmd *cobra.Command) (context.Context, error) {
	id, err := cmd.Flags().GetString(browserFlag)
	if err != nil {
		return nil, err
	}
	if id == "" || strings.Contains(id, ":") {
		return nil, errors.New("--browser is required and must not contain ':'")
	}
	return kvstore.WithScope(cmd.Context(), id), nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a browser's stored session as other components see it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := browserContext(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			storage, err := app.OpenStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			state, err := session.NewState(kvstore.NewScoped(storage.Store)).Refresh(ctx)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().String(browserFlag, "", "browser id (the authlink_browser cookie value)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear a browser's stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := browserContext(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			storage, err := app.OpenStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			browsers := kvstore.NewScoped(storage.Store)
			est, err := session.NewEstablisher(browsers, session.NewState(browsers))
			if err != nil {
				return err
			}
			if err := est.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
	cmd.Flags().String(browserFlag, "", "browser id (the authlink_browser cookie value)")
	return cmd
}
