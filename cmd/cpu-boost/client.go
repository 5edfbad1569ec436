package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AMDEPYC/cpu-boost/internal/server"
)

func newKickCmd(address *string) *cobra.Command {
	return &cobra.Command{
		Use:   "kick",
		Short: "Extend boosting if input was seen recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accepted, err := server.NewClient(*address, nil).Kick(cmd.Context())
			if err != nil {
				return err
			}

			if accepted {
				fmt.Fprintln(cmd.OutOrStdout(), "kick accepted")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "kick dropped")
			}
			return nil
		},
	}
}

func newMaxKickCmd(address *string) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "max-kick",
		Short: "Pin every cpu to its maximum frequency for a while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := server.NewClient(*address, nil).MaxKick(cmd.Context(), duration); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "max boost applied for %s\n", duration)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", time.Second, "How long the max boost lasts.")

	return cmd
}

func newStatusCmd(address *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the boost state of the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := server.NewClient(*address, nil).Status(cmd.Context())
			if err != nil {
				return err
			}

			b, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}
