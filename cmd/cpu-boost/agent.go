package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	ctrlMetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/AMDEPYC/cpu-boost/internal/boost"
	"github.com/AMDEPYC/cpu-boost/internal/config"
	"github.com/AMDEPYC/cpu-boost/internal/cpufreq"
	"github.com/AMDEPYC/cpu-boost/internal/input"
	"github.com/AMDEPYC/cpu-boost/internal/monitoring"
	"github.com/AMDEPYC/cpu-boost/internal/server"
)

func newRunCmd() *cobra.Command {
	configPath := config.DefaultPath()
	opts := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the boost agent on this node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := loaded.Override(cmd.Flags()); err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return err
			}

			return runAgent(cmd.Context(), loaded)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", configPath, "Path to the YAML configuration file.")
	opts.BindFlags(cmd.Flags())

	return cmd
}

func runAgent(ctx context.Context, opts *config.Options) error {
	possible, err := cpufreq.PossibleCores()
	if err != nil {
		return fmt.Errorf("unable to list cpus: %w", err)
	}
	cores := possible.List()
	numCores := cores[len(cores)-1] + 1

	policy := cpufreq.NewPolicy()
	if err := policy.CaptureBaseline(policy.OnlineCores()); err != nil {
		setupLog.Error(err, "unable to capture baseline policy min for some cpus")
	}

	controller, err := boost.NewController(opts.BoostOpts(numCores), policy, nil)
	if err != nil {
		return fmt.Errorf("unable to create boost controller: %w", err)
	}
	policy.SetClamp(controller.Clamp)
	defer func() {
		if err := policy.Restore(); err != nil {
			setupLog.Error(err, "unable to restore baseline policy min")
		}
	}()

	monitoring.RegisterBoostCollectors(controller, ctrl.Log)
	monitoring.RegisterPolicyCollectors(numCores, cpufreq.MinFrequency, cpufreq.CurrentFrequency, ctrl.Log)

	runnables := []manager.Runnable{
		controller,
		cpufreq.NewHotplugResync(policy, opts.ResyncInterval.Duration),
		server.NewServer(opts.ListenAddress, controller, ctrlMetrics.Registry),
	}
	if opts.InputPath != "" {
		listener, err := input.NewListener(opts.InputPath, controller, nil)
		if err != nil {
			controller.Stop()
			return err
		}
		runnables = append(runnables, listener)
	} else {
		setupLog.Info("input path is empty, input boosting disabled")
	}

	setupLog.Info("starting boost agent",
		"cpus", numCores,
		"inputPath", opts.InputPath,
		"listenAddress", opts.ListenAddress)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, runnable := range runnables {
		group.Go(func() error {
			return runnable.Start(groupCtx)
		})
	}

	err = group.Wait()
	setupLog.Info("boost agent stopped")
	return err
}
