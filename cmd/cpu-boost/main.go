/*


Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/AMDEPYC/cpu-boost/internal/config"
)

var (
	command = "cpu-boost"
	version = "v0.0.0"
	commit  = "none"

	setupLog = ctrl.Log.WithName("setup")
)

func main() {
	if exitCode := run(); exitCode != 0 {
		os.Exit(exitCode)
	}
}

func run() int {
	cmd := newRootCmd()

	err := cmd.ExecuteContext(ctrl.SetupSignalHandler())
	if err != nil {
		errorString := err.Error()
		if strings.Contains(errorString, "arg(s)") || strings.Contains(errorString, "flag") || strings.Contains(errorString, "command") {
			fmt.Fprintf(os.Stderr, "Error: %s\n\n", errorString)
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		} else {
			fmt.Fprintln(os.Stderr, "Execute error:", err)
		}

		return 1
	}

	return 0
}

func newRootCmd() *cobra.Command {
	logOpts := zap.Options{}
	address := config.Default().ListenAddress

	cmd := &cobra.Command{
		Use:     command,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Short:   "Input-driven cpufreq minimum frequency boosting",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			setupLogger(&logOpts)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	goFlags := flag.NewFlagSet(command, flag.ContinueOnError)
	logOpts.BindFlags(goFlags)
	cmd.PersistentFlags().AddGoFlagSet(goFlags)
	cmd.PersistentFlags().StringVar(&address, "address", address, "Address of the agent control API.")

	cmd.AddCommand(
		newRunCmd(),
		newKickCmd(&address),
		newMaxKickCmd(&address),
		newStatusCmd(&address),
		newVersionCmd(),
	)

	return cmd
}

func setupLogger(logOpts *zap.Options) {
	ctrl.SetLogger(zap.New(
		zap.UseDevMode(true),
		func(o *zap.Options) {
			o.TimeEncoder = zapcore.ISO8601TimeEncoder
		},
		zap.UseFlagOptions(logOpts),
	),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit: %s)\n", command, version, commit)
		},
	}
}
