package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "romsync",
	Short:         "Identify, catalog and sync ROMs to handheld devices",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		app.SetConfigPath(configPath)
	},
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Error("exec cmd failed", zap.Error(err))
		return err
	}
	return nil
}

func newRunnerCommand(runner app.IRunner) *cobra.Command {
	subcmd := &cobra.Command{
		Use:   runner.Name(),
		Short: runner.Desc(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := runner.PreRun(ctx); err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, runner.PostRun(ctx))
			}()
			return runner.Run(ctx)
		},
	}
	runner.Init(subcmd.Flags())
	return subcmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径 (json/toml)")
	for _, name := range app.RunnerList() {
		rootCmd.AddCommand(newRunnerCommand(app.MustResolveRunner(name)))
	}
}
