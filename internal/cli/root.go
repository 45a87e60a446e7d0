package cli

import (
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/medremind/internal/config"
)

type rootOptions struct {
	configPath string
	envFiles   []string
}

func New() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "medremind",
		Short:         "Weekly medication reminders backed by a notification scheduler.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&ro.configPath, "config", config.GetDefaultConfigPath(), "Path to the YAML config file.")
	cmd.PersistentFlags().StringSliceVar(&ro.envFiles, "env-file", []string{".env"}, "Dotenv files loaded before the config.")

	AddCommands(cmd, ro)
	return cmd
}

func AddCommands(topLevel *cobra.Command, ro *rootOptions) {
	addAdd(topLevel, ro)
	addList(topLevel, ro)
	addUpdate(topLevel, ro)
	addToggle(topLevel, ro)
	addRemove(topLevel, ro)
	addReconcile(topLevel, ro)
	addDisableAll(topLevel, ro)
	addClearScheduler(topLevel, ro)
	addPermission(topLevel, ro)
	addServe(topLevel, ro)
	addTUI(topLevel, ro)
	addMCP(topLevel, ro)
}
