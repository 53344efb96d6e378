package cmd

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

var setCmd = &cobra.Command{
	Use:   "set appliance-id command.parameter=value...",
	Short: "Change settings of an appliance and optionally send a command",
	Args:  cobra.MinimumNArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		return doSet(cmd.Context(), args[0], args[1:])
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkSessionFlags()
	},
}

func init() {
	setCmd.Flags().String("send", "", "command to send once the settings are applied")
	setCmd.Flags().Bool("mandatory", false, "send only the mandatory parameters")
	setCmd.Flags().StringSlice("sync", nil, "commands that take over the mandatory parameters of the sent command")

	errPanic(viper.BindPFlag("set.send", setCmd.Flags().Lookup("send")))
	errPanic(viper.BindPFlag("set.mandatory", setCmd.Flags().Lookup("mandatory")))
	errPanic(viper.BindPFlag("set.sync", setCmd.Flags().Lookup("sync")))

	rootCmd.AddCommand(setCmd)
}

func doSet(ctx context.Context, id string, assignments []string) error {
	session, err := newSession(ctx)
	if err != nil {
		return err
	}

	a, ok := session.Appliance(id)
	if !ok {
		return errors.Errorf("no appliance %s", id)
	}

	for _, assignment := range assignments {
		parts := strings.SplitN(assignment, "=", 2)
		if len(parts) != 2 {
			return errors.Errorf("expected command.parameter=value, got %q", assignment)
		}
		if err := a.SetSetting(parts[0], parts[1]); err != nil {
			return errors.Wrapf(err, "setting %s", parts[0])
		}
		logging.Appliance(ctx, a.MacAddress()).Infof("%s set to %s", parts[0], parts[1])
	}

	name := viper.GetString("set.send")
	if name == "" {
		return nil
	}

	if _, err := a.Send(ctx, name, viper.GetBool("set.mandatory")); err != nil {
		return errors.Wrapf(err, "appliance %s", id)
	}
	logging.Appliance(ctx, a.MacAddress()).Infof("command %s sent", name)

	if targets := viper.GetStringSlice("set.sync"); len(targets) > 0 {
		a.SyncCommand(name, targets, true)
		logging.Appliance(ctx, a.MacAddress()).Debugf("%s synced to %s", name, strings.Join(targets, ", "))
	}
	return nil
}
