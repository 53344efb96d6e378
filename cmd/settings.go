package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jake-scott/hon-client/internal/pkg/appliance"
)

var settingsCmd = &cobra.Command{
	Use:   "settings [appliance-id]",
	Short: "Dump the settings and telemetry of the appliances as JSON",
	Args:  cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) > 0 {
			id = args[0]
		}
		return doSettings(cmd.Context(), id)
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkSessionFlags()
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}

type applianceDump struct {
	ID         string                       `json:"id"`
	Type       string                       `json:"type"`
	NickName   string                       `json:"nickName"`
	Attributes map[string]string            `json:"attributes"`
	Settings   map[string]string            `json:"settings"`
	Available  []string                     `json:"available"`
	Commands   map[string]map[string]string `json:"commands"`
	Statistics map[string]interface{}       `json:"statistics,omitempty"`
}

func dumpAppliance(a *appliance.Appliance) applianceDump {
	settings := map[string]string{}
	for name, s := range a.Settings() {
		if !s.Inactive {
			settings[name] = s.Value
		}
	}

	return applianceDump{
		ID:         a.UniqueID(),
		Type:       a.Type(),
		NickName:   a.NickName(),
		Attributes: a.AttributeValues(),
		Settings:   settings,
		Available:  a.AvailableSettings(),
		Commands:   a.CommandParameters(),
		Statistics: a.Statistics(),
	}
}

func doSettings(ctx context.Context, id string) error {
	session, err := newSession(ctx)
	if err != nil {
		return err
	}

	var dumps []applianceDump
	for _, a := range session.Appliances() {
		if id == "" || a.UniqueID() == id {
			dumps = append(dumps, dumpAppliance(a))
		}
	}
	if id != "" && len(dumps) == 0 {
		return errors.Errorf("no appliance %s", id)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dumps)
}
