package honapi

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFilesClient(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "wm_12")
	writeFixture(t, dir, "appliance_data.json", `{"macAddress": "aa", "applianceTypeName": "WM", "applianceModelId": "12"}`)
	writeFixture(t, dir, "commands.yaml", `
settings:
  description: settings
  protocolType: helianthus
  parameters:
    onOff:
      typology: fixed
      fixedValue: 1
`)
	writeFixture(t, dir, "statistics.json", `{"totalWashCycle": 3}`)
	writeFixture(t, dir, "maintenance.yml", `cycles: 7`)
	writeFixture(t, filepath.Join(root, "empty"), "notes.txt", "nothing")

	f := NewFilesClient(root)
	ctx := context.Background()

	appliances, err := f.LoadAppliances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(appliances) != 1 || appliances[0].MacAddress() != "aa" {
		t.Fatalf("appliances = %v", appliances)
	}
	info := appliances[0]

	commands, err := f.LoadCommands(ctx, info)
	if err != nil {
		t.Fatal(err)
	}
	settings, _ := commands["settings"].(map[string]interface{})
	if settings["protocolType"] != "helianthus" {
		t.Errorf("commands = %v", commands)
	}

	statistics, err := f.LoadStatistics(ctx, info)
	if err != nil {
		t.Fatal(err)
	}
	if statistics["totalWashCycle"] == nil || statistics["cycles"] == nil {
		t.Errorf("statistics = %v", statistics)
	}

	favourites, err := f.LoadFavourites(ctx, info)
	if err != nil || len(favourites) != 0 {
		t.Errorf("favourites = %v, %v", favourites, err)
	}

	ok, err := f.SendCommand(ctx, info, CommandRequest{CommandName: "settings"})
	if !ok || err != nil {
		t.Fatalf("SendCommand = %v, %v", ok, err)
	}
	if sent := f.Sent(); len(sent) != 1 || sent[0].MacAddress != "aa" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestFilesBadPayload(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, filepath.Join(root, "wm_1"), "commands.json", `{not json`)

	_, err := NewFilesClient(root).LoadCommands(context.Background(), ApplianceInfo{"applianceTypeName": "WM", "applianceModelId": "1"})
	if err == nil {
		t.Error("expected decode error")
	}
}

func TestApplianceCode(t *testing.T) {
	tests := []struct {
		info ApplianceInfo
		want string
	}{
		{ApplianceInfo{"code": "C1", "serialNumber": "1234567890"}, "C1"},
		{ApplianceInfo{"serialNumber": "1234567890"}, "12345678"},
		{ApplianceInfo{"serialNumber": "123456789012345678"}, "12345678901"},
		{ApplianceInfo{"serialNumber": "123"}, "123"},
	}

	for _, tc := range tests {
		if got := tc.info.Code(); got != tc.want {
			t.Errorf("Code(%v) = %q, want %q", tc.info, got, tc.want)
		}
	}
}
