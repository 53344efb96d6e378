package honapi

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

// Files serves appliance data from a directory of captured payloads,
// one sub-directory per appliance named <type>_<modelid>.  Each payload
// is a .json, .yaml or .yml file.  Sent commands are recorded, not
// forwarded anywhere.
type Files struct {
	dir string

	mu   sync.Mutex
	sent []CommandRequest
}

func NewFilesClient(dir string) *Files {
	return &Files{dir: dir}
}

// WithTimeout has no effect, reads are local
func (f *Files) WithTimeout(d time.Duration) API {
	return f
}

// Sent returns the commands passed to SendCommand so far
func (f *Files) Sent() []CommandRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]CommandRequest(nil), f.sent...)
}

func applianceDir(info ApplianceInfo) string {
	return strings.ToLower(info.Type() + "_" + info.ModelID())
}

// read decodes the named payload into out.  A missing payload is not an
// error, out is left untouched.
func (f *Files) read(dir string, name string, out interface{}) error {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(f.dir, dir, name+ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}

		if ext == ".json" {
			err = json.Unmarshal(data, out)
		} else {
			err = yaml.Unmarshal(data, out)
		}
		if err != nil {
			return errors.Wrapf(err, "decoding %s", path)
		}
		return nil
	}

	logging.Logger(nil).Debugf("no %s payload in %s", name, filepath.Join(f.dir, dir))
	return nil
}

func (f *Files) LoadAppliances(ctx context.Context) ([]ApplianceInfo, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", f.dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var items []ApplianceInfo
	for _, name := range names {
		info := ApplianceInfo{}
		if err := f.read(name, "appliance_data", &info); err != nil {
			logging.Logger(ctx).WithError(err).Errorf("skipping appliance %s", name)
			continue
		}
		if len(info) > 0 {
			items = append(items, info)
		}
	}

	return items, nil
}

func (f *Files) loadMap(info ApplianceInfo, name string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := f.read(applianceDir(info), name, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Files) loadList(info ApplianceInfo, name string) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	if err := f.read(applianceDir(info), name, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Files) LoadCommands(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error) {
	return f.loadMap(info, "commands")
}

func (f *Files) LoadFavourites(ctx context.Context, info ApplianceInfo) ([]map[string]interface{}, error) {
	return f.loadList(info, "favourites")
}

func (f *Files) LoadCommandHistory(ctx context.Context, info ApplianceInfo) ([]map[string]interface{}, error) {
	return f.loadList(info, "command_history")
}

func (f *Files) LoadAttributes(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error) {
	return f.loadMap(info, "attributes")
}

func (f *Files) LoadStatistics(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error) {
	statistics, err := f.loadMap(info, "statistics")
	if err != nil {
		return nil, err
	}

	maintenance, err := f.loadMap(info, "maintenance")
	if err != nil {
		return nil, err
	}
	for k, v := range maintenance {
		statistics[k] = v
	}

	return statistics, nil
}

func (f *Files) SendCommand(ctx context.Context, info ApplianceInfo, req CommandRequest) (bool, error) {
	req.MacAddress = info.MacAddress()
	req.ApplianceType = info.Type()

	logging.Logger(ctx).WithField("mac", req.MacAddress).Infof("command %s: parameters %v ancillary %v", req.CommandName, req.Parameters, req.AncillaryParameters)

	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()

	return true, nil
}
