package hon

import (
	"context"
	"strconv"
	"sync"

	"github.com/korovkin/limiter"
	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/appliance"
	"github.com/jake-scott/hon-client/internal/pkg/honapi"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

const defaultConcurrency = 4

// Hon is a session over every appliance of one account
type Hon struct {
	api         honapi.API
	fixtures    honapi.API
	concurrency int

	mu          sync.RWMutex
	appliances  []*appliance.Appliance
	subscribers []func()
}

func New(api honapi.API) *Hon {
	return &Hon{api: api, concurrency: defaultConcurrency}
}

// WithFixtures adds the appliances of a fixture source to the session
func (h *Hon) WithFixtures(fixtures honapi.API) *Hon {
	h.fixtures = fixtures
	return h
}

// WithConcurrency bounds how many appliances load at the same time
func (h *Hon) WithConcurrency(n int) *Hon {
	if n > 0 {
		h.concurrency = n
	}
	return h
}

// API returns the session's cloud client
func (h *Hon) API() (honapi.API, error) {
	if h.api == nil {
		return nil, honapi.ErrNoAuthentication
	}
	return h.api, nil
}

type job struct {
	api  honapi.API
	info honapi.ApplianceInfo
	zone int
}

// Setup loads every appliance of the account, one per zone for
// appliances with several zones.  A failing appliance is logged and kept
// with whatever data did load.
func (h *Hon) Setup(ctx context.Context) error {
	api, err := h.API()
	if err != nil {
		return err
	}

	infos, err := api.LoadAppliances(ctx)
	if err != nil {
		return errors.Wrap(err, "loading appliance list")
	}

	var jobs []job
	for _, info := range infos {
		zones, _ := strconv.Atoi(info.Get("zone"))
		if zones > 1 {
			for zone := 1; zone <= zones; zone++ {
				jobs = append(jobs, job{api: api, info: copyInfo(info), zone: zone})
			}
		}
		jobs = append(jobs, job{api: api, info: info})
	}

	if h.fixtures != nil {
		fixtures, err := h.fixtures.LoadAppliances(ctx)
		if err != nil {
			logging.Logger(ctx).WithError(err).Warn("can't load fixture appliances")
		}
		for _, info := range fixtures {
			jobs = append(jobs, job{api: h.fixtures, info: info})
		}
	}

	results := make([]*appliance.Appliance, len(jobs))

	limit := limiter.NewConcurrencyLimiter(h.concurrency)
	for i, j := range jobs {
		i, j := i, j
		limit.ExecuteWithTicket(func(int) {
			results[i] = createAppliance(ctx, j)
		})
	}
	limit.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.appliances = h.appliances[:0]
	for _, a := range results {
		if a != nil {
			h.appliances = append(h.appliances, a)
		}
	}

	logging.Logger(ctx).Infof("loaded %d appliances", len(h.appliances))
	return nil
}

func createAppliance(ctx context.Context, j job) *appliance.Appliance {
	a := appliance.New(j.api, j.info, j.zone)
	if a.MacAddress() == "" {
		logging.Logger(ctx).Warnf("skipping %s appliance without mac address", a.Type())
		return nil
	}

	loaders := []func(context.Context) error{a.LoadAttributes, a.LoadCommands, a.LoadStatistics}
	errs := make([]error, len(loaders))

	limit := limiter.NewConcurrencyLimiter(len(loaders))
	for i, load := range loaders {
		i, load := i, load
		limit.ExecuteWithTicket(func(int) {
			errs[i] = load(ctx)
		})
	}
	limit.Wait()

	for _, err := range errs {
		if err != nil {
			logging.Appliance(ctx, a.MacAddress()).WithError(err).WithField("info", j.info).Error("appliance load failed")
		}
	}

	// commands may have arrived after the attributes
	a.SyncParamsToCommand("settings")
	return a
}

func copyInfo(info honapi.ApplianceInfo) honapi.ApplianceInfo {
	out := make(honapi.ApplianceInfo, len(info))
	for k, v := range info {
		out[k] = v
	}
	return out
}

// Appliances returns the loaded appliances
func (h *Hon) Appliances() []*appliance.Appliance {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*appliance.Appliance, len(h.appliances))
	copy(out, h.appliances)
	return out
}

// Appliance finds an appliance by unique id, which is the mac address for
// appliances without zones
func (h *Hon) Appliance(id string) (*appliance.Appliance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, a := range h.appliances {
		if a.UniqueID() == id {
			return a, true
		}
	}
	return nil, false
}

// ByMacAddress returns every appliance, zones included, with the mac
func (h *Hon) ByMacAddress(mac string) []*appliance.Appliance {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*appliance.Appliance
	for _, a := range h.appliances {
		if a.MacAddress() == mac {
			out = append(out, a)
		}
	}
	return out
}

// Subscribe registers fn to run after every pushed update
func (h *Hon) Subscribe(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// Notify runs the subscribers
func (h *Hon) Notify() {
	h.mu.RLock()
	subscribers := make([]func(), len(h.subscribers))
	copy(subscribers, h.subscribers)
	h.mu.RUnlock()

	for _, fn := range subscribers {
		fn()
	}
}
