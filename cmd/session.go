package cmd

import (
	"context"

	"github.com/spf13/viper"

	"github.com/jake-scott/hon-client/internal/pkg/hon"
	"github.com/jake-scott/hon-client/internal/pkg/honapi"
	"github.com/jake-scott/hon-client/internal/pkg/honauth"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

// newSession loads every appliance reachable with the configured token
// state and fixtures
func newSession(ctx context.Context) (*hon.Hon, error) {
	tokenFile := viper.GetString("hon.token-file")
	fixtures := viper.GetString("hon.fixtures")

	var api honapi.API
	if tokenFile != "" {
		state := honauth.NewState().WithContext(ctx)
		if err := state.Load(tokenFile); err != nil {
			return nil, err
		}
		logging.Logger(ctx).Debugf("hOn state: %s", state)

		api = honapi.NewLiveClient(viper.GetString("hon.api-url"), state.TokenSource()).
			WithTimeout(viper.GetDuration("hon.api-timeout"))
	}

	var session *hon.Hon
	switch {
	case api != nil && fixtures != "":
		session = hon.New(api).WithFixtures(honapi.NewFilesClient(fixtures))
	case api != nil:
		session = hon.New(api)
	default:
		session = hon.New(honapi.NewFilesClient(fixtures))
	}

	if err := session.WithConcurrency(viper.GetInt("hon.concurrency")).Setup(ctx); err != nil {
		return nil, err
	}
	return session, nil
}
