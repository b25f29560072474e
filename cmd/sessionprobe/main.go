// This command is only used for local testing: it assembles the SDK
// against a development backend, bootstraps a session, and prints the
// outcome. Optional env toggles drive the phone sign-in flow, reference
// data priming, and logout.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"github.com/spinr-app/appcore"
	"github.com/spinr-app/appcore/api"
	"github.com/spinr-app/appcore/session"
)

type Config struct {
	// Phone starts a sign-in: without Code the probe requests a
	// verification code, with Code it completes the exchange.
	Phone string `env:"PROBE_PHONE"`
	Code  string `env:"PROBE_CODE"`

	// PrimeReference pre-fetches vehicle types and service areas into the
	// cache after bootstrap.
	PrimeReference bool `env:"PROBE_PRIME_REFERENCE, default=false"`

	// Logout clears the session before the probe exits.
	Logout bool `env:"PROBE_LOGOUT, default=false"`
}

func main() {
	configureLogging()
	ctx := context.Background()

	cfg := Config{}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	app, err := appcore.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error assembling sdk: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing sdk: %v\n", err)
		}
	}()

	snap := app.Session.Initialize(ctx)
	printSession("bootstrap", snap)

	if cfg.Phone != "" && cfg.Code == "" {
		delivery, err := app.Session.RequestCode(ctx, cfg.Phone)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error requesting code: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("code requested: %s\n", delivery.Message)
		if delivery.DevCode != "" {
			fmt.Printf("dev code: %s\n", delivery.DevCode)
		}
	}

	if cfg.Phone != "" && cfg.Code != "" {
		signedIn, err := app.Session.SignIn(ctx, cfg.Phone, cfg.Code)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error signing in: %v\n", err)
			os.Exit(1)
		}
		printSession("sign-in", signedIn)
	}

	if cfg.PrimeReference {
		primeReferenceData(ctx, app)
	}

	if cfg.Logout {
		if err := app.Session.Logout(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error logging out: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("logged out")
	}
}

func printSession(step string, snap session.Session) {
	fmt.Printf("%s: state=%s initialized=%t", step, snap.State, snap.Initialized)
	if snap.Profile != nil {
		fmt.Printf(" user=%s profile_complete=%t", snap.Profile.ID, snap.Profile.ProfileComplete)
	}
	if snap.DriverProfile != nil {
		fmt.Printf(" driver=%s", snap.DriverProfile.ID)
	}
	if snap.Err != nil {
		fmt.Printf(" err=%q", snap.Err)
	}
	fmt.Println()
}

func primeReferenceData(ctx context.Context, app *appcore.App) {
	types, err := api.Get[[]api.VehicleType](ctx, app.API, "/vehicle-types", api.DefaultGetOptions())
	if err != nil {
		log.Warn().Err(err).Msg("vehicle types unavailable")
	} else {
		fmt.Printf("primed %d vehicle types\n", len(types))
	}

	areas, err := api.Get[[]api.ServiceArea](ctx, app.API, "/service-areas", api.DefaultGetOptions())
	if err != nil {
		log.Warn().Err(err).Msg("service areas unavailable")
	} else {
		fmt.Printf("primed %d service areas\n", len(areas))
	}
}

func configureLogging() {
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}
