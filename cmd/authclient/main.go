package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/attendsys/go-auth-client/authority"
	"github.com/attendsys/go-auth-client/internal/config"
	"github.com/attendsys/go-auth-client/refresh"
	"github.com/attendsys/go-auth-client/request"
	"github.com/attendsys/go-auth-client/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authclient failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	setupLogging(cfg.LogLevel)
	displayAppname("authclient")

	authorityClient, err := authority.New(cfg.Authority.BaseURL,
		authority.WithHTTPClient(&http.Client{Timeout: cfg.Authority.HTTPTimeout}),
		authority.WithVerifyMethod(cfg.Authority.VerifyMethod),
	)
	if err != nil {
		return errors.Wrap(err, "create authority client")
	}

	store := session.NewStore()
	machine, err := session.NewStateMachine(store, authorityClient)
	if err != nil {
		return err
	}
	coordinator, err := refresh.NewCoordinator(store, machine, authorityClient)
	if err != nil {
		return err
	}
	executor, err := request.NewExecutor(store, machine, coordinator, cfg.Authority.BaseURL,
		request.WithHTTPClient(&http.Client{Timeout: cfg.Authority.HTTPTimeout}),
	)
	if err != nil {
		return err
	}

	unsubscribe := store.Subscribe(func(change session.Change) {
		if change.LoggedOut {
			log.Info().Msg("session cleared")
		}
	})
	defer unsubscribe()

	ctx := context.Background()

	creds, err := authorityClient.Login(ctx, authority.LoginParams{
		Account:  cfg.Login.Account,
		Password: cfg.Login.Password,
		Role:     cfg.Login.Role,
	})
	if err != nil {
		return errors.Wrap(err, "login")
	}
	machine.BeginSession(creds, cfg.Login.Role)
	log.Info().Str("user_id", creds.UserID).Msg("logged in")

	state, err := machine.Check(ctx)
	if err != nil {
		return errors.Wrap(err, "check session")
	}
	log.Info().Str("state", string(state)).Msg("session checked")

	if len(os.Args) > 1 {
		if err := fetch(ctx, executor, os.Args[1]); err != nil {
			return err
		}
	}

	machine.Logout()
	return nil
}

// fetch issues one authorized GET through the executor and prints the
// raw response body.
func fetch(ctx context.Context, executor *request.Executor, path string) error {
	resp, err := executor.Execute(ctx, request.Spec{
		Method: http.MethodGet,
		Path:   path,
	}, true)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", path)
	}
	log.Info().Int("status", resp.StatusCode).Msg("authorized call completed")
	fmt.Println(string(resp.Body))
	return nil
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(parsed).
		With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
