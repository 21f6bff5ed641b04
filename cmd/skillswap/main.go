package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pveiga/skillswap/internal/app"
	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/calls"
	"github.com/pveiga/skillswap/internal/outbox"
	"github.com/pveiga/skillswap/internal/profiles"
	"github.com/pveiga/skillswap/internal/session"
	"github.com/pveiga/skillswap/internal/store"
	"github.com/pveiga/skillswap/internal/tui"
	"github.com/pveiga/skillswap/internal/tui/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var (
		vm *model.ViewModel
		b  *bus.Bus
	)

	application := fx.New(
		// The terminal owns stdout/stderr while tview runs.
		fx.NopLogger,
		app.Module(app.Params{SessionName: sessionName, FileOnlyLog: true}),
		fx.Provide(provideViewModel),
		fx.Populate(&vm, &b),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ui := tui.NewApp(vm, b, sessionName)
	runErr := ui.Run()
	ui.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

func provideViewModel(
	b *bus.Bus,
	auth *backend.Auth,
	client *backend.Client,
	rt *backend.Feed,
	db *store.DB,
	callSvc *calls.Service,
	profileSvc *profiles.Service,
	sender *outbox.Sender,
	logger *zap.Logger,
) *model.ViewModel {
	return model.NewViewModel(model.Deps{
		Bus:      b,
		Auth:     auth,
		Client:   client,
		RT:       rt,
		DB:       db,
		Calls:    callSvc,
		Profiles: profileSvc,
		Sender:   sender,
		Logger:   logger,
	})
}
