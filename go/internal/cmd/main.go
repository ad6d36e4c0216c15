package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AvaxArrogant/Emojinary-sub000/go/clients/emojinary_client"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game"
	"github.com/AvaxArrogant/Emojinary-sub000/go/internal/game/prefs"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	userPrefs := prefs.DefaultPreferences()
	if config.PrefsPath != "" {
		userPrefs, err = prefs.Load(config.PrefsPath)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load preferences, using defaults")
			userPrefs = prefs.DefaultPreferences()
		}
	}

	client := emojinary_client.NewEmojinaryClient(config.Server.URL)

	appCfg := game.DefaultConfig(config.Game.SessionID)
	if interval := config.pollInterval(); interval > 0 {
		appCfg.Poller.Interval = interval
	}
	if config.Sync.MaxRetries > 0 {
		appCfg.Poller.MaxRetries = config.Sync.MaxRetries
	}
	if interval := config.probeInterval(); interval > 0 {
		appCfg.Monitor.Interval = interval
	}

	app := game.NewApp(client, appCfg, clockwork.NewRealClock())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	displayName := config.Game.DisplayName
	if displayName == "" {
		displayName = "anonymous"
	}
	participant, err := app.Join(ctx, displayName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to join session")
	}
	if participant == nil {
		runtime, _ := app.Retries().Runtime(game.OpJoin)
		log.Fatal().Err(runtime.LastError).Msg("join did not succeed")
	}
	log.Info().
		Str("participant_id", participant.ID).
		Str("session_id", config.Game.SessionID).
		Msg("joined session")

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sync loops")
	}
	defer app.Stop()

	// Print a status line periodically until interrupted.
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := app.Leave(leaveCtx); err != nil {
				log.Warn().Err(err).Msg("failed to leave session")
			}
			leaveCancel()
			return
		case <-ticker.C:
			printStatus(app, userPrefs)
		}
	}
}

func printStatus(app *game.App, userPrefs prefs.Preferences) {
	session := app.Store().Session()
	if session == nil {
		fmt.Println("no session yet")
		return
	}

	mediatorID, _ := app.Store().MediatorID()
	line := fmt.Sprintf("session=%s status=%s round=%d/%d players=%d mediator=%s",
		session.ID, session.Status, session.RoundIndex, session.MaxRounds,
		len(app.Store().Participants()), mediatorID)
	if userPrefs.ShowQualityScore {
		line += fmt.Sprintf(" quality=%d", app.Monitor().Sample().Quality)
	}
	if summary := app.Loading().Summary(); summary != "" {
		line += " (" + summary + ")"
	}
	fmt.Println(line)
}
