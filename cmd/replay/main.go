// Package main provides the save inspector binary: it restores a playthrough
// from a save file, replays its record log, and prints the derived state.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cory-johannsen/darklord/internal/config"
	"github.com/cory-johannsen/darklord/internal/content"
	"github.com/cory-johannsen/darklord/internal/game/session"
	"github.com/cory-johannsen/darklord/internal/observability"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	savePath := flag.String("save", "", "save file to inspect (required)")
	dumpRecords := flag.Bool("records", false, "print every record in the log")
	flag.Parse()

	if *savePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -save <path> [-config <path>] [-records]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	pack, err := content.Load(cfg.Content.Dir)
	if err != nil {
		logger.Fatal("loading content pack", zap.Error(err))
	}

	data, err := os.ReadFile(*savePath)
	if err != nil {
		logger.Fatal("reading save", zap.String("path", *savePath), zap.Error(err))
	}

	play, err := session.Load("inspect", data, pack.Version, pack.ReplayParams(), logger)
	if err != nil {
		logger.Fatal("restoring playthrough", zap.Error(err))
	}
	if err := play.VerifyReplay(); err != nil {
		logger.Fatal("replay verification failed", zap.Error(err))
	}

	records := play.Records()
	fmt.Printf("save: %d records, content version %s\n", len(records), play.ContentVersion())

	if *dumpRecords {
		for _, rec := range records {
			fmt.Printf("  #%d %s (%s)\n", rec.Seq, rec.ID, rec.SourceEventID)
			for _, eff := range rec.Effects {
				fmt.Printf("      %s %+d\n", eff.Target, eff.Delta)
			}
		}
	}

	statsSnap := play.StatsSnapshot()
	progSnap := play.ProgressionSnapshot()
	fmt.Printf("axes: darkness=%d control=%d rage=%d suppression=%d (break pending: %v)\n",
		statsSnap.Darkness, statsSnap.Control, statsSnap.Rage, statsSnap.Suppression,
		statsSnap.BreakPending)
	fmt.Printf("suit: tier=%d integrity=%d missions=%d (since upgrade: %d)\n",
		progSnap.SuitTier, progSnap.Integrity, progSnap.MissionsCompleted,
		progSnap.MissionsSinceUpgrade)
	if len(progSnap.Powers) > 0 {
		fmt.Printf("powers: %v\n", progSnap.Powers)
	}
}
