// Package main provides the encounter simulator binary: it drives one or more
// encounters from a content pack over a playthrough, commits the resulting
// consequence records, and reports the final state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/darklord/internal/config"
	"github.com/cory-johannsen/darklord/internal/content"
	"github.com/cory-johannsen/darklord/internal/game/ai"
	"github.com/cory-johannsen/darklord/internal/game/combat"
	"github.com/cory-johannsen/darklord/internal/game/dice"
	"github.com/cory-johannsen/darklord/internal/game/encounter"
	"github.com/cory-johannsen/darklord/internal/game/session"
	"github.com/cory-johannsen/darklord/internal/observability"
	"github.com/cory-johannsen/darklord/internal/storage/postgres"
)

// autoController plays protagonist turns with the same deterministic policy
// the engine uses for enemies, and aborts any encounter that outlives the
// configured round cap.
type autoController struct {
	policy    *ai.Policy
	maxRounds int
}

func (c *autoController) ChooseAction(enc *combat.Encounter, actor *combat.Combatant) (combat.ActionRequest, error) {
	return c.policy.Decide(enc, actor), nil
}

func (c *autoController) ShouldAbort(enc *combat.Encounter) bool {
	return enc.Round > c.maxRounds
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	encounterID := flag.String("encounter", "", "encounter id to run (required)")
	savePath := flag.String("save", "", "save file to resume from and write back; empty = fresh playthrough, no save")
	playthroughID := flag.String("playthrough", "", "playthrough id; defaults to a fresh UUID")
	persist := flag.Bool("persist", false, "store committed records in PostgreSQL")
	flag.Parse()

	if *encounterID == "" {
		fmt.Fprintln(os.Stderr, "usage: sim -encounter <id> [-config <path>] [-save <path>] [-persist]")
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

	var src dice.Source
	if cfg.Engine.Seed != 0 {
		src = dice.NewSeededSource(cfg.Engine.Seed)
		logger.Info("using seeded dice source", zap.Int64("seed", cfg.Engine.Seed))
	} else {
		src = dice.NewCryptoSource()
	}
	roller := dice.NewLoggedRoller(src, logger)

	id := *playthroughID
	if id == "" {
		id = uuid.NewString()
	}

	var play *session.Playthrough
	if *savePath != "" {
		if data, err := os.ReadFile(*savePath); err == nil {
			play, err = session.Load(id, data, pack.Version, pack.ReplayParams(), logger)
			if err != nil {
				logger.Fatal("loading save", zap.String("path", *savePath), zap.Error(err))
			}
			logger.Info("resumed playthrough",
				zap.String("playthrough_id", id),
				zap.Int("records", len(play.Records())),
			)
		} else if !errors.Is(err, os.ErrNotExist) {
			logger.Fatal("reading save", zap.String("path", *savePath), zap.Error(err))
		}
	}
	if play == nil {
		play = session.NewPlaythrough(id, pack.Version, pack.ReplayParams(), logger)
	}

	orch := encounter.NewOrchestrator(pack, play, roller, logger)
	orch.SetHookInstructionLimit(cfg.Content.HookInstructionLimit)

	ctrl := &autoController{
		policy:    ai.NewPolicy(pack.Abilities, pack.Policies.AIPriorityOrder),
		maxRounds: cfg.Engine.MaxRounds,
	}

	// A velocity violation during finalization queues a loyalty test; run
	// forced encounters until the queue drains.
	next := *encounterID
	for {
		run, err := orch.StartEncounter(next)
		if err != nil {
			logger.Fatal("starting encounter", zap.String("encounter_id", next), zap.Error(err))
		}
		outcome, err := orch.Drive(run, ctrl)
		if err != nil {
			logger.Fatal("driving encounter", zap.String("run_id", run.ID), zap.Error(err))
		}
		rec, err := orch.Finalize(run)
		if err != nil {
			logger.Fatal("finalizing encounter", zap.String("run_id", run.ID), zap.Error(err))
		}
		fmt.Printf("%s: %s in %d rounds (record seq=%d, %d effects)\n",
			next, outcome, run.Enc.Round, rec.Seq, len(rec.Effects))

		var ok bool
		if next, ok = orch.NextQueued(); !ok {
			break
		}
		logger.Info("running forced encounter", zap.String("encounter_id", next))
	}

	if err := play.VerifyReplay(); err != nil {
		logger.Fatal("replay verification failed", zap.Error(err))
	}

	statsSnap := play.StatsSnapshot()
	progSnap := play.ProgressionSnapshot()
	fmt.Printf("axes: darkness=%d control=%d rage=%d suppression=%d\n",
		statsSnap.Darkness, statsSnap.Control, statsSnap.Rage, statsSnap.Suppression)
	fmt.Printf("suit: tier=%d integrity=%d missions=%d powers=%v\n",
		progSnap.SuitTier, progSnap.Integrity, progSnap.MissionsCompleted, progSnap.Powers)

	if *savePath != "" {
		data, err := play.Save()
		if err != nil {
			logger.Fatal("encoding save", zap.Error(err))
		}
		if err := os.WriteFile(*savePath, data, 0644); err != nil {
			logger.Fatal("writing save", zap.String("path", *savePath), zap.Error(err))
		}
		logger.Info("save written", zap.String("path", *savePath))
	}

	if *persist {
		if err := persistRecords(cfg, play); err != nil {
			logger.Fatal("persisting records", zap.Error(err))
		}
		logger.Info("records persisted", zap.String("playthrough_id", id))
	}

	logger.Info("simulation complete", zap.Duration("elapsed", time.Since(start)))
}

// persistRecords mirrors the playthrough's record log into PostgreSQL.
// Already-stored sequence numbers are skipped so a resumed playthrough can be
// re-persisted idempotently.
func persistRecords(cfg config.Config, play *session.Playthrough) error {
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewPlaythroughRepository(pool.DB())
	if _, err := repo.Create(ctx, play.ID(), play.ContentVersion()); err != nil &&
		!errors.Is(err, postgres.ErrPlaythroughExists) {
		return err
	}
	for _, rec := range play.Records() {
		if err := repo.AppendRecord(ctx, play.ID(), rec); err != nil &&
			!errors.Is(err, postgres.ErrSequenceConflict) {
			return err
		}
	}
	return nil
}
