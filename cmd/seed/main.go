package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/yungbote/experiment-backend/internal/db"
	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/repos"
	"github.com/yungbote/experiment-backend/internal/services"
	"github.com/yungbote/experiment-backend/internal/types"
)

// Seeds experiments from a YAML definition file, for bootstrapping new
// environments. Definitions go through the engine so they get the same
// validation as API-created experiments.

type seedVariant struct {
	Name     string         `yaml:"name"`
	Weight   float64        `yaml:"weight"`
	Content  map[string]any `yaml:"content"`
	Metadata map[string]any `yaml:"metadata"`
}

type seedExperiment struct {
	Name            string                   `yaml:"name"`
	Description     string                   `yaml:"description"`
	Status          string                   `yaml:"status"`
	Variants        []seedVariant            `yaml:"variants"`
	TargetingRules  types.TargetingRules     `yaml:"targeting_rules"`
	Metrics         types.MetricsConfig      `yaml:"metrics"`
	Settings        types.ExperimentSettings `yaml:"settings"`
	MinSampleSize   int                      `yaml:"min_sample_size"`
	MaxDurationDays int                      `yaml:"max_duration_days"`
}

type seedFile struct {
	Experiments []seedExperiment `yaml:"experiments"`
}

func main() {
	path := flag.String("file", "experiments.yaml", "path to the seed definition file")
	flag.Parse()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	raw, err := os.ReadFile(*path)
	if err != nil {
		log.Fatal("Could not read seed file", "path", *path, "error", err)
	}
	definitions, err := parseSeedFile(raw)
	if err != nil {
		log.Fatal("Could not parse seed file", "path", *path, "error", err)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	engine := services.NewExperimentEngine(
		thePG,
		log,
		repos.NewExperimentRepo(thePG, log),
		repos.NewParticipantRepo(thePG, log),
		repos.NewEventRepo(thePG, log),
		services.NopNotifier{},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, definition := range definitions.Experiments {
		id, err := engine.CreateExperiment(ctx, buildExperiment(definition))
		if err != nil {
			log.Error("Seed experiment rejected", "name", definition.Name, "error", err)
			continue
		}
		log.Info("Seeded experiment", "name", definition.Name, "experiment_id", id)
	}
}

func parseSeedFile(raw []byte) (seedFile, error) {
	var definitions seedFile
	if err := yaml.Unmarshal(raw, &definitions); err != nil {
		return seedFile{}, err
	}
	return definitions, nil
}

func buildExperiment(definition seedExperiment) *types.Experiment {
	experiment := &types.Experiment{
		Name:            definition.Name,
		Description:     definition.Description,
		Status:          types.ExperimentStatus(definition.Status),
		TargetingRules:  datatypes.NewJSONType(definition.TargetingRules),
		Metrics:         datatypes.NewJSONType(definition.Metrics),
		Settings:        datatypes.NewJSONType(definition.Settings),
		MinSampleSize:   definition.MinSampleSize,
		MaxDurationDays: definition.MaxDurationDays,
	}
	for _, variant := range definition.Variants {
		experiment.Variants = append(experiment.Variants, &types.Variant{
			Name:     variant.Name,
			Weight:   variant.Weight,
			Content:  marshalJSON(variant.Content),
			Metadata: marshalJSON(variant.Metadata),
		})
	}
	return experiment
}

func marshalJSON(value map[string]any) datatypes.JSON {
	if len(value) == 0 {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
