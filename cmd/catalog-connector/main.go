package main

import (
	"context"
	"flag"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/go-chi/chi/v5"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/contracts"
	"github.com/trusts-eu/catalog-connector/internal/pkg/infrastructure/repositories/database"
	"github.com/trusts-eu/catalog-connector/internal/pkg/presentation"
)

var policyTemplateFileName string

func main() {
	serviceName := "catalog-connector"
	serviceVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	log.Info().Msgf("Starting up %s ...", serviceName)

	flag.StringVar(&policyTemplateFileName, "policies", "/opt/connector/policies.yaml", "A yaml file containing the contract policy templates")
	flag.Parse()

	templateFile, err := os.Open(policyTemplateFileName)
	if err != nil {
		log.Fatal().Err(err).Msgf("unable to open policy template file %s", policyTemplateFileName)
	}

	schema, err := contracts.LoadTemplates(templateFile)
	templateFile.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load contract policy templates")
	}

	dbPath := os.Getenv("AGREEMENTS_DB_PATH")
	db, err := database.NewDatabaseConnection(database.NewSQLiteConnector(dbPath))
	if err != nil {
		log.Fatal().Msgf("failed to connect to database, shutting down... %s", err.Error())
	}

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8880"
	}

	r := chi.NewRouter()

	api := presentation.NewAPI(ctx, r, db, schema)
	err = api.Start(port)
	if err != nil {
		log.Fatal().Msgf("failed to start router: %s", err.Error())
	}
}
