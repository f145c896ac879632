package presentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/contracts"
	"github.com/trusts-eu/catalog-connector/internal/pkg/infrastructure/repositories/database"
)

func newAPIForTesting(t *testing.T) *connectorAPI {
	is := is.New(t)

	t.Setenv("CONNECTOR_URL", "http://localhost:18080")
	t.Setenv("CONNECTOR_USERNAME", "testuser")
	t.Setenv("CONNECTOR_PASSWORD", "testpass")
	t.Setenv("BROKER_URL", "http://localhost:18081")
	t.Setenv("CATALOG_SITE_URL", "http://localhost:18082")

	db, err := database.NewDatabaseConnection(database.NewSQLiteConnector(""))
	is.NoErr(err)

	schema, err := contracts.LoadTemplates(strings.NewReader(testPolicyTemplates))
	is.NoErr(err)

	return newConnectorAPI(context.Background(), chi.NewRouter(), db, schema)
}

func TestHealthProbe(t *testing.T) {
	is := is.New(t)
	api := newAPIForTesting(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)

	api.router.ServeHTTP(w, req)
	is.Equal(w.Code, http.StatusOK)
}

func TestSearchDegradesWhenConnectorIsUnreachable(t *testing.T) {
	is := is.New(t)
	api := newAPIForTesting(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/search?q=air", nil)

	api.router.ServeHTTP(w, req)
	is.Equal(w.Code, http.StatusOK) // an unreachable broker yields an empty result, not an error
	is.Equal(strings.TrimSpace(w.Body.String()), "[]")
}

func TestAcceptContractOfferRejectsIncompleteRequests(t *testing.T) {
	is := is.New(t)
	api := newAPIForTesting(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/contracts/accept", strings.NewReader(`{}`))

	api.router.ServeHTTP(w, req)
	is.Equal(w.Code, http.StatusBadRequest)
}

const testPolicyTemplates string = `
policy_templates:
  - type: PROVIDE_ACCESS
    rule: '{"@type": "ids:Permission", "ids:title": "${title}", "ids:action": "USE"}'
`
