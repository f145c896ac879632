package broker

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/exp/slices"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/jsonld"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/connector"
	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

var tracer = otel.Tracer("catalog-connector/svcs/broker")

// DefaultAnnounceTTL is how long a confirmed broker index entry is
// trusted before the next contact re-checks it.
const DefaultAnnounceTTL = 10 * time.Second

type Service interface {
	Broker() string

	IsFresh() bool
	AnnounceToBroker(ctx context.Context) bool

	SearchBroker(ctx context.Context, text string, limit, offset int) (string, error)
	QueryBroker(ctx context.Context, sparql string) (string, error)
	AskBrokerForDescription(ctx context.Context, uri string) (jsonld.Graph, error)
	SendResourceToBroker(ctx context.Context, resourceIRI string) bool

	Search(ctx context.Context, q string, fq []string, offset int) ([]domain.CatalogRecord, error)
}

// New creates a broker service that reaches the metadata broker through
// the local dataspace connector's IDS endpoints.
func New(logger zerolog.Logger, cc connector.Client, brokerURL, localNodeName, siteURL string, ttl time.Duration) Service {
	if ttl <= 0 {
		ttl = DefaultAnnounceTTL
	}

	return &brokerSvc{
		connector:     cc,
		brokerURL:     brokerURL,
		localNodeName: localNodeName,
		siteURL:       siteURL,
		ttl:           ttl,
		log:           logger,
	}
}

type brokerSvc struct {
	connector     connector.Client
	brokerURL     string
	localNodeName string
	siteURL       string

	ttl time.Duration

	mu            sync.Mutex
	lastAnnounced time.Time

	log zerolog.Logger
}

func (svc *brokerSvc) Broker() string {
	return svc.brokerURL
}

func (svc *brokerSvc) IsFresh() bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return !svc.lastAnnounced.IsZero() && time.Since(svc.lastAnnounced) <= svc.ttl
}

func (svc *brokerSvc) refresh() {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.lastAnnounced = time.Now()
}

// AnnounceToBroker makes sure the broker has an index entry for this
// connector. While the last confirmation is fresh this is a no-op. A 417
// with an "empty" body or a result set without data rows means the broker
// has forgotten us and a connector update is sent. Any other failure mode
// still refreshes the timestamp so that transient broker errors are not
// hammered with announcements.
func (svc *brokerSvc) AnnounceToBroker(ctx context.Context) bool {
	if svc.IsFresh() {
		return true
	}

	ctx, span := tracer.Start(ctx, "announce-to-broker")
	defer span.End()

	catalogs, err := svc.connector.GetCatalogs(ctx)
	if err != nil {
		svc.log.Error().Err(err).Msg("failed to list connector catalogs")
		return false
	}

	status, body, err := svc.connector.Query(ctx, svc.brokerURL, resourcesInCatalogsQuery(catalogs))
	if err != nil {
		svc.log.Error().Err(err).Msg("broker freshness query failed")
		return false
	}

	required := false
	if status == http.StatusExpectationFailed {
		required = strings.Contains(strings.ToLower(body), "empty")
	} else if status < http.StatusMultipleChoices {
		required = len(ParseTabular(body)) == 0
	}

	if required {
		svc.log.Info().Msg("broker has no index entry for this connector, announcing")
		if err := svc.connector.ConnectorUpdate(ctx, svc.brokerURL); err != nil {
			svc.log.Error().Err(err).Msg("failed to announce connector to broker")
			return false
		}
	}

	svc.refresh()
	return true
}

func (svc *brokerSvc) SearchBroker(ctx context.Context, text string, limit, offset int) (string, error) {
	svc.AnnounceToBroker(ctx)
	return svc.connector.Search(ctx, svc.brokerURL, text, limit, offset)
}

func (svc *brokerSvc) QueryBroker(ctx context.Context, sparql string) (string, error) {
	svc.AnnounceToBroker(ctx)

	status, body, err := svc.connector.Query(ctx, svc.brokerURL, sparql)
	if err != nil {
		return "", err
	}

	if status >= http.StatusMultipleChoices || len(body) == 0 {
		return "", &connector.Error{StatusCode: status, Body: body, URL: svc.brokerURL}
	}

	return body, nil
}

// AskBrokerForDescription fetches the broker's full description graph for
// a resource. Values too short to be a URI are answered with an empty
// graph straight away.
func (svc *brokerSvc) AskBrokerForDescription(ctx context.Context, uri string) (jsonld.Graph, error) {
	if len(uri) < 5 || !strings.Contains(uri, ":") {
		return jsonld.Graph{}, nil
	}

	svc.AnnounceToBroker(ctx)

	body, err := svc.connector.DescriptionRequest(ctx, svc.brokerURL, uri)
	if err != nil {
		return jsonld.Graph{}, err
	}

	return jsonld.Parse(body)
}

// SendResourceToBroker pushes a resource update to the broker index. The
// call is best effort: a failure is logged and reported as false but
// never raised.
func (svc *brokerSvc) SendResourceToBroker(ctx context.Context, resourceIRI string) bool {
	svc.AnnounceToBroker(ctx)

	if err := svc.connector.ResourceUpdate(ctx, svc.brokerURL, resourceIRI); err != nil {
		svc.log.Error().Err(err).Msgf("failed to send resource %s to broker", resourceIRI)
		return false
	}

	return true
}

// Search runs the general resource query against the broker and returns
// the matching rows as package-shaped catalog records.
func (svc *brokerSvc) Search(ctx context.Context, q string, fq []string, offset int) ([]domain.CatalogRecord, error) {
	var err error
	ctx, span := tracer.Start(ctx, "broker-search")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	searchString := q
	if searchString == "*:*" {
		searchString = ""
	}

	body, err := svc.QueryBroker(ctx, allResourcesQuery(svc.localNodeName, requestedType(fq), searchString))
	if err != nil {
		return nil, err
	}

	records := []domain.CatalogRecord{}
	seen := []string{}

	for _, row := range ParseTabular(body) {
		if jsonld.StripAngles(row["type"]) != jsonld.ResourceClassURI {
			continue
		}
		uri := jsonld.StripAngles(row["resultUri"])
		if slices.Contains(seen, uri) {
			continue
		}
		seen = append(seen, uri)
		records = append(records, *jsonld.RecordFromQueryRow(row, svc.siteURL))
	}

	return records, nil
}

// requestedType extracts the dataset type from a facet query list, e.g.
// []string{"+dataset_type:service"} yields "Service".
func requestedType(fq []string) string {
	for _, facet := range fq {
		if !strings.Contains(facet, "+dataset_type") {
			continue
		}
		for _, token := range strings.Split(facet, " ") {
			if strings.HasPrefix(token, "+dataset_type") {
				parts := strings.Split(token, ":")
				return capitalize(parts[len(parts)-1])
			}
		}
	}
	return ""
}
