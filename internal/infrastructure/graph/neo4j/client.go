package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// Client resolves documents related to query keywords through the knowledge
// graph. Concepts are linked to documents during ingestion; this core only
// traverses REFERENCES (direct citation) and RELATED_TO (same domain) edges.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Client{driver: driver, database: database}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

const relatedQuery = `
UNWIND $keywords AS kw
MATCH (concept:Concept) WHERE toLower(concept.name) CONTAINS toLower(kw)
MATCH (concept)<-[rel:REFERENCES|RELATED_TO]-(doc:Document)
RETURN doc.id AS id, doc.title AS title, type(rel) AS relation,
       coalesce(rel.weight, 0.5) AS weight
ORDER BY weight DESC
LIMIT $limit`

// Related returns documents connected to any of the keywords. REFERENCES
// edges come back as reference hits, RELATED_TO as domain-related.
func (c *Client) Related(ctx context.Context, keywords []string, limit int) ([]domain.GraphHit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	result, err := neo4j.ExecuteQuery(ctx, c.driver, relatedQuery,
		map[string]any{"keywords": keywords, "limit": limit},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProvider, "knowledge graph lookup", err)
	}

	out := make([]domain.GraphHit, 0, len(result.Records))
	seen := make(map[string]struct{}, len(result.Records))
	for _, record := range result.Records {
		id := recordString(record, "id")
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		relation := domain.GraphDomainRelated
		if recordString(record, "relation") == "REFERENCES" {
			relation = domain.GraphReference
		}
		out = append(out, domain.GraphHit{
			Document: domain.Document{
				ID:    id,
				Title: recordString(record, "title"),
			},
			Relation: relation,
			Score:    recordFloat(record, "weight"),
		})
	}
	return out, nil
}

func recordString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordFloat(record *neo4j.Record, key string) float64 {
	v, ok := record.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}
