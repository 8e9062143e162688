package driver

// Person nodes are keyed by identity_key; id is the stable uuid handed out
// on creation. Field values live as flat properties named after model.Field.

const (
	FindPersonByIdentityQuery = `
		MATCH (p:Person {identity_key: $identity_key})
		OPTIONAL MATCH (p)-[:CITED_IN]->(s:Source)
		RETURN p, collect(s.id) AS citations
	`

	FindPersonsByNameQuery = `
		MATCH (p:Person {name_key: $name_key})
		OPTIONAL MATCH (p)-[:CITED_IN]->(s:Source)
		RETURN p, collect(s.id) AS citations
		ORDER BY p.identity_key
	`

	UpsertPersonQuery = `
		OPTIONAL MATCH (existing:Person {identity_key: $identity_key})
		WITH existing IS NULL AS created
		MERGE (p:Person {identity_key: $identity_key})
		ON CREATE SET p.id = $id,
			p.created_at = $now,
			p.updated_at = $now
		SET p += $props,
			p.name_key = $name_key,
			p.stub = false
		FOREACH (_ IN CASE WHEN $touch THEN [1] ELSE [] END | SET p.updated_at = $now)
		RETURN p.id AS id, created
	`

	EnsurePersonQuery = `
		OPTIONAL MATCH (existing:Person {identity_key: $identity_key})
		WITH existing IS NULL AS created
		MERGE (p:Person {identity_key: $identity_key})
		ON CREATE SET p.id = $id,
			p.name_key = $name_key,
			p.full_name = $full_name,
			p.stub = true,
			p.created_at = $now,
			p.updated_at = $now
		RETURN p.id AS id, created
	`

	UpsertSourceQuery = `
		OPTIONAL MATCH (existing:Source {id: $id})
		WITH existing IS NULL AS created
		MERGE (s:Source {id: $id})
		ON CREATE SET s.created_at = $now
		SET s.url = $url,
			s.site = $site,
			s.name = $name,
			s.published = $published
		RETURN created
	`

	UpsertCitationQuery = `
		MATCH (p:Person {id: $person_id})
		MATCH (s:Source {id: $source_id})
		OPTIONAL MATCH (p)-[existing:CITED_IN]->(s)
		WITH p, s, existing IS NULL AS created
		MERGE (p)-[c:CITED_IN]->(s)
		ON CREATE SET c.created_at = $now
		SET c.confidence = $confidence,
			c.birth_year_calculated = $birth_year_calculated
		RETURN created
	`

	// %s is a whitelisted relationship type from model.RelationshipKind.EdgeType.
	upsertRelationshipQueryFmt = `
		MATCH (a:Person {identity_key: $from_key})
		MATCH (b:Person {identity_key: $to_key})
		OPTIONAL MATCH (a)-[existing:%[1]s]->(b)
		WITH a, b, existing IS NULL AS created
		MERGE (a)-[r:%[1]s]->(b)
		ON CREATE SET r.created_at = $now
		RETURN created
	`
)

// Schema statements per backend flavor.
var (
	neo4jSchema = []string{
		"CREATE CONSTRAINT person_identity_key IF NOT EXISTS FOR (p:Person) REQUIRE p.identity_key IS UNIQUE",
		"CREATE CONSTRAINT person_id IF NOT EXISTS FOR (p:Person) REQUIRE p.id IS UNIQUE",
		"CREATE CONSTRAINT source_id IF NOT EXISTS FOR (s:Source) REQUIRE s.id IS UNIQUE",
		"CREATE INDEX person_name_key IF NOT EXISTS FOR (p:Person) ON (p.name_key)",
	}

	memgraphSchema = []string{
		"CREATE INDEX ON :Person(identity_key);",
		"CREATE INDEX ON :Person(id);",
		"CREATE INDEX ON :Person(name_key);",
		"CREATE INDEX ON :Source(id);",
		"CREATE CONSTRAINT ON (p:Person) ASSERT p.identity_key IS UNIQUE;",
		"CREATE CONSTRAINT ON (s:Source) ASSERT s.id IS UNIQUE;",
	}
)
