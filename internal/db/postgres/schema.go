package postgres

// json rather than jsonb keeps metadata key order as written.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS ragdex_workspaces (
		name       text PRIMARY KEY,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ragdex_documents (
		workspace text NOT NULL REFERENCES ragdex_workspaces(name) ON DELETE CASCADE,
		id        text NOT NULL,
		content   text NOT NULL,
		metadata  json NOT NULL DEFAULT '{}',
		embedding vector,
		PRIMARY KEY (workspace, id)
	)`,
}

const sqlWorkspaceExists = `SELECT EXISTS (SELECT 1 FROM ragdex_workspaces WHERE name = $1)`

const sqlListWorkspaces = `SELECT name FROM ragdex_workspaces ORDER BY name`

const sqlListDocuments = `
SELECT id, content, metadata::text
FROM ragdex_documents
WHERE workspace = $1 AND id > $2
ORDER BY id
LIMIT $3`

const sqlCountDocuments = `SELECT count(*) FROM ragdex_documents WHERE workspace = $1`

// knnSQL builds the nearest-neighbour query for the distance operator.
func knnSQL(op string) string {
	return `
SELECT id, content, metadata::text, embedding ` + op + ` $2::vector AS distance
FROM ragdex_documents
WHERE workspace = $1 AND embedding IS NOT NULL
ORDER BY distance
LIMIT $3`
}
