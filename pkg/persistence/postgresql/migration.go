package postgresql

// migrations returns the ordered schema migrations for the PostgreSQL store.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				tenant_id   TEXT NOT NULL,
				id          TEXT NOT NULL,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version     INTEGER NOT NULL DEFAULT 1,
				definition  JSONB NOT NULL,
				created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (tenant_id, id)
			);

			CREATE TABLE IF NOT EXISTS runs (
				tenant_id     TEXT NOT NULL,
				id            TEXT NOT NULL,
				workflow_id   TEXT NOT NULL,
				status        TEXT NOT NULL,
				trigger_input JSONB,
				output        JSONB,
				error         TEXT NOT NULL DEFAULT '',
				started_at    TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at   TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (tenant_id, id)
			);

			CREATE INDEX IF NOT EXISTS idx_runs_workflow
				ON runs (tenant_id, workflow_id, started_at DESC);

			CREATE TABLE IF NOT EXISTS node_results (
				tenant_id   TEXT NOT NULL,
				run_id      TEXT NOT NULL,
				node_id     TEXT NOT NULL,
				status      TEXT NOT NULL,
				output      JSONB,
				failure     JSONB,
				started_at  TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, run_id, node_id)
			);
		`,
	}
}
