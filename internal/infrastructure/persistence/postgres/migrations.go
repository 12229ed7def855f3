package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_courses",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
	}
}

const migration001Up = `
-- Migration: Create the course record table
-- Version: 001

CREATE TABLE IF NOT EXISTS courses (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    teacher TEXT NOT NULL DEFAULT '',
    position TEXT NOT NULL DEFAULT '',
    start_date TIMESTAMP WITH TIME ZONE,
    end_date TIMESTAMP WITH TIME ZONE,
    select_start_date TIMESTAMP WITH TIME ZONE,
    select_end_date TIMESTAMP WITH TIME ZONE,
    cancel_end_date TIMESTAMP WITH TIME ZONE,
    current_count INTEGER NOT NULL DEFAULT 0,
    max_count INTEGER NOT NULL DEFAULT 0,
    status SMALLINT NOT NULL DEFAULT 0,
    notified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_status CHECK (status BETWEEN 0 AND 3)
);

-- Status scans drive the waiting monitor and startup re-arming.
CREATE INDEX IF NOT EXISTS idx_courses_status ON courses(status) WHERE status != 0;
CREATE INDEX IF NOT EXISTS idx_courses_notified ON courses(notified) WHERE notified = FALSE;
CREATE INDEX IF NOT EXISTS idx_courses_select_start ON courses(select_start_date);
`

const migration001Down = `
DROP TABLE IF EXISTS courses;
`
