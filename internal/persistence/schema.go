package persistence

type dialect int

const (
	dialectPostgres dialect = iota
	dialectMySQL
	dialectSQLite
)

func (d dialect) driverName() string {
	switch d {
	case dialectPostgres:
		return "pgx"
	case dialectMySQL:
		return "mysql"
	}
	return "libsql"
}

// times are stored as unix seconds so every dialect scans them the same way
var schemas = map[dialect][]string{
	dialectPostgres: {
		`CREATE TABLE IF NOT EXISTS communities (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_submission BIGINT NOT NULL DEFAULT 0,
			last_spam BIGINT NOT NULL DEFAULT 0,
			last_comment BIGINT NOT NULL DEFAULT 0,
			report_threshold INTEGER,
			auto_reapprove BOOLEAN NOT NULL DEFAULT FALSE,
			check_all_conditions BOOLEAN NOT NULL DEFAULT FALSE,
			reported_comments_only BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS conditions (
			id BIGSERIAL PRIMARY KEY,
			community_id BIGINT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			parent_id BIGINT REFERENCES conditions(id) ON DELETE CASCADE,
			subject VARCHAR(20) NOT NULL,
			attribute VARCHAR(40) NOT NULL,
			value TEXT NOT NULL,
			inverse BOOLEAN NOT NULL DEFAULT FALSE,
			is_gold BOOLEAN,
			is_shadowbanned BOOLEAN,
			account_age INTEGER,
			link_karma INTEGER,
			comment_karma INTEGER,
			combined_karma INTEGER,
			action VARCHAR(20),
			comment TEXT,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS action_log (
			id BIGSERIAL PRIMARY KEY,
			community_id BIGINT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			action VARCHAR(20) NOT NULL,
			condition_id BIGINT,
			title TEXT,
			username VARCHAR(255),
			url TEXT,
			domain VARCHAR(255),
			permalink VARCHAR(512),
			item_created_at BIGINT,
			action_time BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS action_log_lookup ON action_log (community_id, permalink, action)`,
		`CREATE TABLE IF NOT EXISTS auto_reapprovals (
			id BIGSERIAL PRIMARY KEY,
			community_id BIGINT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			permalink VARCHAR(512) NOT NULL,
			original_approver VARCHAR(255),
			total_reports INTEGER NOT NULL DEFAULT 0,
			first_approval_time BIGINT NOT NULL,
			last_approval_time BIGINT NOT NULL,
			UNIQUE (community_id, permalink)
		)`,
	},
	dialectMySQL: {
		`CREATE TABLE IF NOT EXISTS communities (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_submission BIGINT NOT NULL DEFAULT 0,
			last_spam BIGINT NOT NULL DEFAULT 0,
			last_comment BIGINT NOT NULL DEFAULT 0,
			report_threshold INT,
			auto_reapprove BOOLEAN NOT NULL DEFAULT FALSE,
			check_all_conditions BOOLEAN NOT NULL DEFAULT FALSE,
			reported_comments_only BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS conditions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			community_id BIGINT NOT NULL,
			parent_id BIGINT,
			subject VARCHAR(20) NOT NULL,
			attribute VARCHAR(40) NOT NULL,
			value TEXT NOT NULL,
			inverse BOOLEAN NOT NULL DEFAULT FALSE,
			is_gold BOOLEAN,
			is_shadowbanned BOOLEAN,
			account_age INT,
			link_karma INT,
			comment_karma INT,
			combined_karma INT,
			action VARCHAR(20),
			comment TEXT,
			notes TEXT,
			FOREIGN KEY (community_id) REFERENCES communities(id) ON DELETE CASCADE,
			FOREIGN KEY (parent_id) REFERENCES conditions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS action_log (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			community_id BIGINT NOT NULL,
			action VARCHAR(20) NOT NULL,
			condition_id BIGINT,
			title TEXT,
			username VARCHAR(255),
			url TEXT,
			domain VARCHAR(255),
			permalink VARCHAR(512),
			item_created_at BIGINT,
			action_time BIGINT NOT NULL,
			INDEX action_log_lookup (community_id, permalink, action),
			FOREIGN KEY (community_id) REFERENCES communities(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS auto_reapprovals (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			community_id BIGINT NOT NULL,
			permalink VARCHAR(512) NOT NULL,
			original_approver VARCHAR(255),
			total_reports INT NOT NULL DEFAULT 0,
			first_approval_time BIGINT NOT NULL,
			last_approval_time BIGINT NOT NULL,
			UNIQUE KEY community_permalink (community_id, permalink),
			FOREIGN KEY (community_id) REFERENCES communities(id) ON DELETE CASCADE
		)`,
	},
	dialectSQLite: {
		`CREATE TABLE IF NOT EXISTS communities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_submission INTEGER NOT NULL DEFAULT 0,
			last_spam INTEGER NOT NULL DEFAULT 0,
			last_comment INTEGER NOT NULL DEFAULT 0,
			report_threshold INTEGER,
			auto_reapprove INTEGER NOT NULL DEFAULT 0,
			check_all_conditions INTEGER NOT NULL DEFAULT 0,
			reported_comments_only INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS conditions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			community_id INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			parent_id INTEGER REFERENCES conditions(id) ON DELETE CASCADE,
			subject TEXT NOT NULL,
			attribute TEXT NOT NULL,
			value TEXT NOT NULL,
			inverse INTEGER NOT NULL DEFAULT 0,
			is_gold INTEGER,
			is_shadowbanned INTEGER,
			account_age INTEGER,
			link_karma INTEGER,
			comment_karma INTEGER,
			combined_karma INTEGER,
			action TEXT,
			comment TEXT,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS action_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			community_id INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			action TEXT NOT NULL,
			condition_id INTEGER,
			title TEXT,
			username TEXT,
			url TEXT,
			domain TEXT,
			permalink TEXT,
			item_created_at INTEGER,
			action_time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS action_log_lookup ON action_log (community_id, permalink, action)`,
		`CREATE TABLE IF NOT EXISTS auto_reapprovals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			community_id INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			permalink TEXT NOT NULL,
			original_approver TEXT,
			total_reports INTEGER NOT NULL DEFAULT 0,
			first_approval_time INTEGER NOT NULL,
			last_approval_time INTEGER NOT NULL,
			UNIQUE (community_id, permalink)
		)`,
	},
}
