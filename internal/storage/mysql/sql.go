package mysql

// The unique key on (user_id, platform, external_id) is load-bearing: the
// pipeline's dedupe check is read-then-write and two overlapping ingestions
// can both pass it. The constraint turns the lost race into a duplicate-key
// error which the repo reports as domain.ErrDuplicate.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
  id    BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  email VARCHAR(255) NOT NULL,
  name  VARCHAR(255) NOT NULL,
  UNIQUE KEY uq_users_email (email)
);

CREATE TABLE IF NOT EXISTS locations (
  id      BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  user_id BIGINT NOT NULL,
  name    VARCHAR(255) NOT NULL,
  KEY ix_locations_user (user_id),
  CONSTRAINT fk_locations_user FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS reviews (
  id              BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  user_id         BIGINT NOT NULL,
  location_id     BIGINT NULL,
  platform        VARCHAR(32)  NOT NULL,
  external_id     VARCHAR(255) NOT NULL,
  reviewer_name   VARCHAR(255) NOT NULL,
  rating          TINYINT NOT NULL,
  ` + "`text`" + `          TEXT NOT NULL,
  sentiment_score DOUBLE NOT NULL,
  is_resolved     TINYINT(1) NOT NULL DEFAULT 0,
  response        TEXT NULL,
  created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  ingested_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE KEY uq_reviews_user_platform_ext (user_id, platform, external_id),
  KEY ix_reviews_user_created (user_id, created_at, id)
);

CREATE TABLE IF NOT EXISTS alerts (
  id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  user_id    BIGINT NOT NULL,
  alert_type VARCHAR(64) NOT NULL,
  content    TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  is_read    TINYINT(1) NOT NULL DEFAULT 0,
  KEY ix_alerts_user_created (user_id, created_at, id)
);
`

// Note: `text` is a keyword; keep it quoted everywhere.
const insertReviewSQL = "INSERT INTO reviews\n" +
	"  (user_id, location_id, platform, external_id, reviewer_name, rating, `text`, sentiment_score, is_resolved, response, created_at)\n" +
	"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))"

const insertAlertSQL = `
INSERT INTO alerts (user_id, alert_type, content, created_at, is_read)
VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), 0)
`

const selectReviewColumns = "id, user_id, location_id, platform, external_id, reviewer_name, rating, `text`, sentiment_score, is_resolved, response, created_at"

const listReviewsByPlatformSQL = "SELECT " + selectReviewColumns + `
 FROM reviews
 WHERE user_id = ? AND platform = ?
 ORDER BY created_at DESC, id DESC`

const listAlertsSQL = `
SELECT id, user_id, alert_type, content, created_at, is_read
FROM alerts
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
