package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"sovereign/internal/config"
	"sovereign/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- decisions ---

func (r Repo) InsertDecision(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	quorum, err := marshalStringSlice(d.Quorum)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO decisions(id,question,status,quorum_json,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		d.ID, d.Question, d.Status, quorum, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,question,status,COALESCE(quorum_json,''),created_at,updated_at FROM decisions WHERE id=?`, id)
	var d domain.Decision
	var quorum string
	err := row.Scan(&d.ID, &d.Question, &d.Status, &quorum, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if quorum != "" {
		if err := json.Unmarshal([]byte(quorum), &d.Quorum); err != nil {
			return d, fmt.Errorf("decision %s quorum: %w", id, err)
		}
	}
	return d, nil
}

func (r Repo) ListDecisions(ctx context.Context) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,question,status,COALESCE(quorum_json,''),created_at,updated_at FROM decisions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		var d domain.Decision
		var quorum string
		if err := rows.Scan(&d.ID, &d.Question, &d.Status, &quorum, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if quorum != "" {
			_ = json.Unmarshal([]byte(quorum), &d.Quorum)
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) UpdateDecisionStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE decisions SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SaveVerdict(ctx context.Context, tx *sql.Tx, decisionID, fingerprint string, v domain.Verdict, updatedAt string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE decisions SET verdict_json=?, fingerprint=?, status='deliberated', updated_at=? WHERE id=?`,
		string(data), fingerprint, updatedAt, decisionID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetVerdict(ctx context.Context, decisionID string) (domain.Verdict, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(verdict_json,''),COALESCE(fingerprint,'') FROM decisions WHERE id=?`, decisionID)
	var raw, fingerprint string
	err := row.Scan(&raw, &fingerprint)
	if err == sql.ErrNoRows {
		return domain.Verdict{}, "", ErrNotFound
	}
	if err != nil {
		return domain.Verdict{}, "", err
	}
	if raw == "" {
		return domain.Verdict{}, "", ErrNotFound
	}
	var v domain.Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return domain.Verdict{}, "", fmt.Errorf("decision %s verdict: %w", decisionID, err)
	}
	return v, fingerprint, nil
}

// --- context fields ---

func (r Repo) UpsertContextField(ctx context.Context, tx *sql.Tx, decisionID, path string, f domain.Field, updatedAt string) error {
	value, err := json.Marshal(f.Value)
	if err != nil {
		return fmt.Errorf("marshal context value: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO context_fields(decision_id,path,value_json,confidence,stable,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(decision_id,path) DO UPDATE SET value_json=excluded.value_json, confidence=excluded.confidence, stable=excluded.stable, updated_at=excluded.updated_at`,
		decisionID, path, string(value), f.Confidence, boolInt(f.Stable), updatedAt)
	return err
}

func (r Repo) GetContext(ctx context.Context, decisionID string) (domain.DecisionContext, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT path,COALESCE(value_json,'null'),confidence,stable FROM context_fields WHERE decision_id=?`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	dctx := domain.DecisionContext{}
	for rows.Next() {
		var path, value string
		var f domain.Field
		var stable int
		if err := rows.Scan(&path, &value, &f.Confidence, &stable); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(value), &f.Value); err != nil {
			return nil, fmt.Errorf("context field %s: %w", path, err)
		}
		f.Stable = stable != 0
		dctx[path] = f
	}
	return dctx, rows.Err()
}

// --- question history ---

func (r Repo) AppendQuestionEntry(ctx context.Context, tx *sql.Tx, e domain.QuestionEntry) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO question_history(decision_id,ts,requester,field,reason,status,reject_reason,answered) VALUES (?,?,?,?,?,?,?,?)`,
		e.DecisionID, e.TS, e.Requester, e.Field, nullable(e.Reason), e.Status, nullable(e.RejectReason), boolInt(e.Answered))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) QuestionHistory(ctx context.Context, decisionID string) ([]domain.QuestionEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,decision_id,ts,requester,field,COALESCE(reason,''),status,COALESCE(reject_reason,''),answered FROM question_history WHERE decision_id=? ORDER BY id`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QuestionEntry
	for rows.Next() {
		var e domain.QuestionEntry
		var answered int
		if err := rows.Scan(&e.ID, &e.DecisionID, &e.TS, &e.Requester, &e.Field, &e.Reason, &e.Status, &e.RejectReason, &answered); err != nil {
			return nil, err
		}
		e.Answered = answered != 0
		res = append(res, e)
	}
	return res, rows.Err()
}

// MarkQuestionAnswered consumes the oldest unanswered ALLOWED entry for the
// field. Returns ErrNotFound when no open answer slot exists.
func (r Repo) MarkQuestionAnswered(ctx context.Context, tx *sql.Tx, decisionID, field string) error {
	row := tx.QueryRowContext(ctx, `SELECT id FROM question_history WHERE decision_id=? AND field=? AND status=? AND answered=0 ORDER BY id LIMIT 1`,
		decisionID, field, domain.QuestionAllowed)
	var id int64
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE question_history SET answered=1 WHERE id=?`, id)
	return err
}

// --- positions / objections ---

func (r Repo) InsertPosition(ctx context.Context, tx *sql.Tx, decisionID string, p domain.Position, createdAt string) error {
	blocking, err := marshalStringSlice(p.BlockingConditions)
	if err != nil {
		return err
	}
	nonneg, err := marshalStringSlice(p.NonNegotiables)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO positions(decision_id,advisor,stance,confidence,claim,blocking_json,non_negotiables_json,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		decisionID, p.Advisor, string(p.Stance), p.Confidence, p.Claim, blocking, nonneg, createdAt)
	return err
}

func (r Repo) ListPositions(ctx context.Context, decisionID string) ([]domain.Position, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT advisor,stance,confidence,claim,COALESCE(blocking_json,''),COALESCE(non_negotiables_json,'') FROM positions WHERE decision_id=? ORDER BY advisor`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Position
	for rows.Next() {
		var p domain.Position
		var stance, blocking, nonneg string
		if err := rows.Scan(&p.Advisor, &stance, &p.Confidence, &p.Claim, &blocking, &nonneg); err != nil {
			return nil, err
		}
		p.Stance = domain.Stance(stance)
		if blocking != "" {
			_ = json.Unmarshal([]byte(blocking), &p.BlockingConditions)
		}
		if nonneg != "" {
			_ = json.Unmarshal([]byte(nonneg), &p.NonNegotiables)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertObjection(ctx context.Context, tx *sql.Tx, decisionID string, o domain.Objection, createdAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO objections(decision_id,from_advisor,against_advisor,severity,text,created_at) VALUES (?,?,?,?,?,?)`,
		decisionID, o.From, o.Against, string(o.Severity), o.Text, createdAt)
	return err
}

func (r Repo) ListObjections(ctx context.Context, decisionID string) ([]domain.Objection, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT from_advisor,against_advisor,severity,text FROM objections WHERE decision_id=? ORDER BY id`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Objection
	for rows.Next() {
		var o domain.Objection
		var sev string
		if err := rows.Scan(&o.From, &o.Against, &sev, &o.Text); err != nil {
			return nil, err
		}
		o.Severity = domain.Severity(sev)
		res = append(res, o)
	}
	return res, rows.Err()
}

// --- authority (calibration store) ---

func (r Repo) GetAuthority(ctx context.Context, advisor, domainName string) (domain.Authority, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT advisor,domain,value,updated_at FROM authority WHERE advisor=? AND domain=?`, advisor, domainName)
	var a domain.Authority
	err := row.Scan(&a.Advisor, &a.Domain, &a.Value, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) UpsertAuthority(ctx context.Context, tx *sql.Tx, a domain.Authority) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO authority(advisor,domain,value,updated_at) VALUES (?,?,?,?)
ON CONFLICT(advisor,domain) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		a.Advisor, a.Domain, a.Value, a.UpdatedAt)
	return err
}

func (r Repo) ListAuthority(ctx context.Context) ([]domain.Authority, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT advisor,domain,value,updated_at FROM authority ORDER BY advisor,domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Authority
	for rows.Next() {
		var a domain.Authority
		if err := rows.Scan(&a.Advisor, &a.Domain, &a.Value, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) TailEvents(ctx context.Context, limit int, decisionID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,ts,type,COALESCE(decision_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	args := []any{}
	if decisionID != "" {
		query += ` WHERE decision_id=?`
		args = append(args, decisionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.DecisionID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64, decisionID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,COALESCE(decision_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>?`
	args := []any{afterID}
	if decisionID != "" {
		query += ` AND decision_id=?`
		args = append(args, decisionID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.DecisionID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	err := row.Scan(&id)
	return id, err
}

// --- council config ---

func (r Repo) UpsertCouncilConfig(ctx context.Context, cfg *config.Config, updatedAt string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.UpsertCouncilConfigTx(ctx, tx, cfg, updatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) UpsertCouncilConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config, updatedAt string) error {
	data, err := marshalConfig(cfg)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO council_config(id,yaml,updated_at) VALUES (1,?,?)
ON CONFLICT(id) DO UPDATE SET yaml=excluded.yaml, updated_at=excluded.updated_at`, data, updatedAt)
	return err
}

func (r Repo) GetCouncilConfig(ctx context.Context) (*config.Config, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT yaml FROM council_config WHERE id=1`)
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(raw))
}

// --- helpers ---

func marshalConfig(cfg *config.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func marshalStringSlice(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
