package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/db"
	"github.com/genetica/genetica/pkg/pagination"
)

type pgSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) Source {
	return &pgSource{pool: pool}
}

// where accumulates predicates and their positional arguments.
type where struct {
	preds []string
	args  []interface{}
}

func (w *where) arg(v interface{}) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) add(pred string) { w.preds = append(w.preds, pred) }

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (w *where) scope(s access.Scope, column string) {
	pred, args := s.SQL(column, len(w.args)+1)
	w.args = append(w.args, args...)
	w.add(pred)
}

// text matches names and birth id case-insensitively, and the case number
// when text is numeric.
func (w *where) text(text string) {
	if text == "" {
		return
	}
	pattern := w.arg("%"+likeEscaper.Replace(strings.ToLower(text))+"%") + ` ESCAPE '\'`
	preds := []string{
		"LOWER(i.first_names) LIKE " + pattern,
		"LOWER(i.last_names) LIKE " + pattern,
		"LOWER(i.first_names || ' ' || i.last_names) LIKE " + pattern,
		"LOWER(i.birth_id) LIKE " + pattern,
	}
	if n, err := strconv.Atoi(text); err == nil {
		preds = append(preds, "cr.case_number = "+w.arg(n))
	}
	w.add("(" + strings.Join(preds, " OR ") + ")")
}

func (w *where) String() string {
	return strings.Join(w.preds, " AND ")
}

func (s *pgSource) Cases(ctx context.Context, scope access.Scope, f Filter, p pagination.Params) ([]Row, int, error) {
	w := &where{}
	w.scope(scope, "cr.geneticist_id")
	w.text(f.Text)
	if f.From != nil {
		w.add("cr.created_at >= " + w.arg(*f.From))
	}
	if to := f.toExclusive(); to != nil {
		w.add("cr.created_at < " + w.arg(*to))
	}
	switch f.Kind {
	case subject.KindIndividual:
		w.add("cr.motive = " + w.arg(string(clinicalrecord.MotiveIndividualDiagnostic)))
	case subject.KindCouple:
		w.add("cr.motive <> " + w.arg(string(clinicalrecord.MotiveIndividualDiagnostic)))
	}
	if f.GeneticistID != nil {
		w.add("cr.geneticist_id = " + w.arg(*f.GeneticistID))
	}

	q := fmt.Sprintf(`SELECT cr.id, cr.case_number, cr.motive, cr.geneticist_id, COALESCE(gp.display_name, ''), cr.created_at,
			i.id, i.first_names, i.last_names, i.birth_id, i.status, COUNT(*) OVER ()
		FROM clinical_record cr
		JOIN individual i ON i.record_id = cr.id
		LEFT JOIN geneticist_profile gp ON gp.id = cr.geneticist_id
		WHERE %s
		ORDER BY cr.created_at DESC, cr.case_number, i.last_names, i.first_names, i.id
		LIMIT %s OFFSET %s`, w, w.arg(p.Limit), w.arg(p.Offset))

	rows, err := db.Conn(ctx, s.pool).Query(ctx, q, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search cases: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	total := 0
	for rows.Next() {
		var r Row
		var motive, status string
		if err := rows.Scan(&r.RecordID, &r.CaseNumber, &motive, &r.GeneticistID, &r.GeneticistName, &r.OpenedAt,
			&r.IndividualID, &r.FirstNames, &r.LastNames, &r.BirthID, &status, &total); err != nil {
			return nil, 0, err
		}
		r.Motive = clinicalrecord.Motive(motive)
		r.Kind = r.Motive.SubjectKind()
		r.Status = subject.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(out) == 0 && p.Offset > 0 {
		if total, err = s.countCases(ctx, w); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// countCases recovers the total when the requested page is past the end.
func (s *pgSource) countCases(ctx context.Context, w *where) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*)
		FROM clinical_record cr
		JOIN individual i ON i.record_id = cr.id
		WHERE %s`, w)
	var n int
	err := db.Conn(ctx, s.pool).QueryRow(ctx, q, w.args[:len(w.args)-2]...).Scan(&n)
	return n, err
}

func (s *pgSource) Individuals(ctx context.Context, scope access.Scope, text string, limit int) ([]IndividualHit, error) {
	w := &where{}
	w.scope(scope, "cr.geneticist_id")
	w.text(text)

	q := fmt.Sprintf(`SELECT i.id, i.first_names, i.last_names, i.birth_id, i.status, i.record_id, cr.case_number, i.created_at
		FROM individual i
		LEFT JOIN clinical_record cr ON cr.id = i.record_id
		WHERE %s
		ORDER BY i.created_at DESC, i.id
		LIMIT %s`, w, w.arg(limit))

	rows, err := db.Conn(ctx, s.pool).Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search individuals: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (IndividualHit, error) {
		var h IndividualHit
		var status string
		err := row.Scan(&h.ID, &h.FirstNames, &h.LastNames, &h.BirthID, &status, &h.RecordID, &h.CaseNumber, &h.CreatedAt)
		h.Status = subject.Status(status)
		return h, err
	})
}

func (s *pgSource) Summary(ctx context.Context, scope access.Scope, now time.Time) (*Summary, error) {
	out := newSummary(now)
	conn := db.Conn(ctx, s.pool)

	pred, args := scope.SQL("geneticist_id", 1)
	rows, err := conn.Query(ctx, `SELECT motive, COUNT(*) FROM clinical_record WHERE `+pred+` GROUP BY motive`, args...)
	if err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}
	if err := collectCounts(rows, out.CasesByMotive); err != nil {
		return nil, err
	}
	for _, n := range out.CasesByMotive {
		out.Cases += n
	}

	pred, args = scope.SQL("cr.geneticist_id", 1)
	rows, err = conn.Query(ctx, `SELECT i.status, COUNT(*)
		FROM individual i
		LEFT JOIN clinical_record cr ON cr.id = i.record_id
		WHERE `+pred+` GROUP BY i.status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count individuals: %w", err)
	}
	if err := collectCounts(rows, out.IndividualsByStatus); err != nil {
		return nil, err
	}
	return out, nil
}

func collectCounts(rows pgx.Rows, into map[string]int) error {
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
