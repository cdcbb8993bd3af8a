package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/hazardlink/internal/framecodec"
	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/pipeline"
)

// RecordCycle persists one fusion cycle in a single transaction.
func (db *DB) RecordCycle(ctx context.Context, r pipeline.CycleResult) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cycle tx: %w", err)
	}
	defer tx.Rollback()

	var sweepSamples int
	var sweepMin, runningMin, runningMean sql.NullFloat64
	closeAhead := false
	if p := r.Proximity; p != nil {
		sweepSamples = p.Samples
		sweepMin = nullDistance(p.SweepMinMm)
		runningMin = nullDistance(p.RunningMinMm)
		runningMean = nullDistance(p.RunningMeanMm)
		closeAhead = p.CloseAhead
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fusion_cycles (
			cycle_id, run_id, seq, started_unix_nano, duration_nano,
			skipped, skip_error, detections, sweep_valid, sweep_samples,
			sweep_min_mm, running_min_mm, running_mean_mm, close_ahead, tx_hex
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CycleID.String(), r.RunID.String(), int64(r.Seq), r.Started.UnixNano(), int64(r.Duration),
		nullString(string(r.Skipped)), nullString(r.SkipErr), len(r.Detections), r.SweepValid, sweepSamples,
		sweepMin, runningMin, runningMean, closeAhead, nullString(r.TxHex()),
	)
	if err != nil {
		return fmt.Errorf("insert cycle %d: %w", r.Seq, err)
	}

	if len(r.Observations) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO observations (
				cycle_id, idx, class_id, confidence, angle_degrees, distance_mm,
				object_type, hazard_level, sector, outbound
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare observation insert: %w", err)
		}
		defer stmt.Close()

		last := len(r.Observations) - 1
		for i, o := range r.Observations {
			var conf sql.NullFloat64
			if i < len(r.Detections) {
				conf = sql.NullFloat64{Float64: float64(r.Detections[i].Confidence), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				r.CycleID.String(), i, o.ClassID, conf, float64(o.AngleDegrees), nullDistance(o.DistanceMm),
				int(o.Object), int(o.Hazard), int(o.Sector), i == last,
			); err != nil {
				return fmt.Errorf("insert observation %d: %w", i, err)
			}
		}
	}

	if p := r.Peer; p != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO peer_reports (cycle_id, hazard_level, object_type, sector) VALUES (?, ?, ?, ?)`,
			r.CycleID.String(), int(p.Hazard), int(p.Object), int(p.Sector),
		); err != nil {
			return fmt.Errorf("insert peer report: %w", err)
		}
	}

	if le := r.LinkErr; le != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO link_errors (cycle_id, kind, detail, rx_hex) VALUES (?, ?, ?, ?)`,
			r.CycleID.String(), string(le.Kind), le.Detail, nullString(le.RxHex),
		); err != nil {
			return fmt.Errorf("insert link error: %w", err)
		}
	}

	return tx.Commit()
}

// CycleRow is one stored cycle summary.
type CycleRow struct {
	CycleID     string
	RunID       string
	Seq         uint64
	Started     time.Time
	Duration    time.Duration
	Skipped     string
	Detections  int
	SweepValid  bool
	CloseAhead  bool
	TxHex       string
	Peer        *framecodec.PeerReport
	LinkErrKind string
}

// RecentCycles returns up to limit cycles, newest first.
func (db *DB) RecentCycles(ctx context.Context, limit int) ([]CycleRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.cycle_id, c.run_id, c.seq, c.started_unix_nano, c.duration_nano,
		       COALESCE(c.skipped, ''), c.detections, c.sweep_valid, c.close_ahead,
		       COALESCE(c.tx_hex, ''),
		       p.hazard_level, p.object_type, p.sector,
		       COALESCE(e.kind, '')
		  FROM fusion_cycles c
		  LEFT JOIN peer_reports p ON p.cycle_id = c.cycle_id
		  LEFT JOIN link_errors e ON e.cycle_id = c.cycle_id
		 ORDER BY c.started_unix_nano DESC, c.seq DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var (
			c                      CycleRow
			startedNano, durNano   int64
			hazard, object, sector sql.NullInt64
		)
		if err := rows.Scan(
			&c.CycleID, &c.RunID, &c.Seq, &startedNano, &durNano,
			&c.Skipped, &c.Detections, &c.SweepValid, &c.CloseAhead,
			&c.TxHex,
			&hazard, &object, &sector,
			&c.LinkErrKind,
		); err != nil {
			return nil, err
		}
		c.Started = time.Unix(0, startedNano)
		c.Duration = time.Duration(durNano)
		if hazard.Valid {
			c.Peer = &framecodec.PeerReport{
				Hazard: fusion.HazardLevel(hazard.Int64),
				Object: fusion.ObjectType(object.Int64),
				Sector: fusion.Sector(sector.Int64),
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CycleObservations returns the stored observations of one cycle in
// detection order. Unknown distances come back as fusion.UnknownDistance.
func (db *DB) CycleObservations(ctx context.Context, cycleID string) ([]fusion.FusedObservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT class_id, angle_degrees, distance_mm, object_type, hazard_level, sector
		  FROM observations
		 WHERE cycle_id = ?
		 ORDER BY idx`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fusion.FusedObservation
	for rows.Next() {
		var (
			o                      fusion.FusedObservation
			angle                  float64
			dist                   sql.NullFloat64
			object, hazard, sector int64
		)
		if err := rows.Scan(&o.ClassID, &angle, &dist, &object, &hazard, &sector); err != nil {
			return nil, err
		}
		o.AngleDegrees = float32(angle)
		o.DistanceMm = fusion.UnknownDistance
		if dist.Valid {
			o.DistanceMm = float32(dist.Float64)
		}
		o.Object = fusion.ObjectType(object)
		o.Hazard = fusion.HazardLevel(hazard)
		o.Sector = fusion.Sector(sector)
		out = append(out, o)
	}
	return out, rows.Err()
}

// HazardCounts tallies stored observations with a non-zero hazard level
// for one run, keyed by hazard level.
func (db *DB) HazardCounts(ctx context.Context, runID string) (map[fusion.HazardLevel]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT hazard_level, COUNT(*)
		  FROM hazard_observations
		 WHERE run_id = ?
		 GROUP BY hazard_level`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[fusion.HazardLevel]int)
	for rows.Next() {
		var level int64
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		out[fusion.HazardLevel(level)] = n
	}
	return out, rows.Err()
}

func nullDistance(mm float32) sql.NullFloat64 {
	if mm == fusion.UnknownDistance {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(mm), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
