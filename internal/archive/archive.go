// Package archive exports finished days of battery data to Parquet files.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/topabomb/BatteryMaster/internal/model"
)

const day = 24 * time.Hour

// Reader is the subset of the store the archiver reads from.
type Reader interface {
	SelectOneMinute(ctx context.Context, start, end int64) ([]model.TierSample, error)
	SelectHistoryRange(ctx context.Context, start, end int64) ([]model.HistoryRecord, error)
}

// Result reports what an export wrote. A zero count with Skipped false means
// there was nothing to write.
type Result struct {
	Day       string `json:"day"`
	OneMinute int64  `json:"one_minute"`
	History   int64  `json:"history"`
	Skipped   bool   `json:"skipped"`
}

// Archiver periodically exports the previous UTC day.
type Archiver struct {
	src      Reader
	dir      string
	interval time.Duration
	now      func() time.Time
}

// New creates an Archiver writing into dir every interval.
func New(src Reader, dir string, interval time.Duration) *Archiver {
	if interval <= 0 {
		interval = day
	}
	return &Archiver{src: src, dir: dir, interval: interval, now: time.Now}
}

// Run exports once immediately and then on every tick until ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	slog.Info("archiver started", "dir", a.dir, "interval", a.interval)

	a.exportPrevious(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			a.exportPrevious(ctx)
		}
	}
}

func (a *Archiver) exportPrevious(ctx context.Context) {
	d := a.now().UTC().Truncate(day).Add(-day)
	res, err := a.ExportDay(ctx, d)
	if err != nil {
		slog.Error("archiving day", "day", d.Format(time.DateOnly), "error", err)
		return
	}
	slog.Info("archive complete", "day", res.Day, "one_minute", res.OneMinute,
		"history", res.History, "skipped", res.Skipped)
}

// ExportDay writes the one-minute rows and history intervals that started on
// the UTC day containing d. Files that already exist are left alone.
func (a *Archiver) ExportDay(ctx context.Context, d time.Time) (Result, error) {
	start := d.UTC().Truncate(day)
	end := start.Add(day)
	stamp := start.Format("20060102")
	res := Result{Day: start.Format(time.DateOnly)}

	minutePath := filepath.Join(a.dir, "one_minute_"+stamp+".parquet")
	historyPath := filepath.Join(a.dir, "history_"+stamp+".parquet")
	minuteDone, historyDone := exists(minutePath), exists(historyPath)
	if minuteDone && historyDone {
		res.Skipped = true
		return res, nil
	}

	if !minuteDone {
		samples, err := a.src.SelectOneMinute(ctx, start.Unix(), end.Unix()-1)
		if err != nil {
			return res, fmt.Errorf("reading one-minute tier: %w", err)
		}
		if len(samples) > 0 {
			n, err := writeFile(minutePath, oneMinuteRows(samples))
			if err != nil {
				return res, fmt.Errorf("writing %s: %w", minutePath, err)
			}
			res.OneMinute = n
		}
	}

	if !historyDone {
		recs, err := a.src.SelectHistoryRange(ctx, start.Unix(), end.Unix())
		if err != nil {
			return res, fmt.Errorf("reading history: %w", err)
		}
		if len(recs) > 0 {
			n, err := writeFile(historyPath, historyRows(recs))
			if err != nil {
				return res, fmt.Errorf("writing %s: %w", historyPath, err)
			}
			res.History = n
		}
	}
	return res, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func oneMinuteRows(samples []model.TierSample) []OneMinuteRow {
	rows := make([]OneMinuteRow, len(samples))
	for i, s := range samples {
		rows[i] = OneMinuteRow{
			Timestamp:        s.Timestamp,
			State:            string(s.State),
			Percentage:       s.Percentage,
			EnergyRate:       s.EnergyRate,
			Voltage:          s.Voltage,
			CPULoad:          s.CPULoad,
			ScreenBrightness: s.ScreenBrightness,
			StateOfHealth:    s.StateOfHealth,
		}
	}
	return rows
}

func historyRows(recs []model.HistoryRecord) []HistoryRow {
	rows := make([]HistoryRow, len(recs))
	for i, r := range recs {
		row := HistoryRow{
			Timestamp:        r.Timestamp,
			State:            string(r.State),
			Capacity:         r.Capacity,
			FullCapacity:     r.FullCapacity,
			DesignCapacity:   r.DesignCapacity,
			Percentage:       r.Percentage,
			StateOfHealth:    r.StateOfHealth,
			EnergyRate:       r.EnergyRate,
			Voltage:          r.Voltage,
			CPULoad:          r.CPULoad,
			ScreenBrightness: r.ScreenBrightness,
		}
		if r.Prev != nil {
			row.Prev = string(*r.Prev)
		}
		if r.EndAt != nil {
			row.EndAt = *r.EndAt
		}
		rows[i] = row
	}
	return rows
}
