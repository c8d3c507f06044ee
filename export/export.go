// Package export writes analysis results to files for use outside the
// service: parquet tables for climb records and power curves, and an HTML
// chart of monthly climbing trends.
package export

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lucasjlepore/fit-analytics/climb"
	"github.com/lucasjlepore/fit-analytics/model"
)

type climbRow struct {
	ClimbID        string  `parquet:"name=climb_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name           string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Category       string  `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DistanceKM     float64 `parquet:"name=distance_km, type=DOUBLE"`
	ElevationM     float64 `parquet:"name=elevation_m, type=DOUBLE"`
	AvgGradientPct float64 `parquet:"name=avg_gradient_pct, type=DOUBLE"`
	DurationS      float64 `parquet:"name=duration_s, type=DOUBLE"`
	VAMMPerH       float64 `parquet:"name=vam_m_per_h, type=DOUBLE"`
	AvgPowerW      float64 `parquet:"name=avg_power_w, type=DOUBLE"`
	ActivityID     string  `parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DateUTCISO     string  `parquet:"name=date_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type powerCurveRow struct {
	DurationS        int64   `parquet:"name=duration_s, type=INT64"`
	BestPowerW       float64 `parquet:"name=best_power_w, type=DOUBLE"`
	SourceActivityID string  `parquet:"name=source_activity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	DateUTCISO       string  `parquet:"name=date_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ClimbsParquet encodes climb records as a snappy-compressed parquet file.
// A record without power gets NaN in avg_power_w.
func ClimbsParquet(records []model.ClimbRecord) ([]byte, error) {
	rows := make([]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, climbRow{
			ClimbID:        r.ClimbID,
			Name:           r.Name,
			Category:       string(r.Category),
			DistanceKM:     r.DistanceKM,
			ElevationM:     r.ElevationM,
			AvgGradientPct: r.AvgGradientPct,
			DurationS:      r.DurationS,
			VAMMPerH:       r.VAMMPerH,
			AvgPowerW:      valueOrNaN(r.AvgPowerW),
			ActivityID:     r.ActivityID,
			DateUTCISO:     isoDate(r.Date),
		})
	}
	return marshalParquet(new(climbRow), rows)
}

// PowerCurveParquet encodes a power curve as a parquet file.
func PowerCurveParquet(curve []model.PowerCurvePoint) ([]byte, error) {
	rows := make([]interface{}, 0, len(curve))
	for _, p := range curve {
		rows = append(rows, powerCurveRow{
			DurationS:        int64(p.DurationS),
			BestPowerW:       p.BestPowerW,
			SourceActivityID: p.SourceActivityID,
			DateUTCISO:       isoDate(p.Date),
		})
	}
	return marshalParquet(new(powerCurveRow), rows)
}

func marshalParquet(schema interface{}, rows []interface{}) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// ClimbTrendChart renders monthly climb buckets as a standalone HTML line
// chart with average VAM, best VAM and total elevation per month.
func ClimbTrendChart(w io.Writer, buckets []climb.MonthlyBucket, title string) error {
	months := make([]string, 0, len(buckets))
	avgVAM := make([]opts.LineData, 0, len(buckets))
	maxVAM := make([]opts.LineData, 0, len(buckets))
	elevation := make([]opts.LineData, 0, len(buckets))
	for _, b := range buckets {
		months = append(months, b.Month.Format("Jan 2006"))
		avgVAM = append(avgVAM, opts.LineData{Value: math.Round(b.AvgVAM)})
		maxVAM = append(maxVAM, opts.LineData{Value: math.Round(b.MaxVAM)})
		elevation = append(elevation, opts.LineData{Value: math.Round(b.TotalElevationM)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "VAM in m/h, elevation in m"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Month"}),
	)
	line.SetXAxis(months).
		AddSeries("Avg VAM", avgVAM).
		AddSeries("Best VAM", maxVAM).
		AddSeries("Elevation", elevation, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render climb trend chart: %w", err)
	}
	return nil
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
