// AgroSense Irrigation Database CLI Tool
// Provides command-line access to the irrigation controller database
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	rootCmd = &cobra.Command{
		Use:   "irrigation-db",
		Short: "AgroSense Irrigation Database CLI",
		Long:  "Command-line tool for inspecting and managing the irrigation controller database.",
	}

	readingsCmd = &cobra.Command{
		Use:   "readings [zone-id]",
		Short: "Show sensor readings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showReadings,
	}

	npkCmd = &cobra.Command{
		Use:   "npk [zone-id]",
		Short: "Show NPK readings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showNPK,
	}

	humidityCmd = &cobra.Command{
		Use:   "humidity [zone-id]",
		Short: "Show humidity readings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showHumidity,
	}

	waterCmd = &cobra.Command{
		Use:   "water",
		Short: "Show reservoir level readings",
		RunE:  showWater,
	}

	irrigationsCmd = &cobra.Command{
		Use:   "irrigations [zone-id]",
		Short: "Show irrigation events",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showIrrigations,
	}

	fertilizersCmd = &cobra.Command{
		Use:   "fertilizers [zone-id]",
		Short: "Show fertilizer events",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showFertilizers,
	}

	analysesCmd = &cobra.Command{
		Use:   "analyses [zone-id]",
		Short: "Show soil moisture analyses",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showAnalyses,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE:  showStats,
	}

	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a raw SQL query",
		Args:  cobra.ExactArgs(1),
		RunE:  executeQuery,
	}

	limit int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/agrosense/irrigation.db", "Database file path")

	for _, c := range []*cobra.Command{readingsCmd, npkCmd, humidityCmd, irrigationsCmd, fertilizersCmd, analysesCmd} {
		c.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	}

	rootCmd.AddCommand(readingsCmd)
	rootCmd.AddCommand(npkCmd)
	rootCmd.AddCommand(humidityCmd)
	rootCmd.AddCommand(waterCmd)
	rootCmd.AddCommand(irrigationsCmd)
	rootCmd.AddCommand(fertilizersCmd)
	rootCmd.AddCommand(analysesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?mode=ro")
}

// zoneFilter builds an optional WHERE clause for commands taking a zone arg.
func zoneFilter(args []string) (string, []interface{}) {
	if len(args) == 1 {
		return "WHERE zone_id = ?", []interface{}{args[0]}
	}
	return "", nil
}

func showReadings(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	where, params := zoneFilter(args)
	params = append(params, limit)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT zone_id, sensor_type, value, unit, timestamp
		FROM sensor_readings %s ORDER BY timestamp DESC LIMIT ?
	`, where), params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tTYPE\tVALUE\tUNIT\tTIMESTAMP")
	fmt.Fprintln(w, "----\t----\t-----\t----\t---------")

	for rows.Next() {
		var zone, sensorType string
		var unit sql.NullString
		var value float64
		var ts time.Time
		if err := rows.Scan(&zone, &sensorType, &value, &unit, &ts); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
			zone, sensorType, value, unit.String, ts.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showNPK(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	where, params := zoneFilter(args)
	params = append(params, limit)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT zone_id, nitrogen, phosphorus, potassium, timestamp
		FROM npk_readings %s ORDER BY timestamp DESC LIMIT ?
	`, where), params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tN\tP\tK\tTIMESTAMP")
	fmt.Fprintln(w, "----\t-\t-\t-\t---------")

	for rows.Next() {
		var zone string
		var n, p, k float64
		var ts time.Time
		if err := rows.Scan(&zone, &n, &p, &k, &ts); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%s\n", zone, n, p, k, ts.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showHumidity(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	where, params := zoneFilter(args)
	params = append(params, limit)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT zone_id, humidity, temperature, status, timestamp
		FROM humidity_readings %s ORDER BY timestamp DESC LIMIT ?
	`, where), params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tHUMIDITY\tTEMP\tSTATUS\tTIMESTAMP")
	fmt.Fprintln(w, "----\t--------\t----\t------\t---------")

	for rows.Next() {
		var zone, status string
		var humidity float64
		var temp sql.NullFloat64
		var ts time.Time
		if err := rows.Scan(&zone, &humidity, &temp, &status, &ts); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.1f%%\t%.1f\t%s\t%s\n",
			zone, humidity, temp.Float64, status, ts.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showWater(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT level_percent, current_liters, capacity_liters, tank_status, timestamp
		FROM water_level_readings ORDER BY timestamp DESC LIMIT 20
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tCURRENT\tCAPACITY\tSTATUS\tTIMESTAMP")
	fmt.Fprintln(w, "-----\t-------\t--------\t------\t---------")

	for rows.Next() {
		var level float64
		var current, capacity sql.NullFloat64
		var status sql.NullString
		var ts time.Time
		if err := rows.Scan(&level, &current, &capacity, &status, &ts); err != nil {
			return err
		}
		fmt.Fprintf(w, "%.1f%%\t%.0fL\t%.0fL\t%s\t%s\n",
			level, current.Float64, capacity.Float64, status.String, ts.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showIrrigations(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	where, params := zoneFilter(args)
	params = append(params, limit)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT zone_id, amount_mm, volume_liters, duration_min, moisture_before, moisture_after,
			trigger, model_version, timestamp
		FROM irrigation_events %s ORDER BY timestamp DESC LIMIT ?
	`, where), params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tAMOUNT\tVOLUME\tDURATION\tMOISTURE\tTRIGGER\tMODEL\tTIMESTAMP")
	fmt.Fprintln(w, "----\t------\t------\t--------\t--------\t-------\t-----\t---------")

	for rows.Next() {
		var zone, trigger string
		var model sql.NullString
		var amount, volume, duration float64
		var before, after sql.NullFloat64
		var ts time.Time
		if err := rows.Scan(&zone, &amount, &volume, &duration, &before, &after, &trigger, &model, &ts); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.1fmm\t%.0fL\t%.1fmin\t%.1f→%.1f\t%s\t%s\t%s\n",
			zone, amount, volume, duration, before.Float64, after.Float64,
			trigger, model.String, ts.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showFertilizers(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	where, params := zoneFilter(args)
	params = append(params, limit)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT zone_id, nutrient, amount_kg_per_ha, reason, timestamp
		FROM fertilizer_events %s ORDER BY timestamp DESC LIMIT ?
	`, where), params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tNUTRIENT\tAMOUNT\tREASON\tTIMESTAMP")
	fmt.Fprintln(w, "----\t--------\t------\t------\t---------")

	for rows.Next() {
		var zone, nutrient string
		var reason sql.NullString
		var amount float64
		var ts time.Time
		if err := rows.Scan(&zone, &nutrient, &amount, &reason, &ts); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f kg/ha\t%s\t%s\n",
			zone, nutrient, amount, reason.String, ts.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showAnalyses(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	where, params := zoneFilter(args)
	params = append(params, limit)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT zone_id, moisture_pct, paw_percent, status, irrigation_needed, timestamp
		FROM soil_analyses %s ORDER BY timestamp DESC LIMIT ?
	`, where), params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tMOISTURE\tPAW\tSTATUS\tNEEDED\tTIMESTAMP")
	fmt.Fprintln(w, "----\t--------\t---\t------\t------\t---------")

	for rows.Next() {
		var zone, status string
		var moisture, paw float64
		var needed bool
		var ts time.Time
		if err := rows.Scan(&zone, &moisture, &paw, &status, &needed, &ts); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.1f%%\t%.1f%%\t%s\t%v\t%s\n",
			zone, moisture, paw, status, needed, ts.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	tables := []string{
		"sensor_readings", "npk_readings", "humidity_readings",
		"water_level_readings", "irrigation_events", "fertilizer_events", "soil_analyses",
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	fmt.Fprintln(w, "-----\t----")

	for _, table := range tables {
		var count int64
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", table, count)
	}

	var volume float64
	if err := db.QueryRow("SELECT COALESCE(SUM(volume_liters), 0) FROM irrigation_events").Scan(&volume); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ntotal pumped\t%.0f L\n", volume)
	return w.Flush()
}

func executeQuery(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(args[0])
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		parts := make([]string, len(cols))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				parts[i] = "NULL"
			case []byte:
				parts[i] = string(val)
			default:
				parts[i] = fmt.Sprint(val)
			}
		}
		fmt.Fprintln(w, strings.Join(parts, "\t"))
	}
	return w.Flush()
}
