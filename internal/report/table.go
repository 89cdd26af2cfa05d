package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"EMAScreener/internal/model"
)

// ErrSerialization marks a record that cannot be written; the whole report is rejected.
var ErrSerialization = errors.New("report serialization failed")

// Columns is the fixed header of the report table.
var Columns = []string{
	"Symbol", "Name", "Exchange", "Date",
	"Open", "High", "Low", "Close", "Volume",
	"50_EMA", "Low_vs_EMA", "Close_vs_EMA", "Qualifies",
}

const dateLayout = "2006-01-02"

// Row is one parsed table row, with numbers as they were rounded for output.
type Row struct {
	Symbol     string
	Name       string
	Exchange   string
	Date       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	EMA50      float64
	LowVsEMA   string
	CloseVsEMA string
	Qualifies  bool
}

// RowFromRecord returns the row a record serializes to.
func RowFromRecord(r model.QualificationRecord) Row {
	return Row{
		Symbol:     r.Bar.Symbol,
		Name:       r.Bar.Name,
		Exchange:   r.Bar.Exchange,
		Date:       time.Date(r.Bar.Date.Year(), r.Bar.Date.Month(), r.Bar.Date.Day(), 0, 0, 0, 0, time.UTC),
		Open:       round2(r.Bar.Open),
		High:       round2(r.Bar.High),
		Low:        round2(r.Bar.Low),
		Close:      round2(r.Bar.Close),
		Volume:     r.Bar.Volume,
		EMA50:      round2(r.EMA50),
		LowVsEMA:   r.LowVsEMA(),
		CloseVsEMA: r.CloseVsEMA(),
		Qualifies:  r.Qualifies,
	}
}

// WriteTable writes the qualifying records of rep as CSV. The header is
// always written. Nothing is written if any record is malformed.
func WriteTable(w io.Writer, rep *model.AnalysisReport) error {
	if rep == nil {
		return fmt.Errorf("%w: nil report", ErrSerialization)
	}

	rows := make([][]string, 0, len(rep.Records)+1)
	rows = append(rows, Columns)
	for i, r := range rep.Records {
		if !r.Qualifies {
			continue
		}
		if err := validate(r); err != nil {
			return fmt.Errorf("%w: record %d (%q): %v", ErrSerialization, i, r.Bar.Symbol, err)
		}
		rows = append(rows, []string{
			r.Bar.Symbol,
			r.Bar.Name,
			r.Bar.Exchange,
			r.Bar.Date.Format(dateLayout),
			fixed2(r.Bar.Open),
			fixed2(r.Bar.High),
			fixed2(r.Bar.Low),
			fixed2(r.Bar.Close),
			strconv.FormatInt(r.Bar.Volume, 10),
			fixed2(r.EMA50),
			r.LowVsEMA(),
			r.CloseVsEMA(),
			yesNo(r.Qualifies),
		})
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}

// ToTable returns the CSV bytes for rep.
func ToTable(rep *model.AnalysisReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, rep); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseTable reads a table produced by WriteTable.
func ParseTable(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, c := range Columns {
		if header[i] != c {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i+1, header[i], c)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (Row, error) {
	row := Row{
		Symbol:     rec[0],
		Name:       rec[1],
		Exchange:   rec[2],
		LowVsEMA:   rec[10],
		CloseVsEMA: rec[11],
	}

	date, err := time.Parse(dateLayout, rec[3])
	if err != nil {
		return Row{}, fmt.Errorf("date: %w", err)
	}
	row.Date = date

	nums := []*float64{&row.Open, &row.High, &row.Low, &row.Close}
	for i, dst := range nums {
		v, err := strconv.ParseFloat(rec[4+i], 64)
		if err != nil {
			return Row{}, fmt.Errorf("%s: %w", Columns[4+i], err)
		}
		*dst = v
	}
	if row.Volume, err = strconv.ParseInt(rec[8], 10, 64); err != nil {
		return Row{}, fmt.Errorf("Volume: %w", err)
	}
	if row.EMA50, err = strconv.ParseFloat(rec[9], 64); err != nil {
		return Row{}, fmt.Errorf("50_EMA: %w", err)
	}

	switch rec[12] {
	case "YES":
		row.Qualifies = true
	case "NO":
	default:
		return Row{}, fmt.Errorf("Qualifies: unexpected value %q", rec[12])
	}
	for _, label := range []string{row.LowVsEMA, row.CloseVsEMA} {
		if label != model.LabelAbove && label != model.LabelBelow {
			return Row{}, fmt.Errorf("unexpected comparison label %q", label)
		}
	}
	return row, nil
}

func validate(r model.QualificationRecord) error {
	if r.Bar.Symbol == "" {
		return errors.New("empty symbol")
	}
	if r.Bar.Date.IsZero() {
		return errors.New("missing date")
	}
	if r.Bar.Volume < 0 {
		return errors.New("negative volume")
	}
	for _, v := range []float64{r.Bar.Open, r.Bar.High, r.Bar.Low, r.Bar.Close, r.EMA50} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite price")
		}
	}
	return nil
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
