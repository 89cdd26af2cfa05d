package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMAScreener/internal/model"
	"EMAScreener/internal/strategy"
)

var runDate = time.Date(2024, 6, 28, 18, 0, 0, 0, time.UTC)

func bar(symbol, name string, low, close float64) model.PriceBar {
	return model.PriceBar{
		Symbol:   symbol,
		Name:     name,
		Exchange: "XNYS",
		Date:     time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC),
		Open:     close - 0.5,
		High:     close + 1.005,
		Low:      low,
		Close:    close,
		Volume:   1234567,
	}
}

func sampleReport() *model.AnalysisReport {
	analyzed := []model.QualificationRecord{
		strategy.Qualify(bar("BRK.B", `Berkshire Hathaway, Inc. "B"`, 399.1234, 405.675), 400.005),
		strategy.Qualify(bar("XOM", "Exxon Mobil", 111, 112), 110),
		strategy.Qualify(bar("T", "AT&T\nInc", 17.2, 18.9), 18.3333),
	}
	return model.NewAnalysisReport("run-1", runDate, analyzed, nil)
}

func TestWriteTable_Format(t *testing.T) {
	data, err := ToTable(sampleReport())
	require.NoError(t, err)

	lines := strings.SplitN(string(data), "\n", 2)
	assert.Equal(t, "Symbol,Name,Exchange,Date,Open,High,Low,Close,Volume,50_EMA,Low_vs_EMA,Close_vs_EMA,Qualifies", lines[0])
	assert.Contains(t, lines[1],
		`BRK.B,"Berkshire Hathaway, Inc. ""B""",XNYS,2024-06-27,405.18,406.68,399.12,405.68,1234567,400.01,Below,Above,YES`)
	assert.NotContains(t, string(data), "XOM", "non-qualifying rows are not emitted")
}

func TestWriteTable_HeaderOnlyWhenEmpty(t *testing.T) {
	rep := model.NewAnalysisReport("run-2", runDate, nil, nil)
	data, err := ToTable(rep)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Columns, ",")+"\n", string(data))

	rows, err := ParseTable(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRoundTrip(t *testing.T) {
	rep := sampleReport()
	data, err := ToTable(rep)
	require.NoError(t, err)

	rows, err := ParseTable(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, rep.QualifyingStocks)

	for i, rec := range rep.Records {
		assert.Equal(t, RowFromRecord(rec), rows[i])
	}
	assert.Equal(t, "AT&T\nInc", rows[1].Name)
}

func TestWriteTable_Malformed(t *testing.T) {
	tests := map[string]func(*model.QualificationRecord){
		"empty symbol": func(r *model.QualificationRecord) { r.Bar.Symbol = "" },
		"nan ema":      func(r *model.QualificationRecord) { r.EMA50 = math.NaN() },
		"inf close":    func(r *model.QualificationRecord) { r.Bar.Close = math.Inf(1) },
		"zero date":    func(r *model.QualificationRecord) { r.Bar.Date = time.Time{} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			rep := sampleReport()
			mutate(&rep.Records[0])
			var buf bytes.Buffer
			err := WriteTable(&buf, rep)
			assert.ErrorIs(t, err, ErrSerialization)
			assert.Zero(t, buf.Len(), "nothing written for a malformed report")
		})
	}
}

func TestParseTable_Errors(t *testing.T) {
	_, err := ParseTable(strings.NewReader("Ticker,Name\n"))
	assert.Error(t, err)

	bad := strings.Join(Columns, ",") + "\nA,B,C,2024-01-01,1,2,3,4,5,6,Sideways,Above,YES\n"
	_, err = ParseTable(strings.NewReader(bad))
	assert.Error(t, err)

	bad = strings.Join(Columns, ",") + "\nA,B,C,2024-01-01,x,2,3,4,5,6,Below,Above,YES\n"
	_, err = ParseTable(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "ema50_screen_2024-06-28.csv", Filename("ema50_screen", runDate))
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, data, err := Save(dir, "screen", sampleReport())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "screen_2024-06-28.csv"), path)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSave_MalformedWritesNothing(t *testing.T) {
	dir := t.TempDir()
	rep := sampleReport()
	rep.Records[0].Bar.Symbol = ""
	_, _, err := Save(dir, "screen", rep)
	assert.ErrorIs(t, err, ErrSerialization)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestNewSummary(t *testing.T) {
	rep := sampleReport()
	rep.Skipped = []model.SkippedSymbol{{Symbol: "ZZZ", Reason: model.SkipDataUnavailable}}
	s := NewSummary(rep, "screen_2024-06-28.csv")
	assert.Equal(t, 3, s.TotalStocks)
	assert.Equal(t, 2, s.QualifyingStocks)
	assert.Equal(t, 1, s.SkippedStocks)
	assert.Equal(t, []string{"BRK.B", "T"}, s.Qualifying)
}
