package fetcher

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV(t *testing.T) {
	feed := "Acme Corp,Jane Smith,VP Operations\nGlobex,Sam Lee,Plant Manager\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Acme Corp", "Jane Smith", "VP Operations"}, rows[0])
	assert.Equal(t, []string{"Globex", "Sam Lee", "Plant Manager"}, rows[1])
}

func TestStreamCSV_PipeDelimited(t *testing.T) {
	// Some vendor dumps use pipes to dodge commas in company names.
	feed := "Smith, Jones & Co|Pat Moore\nAcme Corp|Jane Smith\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{
		Delimiter: '|',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Smith, Jones & Co", "Pat Moore"}, rows[0])
}

func TestStreamCSV_Header(t *testing.T) {
	feed := "Company,Contact\nAcme Corp,Jane Smith\nGlobex,Sam Lee\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Acme Corp", "Jane Smith"}, rows[0])
	assert.Equal(t, []string{"Globex", "Sam Lee"}, rows[1])
	assert.Equal(t, []string{"Company", "Contact"}, <-headerCh)
}

func TestStreamCSV_HeaderSkippedWithoutChannel(t *testing.T) {
	feed := "Company,Contact\nAcme Corp,Jane Smith\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{
		HasHeader: true,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Acme Corp", "Jane Smith"}, rows[0])
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	feed := " Company , Contact \n Acme Corp , Jane Smith \n"
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Acme Corp", "Jane Smith"}, rows[0])
	assert.Equal(t, []string{"Company", "Contact"}, <-headerCh)
}

func TestStreamCSV_Comment(t *testing.T) {
	feed := "# export 2026-08-25\nAcme Corp,Jane Smith\n# trailing note\nGlobex,Sam Lee\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{
		Comment: '#',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Acme Corp", "Jane Smith"}, rows[0])
	assert.Equal(t, []string{"Globex", "Sam Lee"}, rows[1])
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	// Stray quote inside an unquoted field, seen in hand-edited exports.
	feed := "Acme \"HQ\" Corp,Jane Smith\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{
		LazyQuotes: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestStreamCSV_VariableWidthRows(t *testing.T) {
	feed := "Acme Corp,Jane Smith,VP\nGlobex,Sam Lee\nInitech,Pat Moore,CTO,Austin\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(feed), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 3)
	assert.Len(t, rows[1], 2)
	assert.Len(t, rows[2], 4)
}

func TestStreamCSV_Empty(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_HeaderOnly(t *testing.T) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("Company,Contact\n"), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []string{"Company", "Contact"}, <-headerCh)
}

// droppingReader fails with failErr once limit bytes have been read.
type droppingReader struct {
	data    string
	pos     int
	limit   int
	failErr error
}

func (r *droppingReader) Read(p []byte) (int, error) {
	if r.pos >= r.limit {
		return 0, r.failErr
	}
	n := copy(p, r.data[r.pos:])
	if r.pos+n > r.limit {
		n = r.limit - r.pos
	}
	r.pos += n
	return n, nil
}

func TestStreamCSV_ReadError(t *testing.T) {
	r := &droppingReader{
		data:    "Acme Corp,Jane Smith\nGlobex,Sam Lee\n",
		limit:   10,
		failErr: io.ErrUnexpectedEOF,
	}

	rowCh, errCh := StreamCSV(context.Background(), r, CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_CancelMidStream(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("Acme Corp,Jane Smith\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range rowCh {
		count++
		if count >= 5 {
			cancel()
			break
		}
	}
	for range rowCh {
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	// The goroutine may drain its buffered rows before it notices.
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
	cancel()
}

func TestStreamCSV_CancelBeforeHeaderSend(t *testing.T) {
	headerCh := make(chan []string) // unbuffered, nothing will read it

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader("Company,Contact\nAcme Corp,Jane Smith\n"), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	cancel()

	for range rowCh {
	}
	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
}
