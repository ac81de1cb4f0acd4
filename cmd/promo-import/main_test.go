package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func TestDecodeMergeValidate(t *testing.T) {
	dir := t.TempDir()
	first := writeGz(t, dir, "promotions1.ndjson.gz",
		`{"code":"TENOFF","name":"10% off","kind":"percentage","value":10,"active":true}`,
		``,
		`{"code":"COMBO1CF","name":"Coffee + Pastry","kind":"combo","active":true,"comboCondition":{"requiredItems":[{"category":"coffee","minQuantity":1},{"category":"pastry","minQuantity":1}],"discount":{"type":"fixed","value":20000}}}`,
	)
	second := writeGz(t, dir, "promotions2.ndjson.gz",
		`{"code":"TENOFF","name":"12% off","kind":"percentage","value":"12","active":true}`,
		`{"code":"BOGUS","name":"Unknown","kind":"bogo","active":true}`,
	)

	perFile, err := decodeFiles(context.Background(), []string{first, second})
	require.NoError(t, err)
	require.Len(t, perFile, 2)
	assert.Len(t, perFile[0], 2)
	assert.Equal(t, 3, perFile[0][1].line)

	records, replaced := merge(perFile)
	assert.Equal(t, 1, replaced)
	require.Len(t, records, 3)
	assert.Equal(t, "TENOFF", records[0].def.Code)
	assert.Equal(t, "12% off", records[0].def.Name)
	assert.Equal(t, "promotions2.ndjson.gz", records[0].file)

	valid := validate(records, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	require.Len(t, valid, 2)
	assert.Equal(t, "TENOFF", valid[0].Code)
	assert.Equal(t, "COMBO1CF", valid[1].Code)
}

func TestDecodeFile_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := writeGz(t, dir, "promotions1.ndjson.gz",
		`{"code":"TENOFF","kind":"percentage","value":10}`,
		`{"code":`,
	)

	_, err := decodeFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

type fakeWriter struct {
	codes []string
	fail  string
}

func (f *fakeWriter) Upsert(_ context.Context, def promotion.Definition) error {
	if def.Code == f.fail {
		return errors.New("connection reset")
	}
	f.codes = append(f.codes, def.Code)
	return nil
}

func TestWritePromotions(t *testing.T) {
	defs := []promotion.Definition{{Code: "A"}, {Code: "B"}, {Code: "C"}}

	w := &fakeWriter{}
	require.NoError(t, writePromotions(context.Background(), w, defs))
	assert.Equal(t, []string{"A", "B", "C"}, w.codes)

	w = &fakeWriter{fail: "B"}
	err := writePromotions(context.Background(), w, defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert promotion B")
	assert.Equal(t, []string{"A"}, w.codes)
}
