package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/vp-features/internal/config"
)

func TestRunWritesCSV(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	prints := write("prints.json", `{"day":"2024-01-08","event_data":{"position":2,"value_prop":"link_cobro"},"user_id":7}`+"\n")
	taps := write("taps.json", "")
	pays := write("pays.csv", "pay_date,total,user_id,value_prop\n")
	out := filepath.Join(dir, "out", "features.csv")

	var stdout bytes.Buffer
	cmd := newRootCmd(config.Config{})
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--prints", prints, "--taps", taps, "--pays", pays, "--out", out})
	require.NoError(t, cmd.Execute())

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		"user_id,day,category,position,clicked,quantity_views_prev_print,quantity_clicked_prev_print,import_accumulates_prev_print\n"+
			"7,2024-01-08,link_cobro,2,false,0,0,0\n",
		string(b))
	assert.Contains(t, stdout.String(), "1 rows written to "+out)
}

func TestRunRequiresOut(t *testing.T) {
	cmd := newRootCmd(config.Config{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run"})
	assert.ErrorContains(t, cmd.Execute(), "--out")
}
