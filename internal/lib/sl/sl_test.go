package sl_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

func TestErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "error text", err: errors.New("something went wrong"), want: "something went wrong"},
		{name: "wrapped", err: errors.Join(errors.New("a"), errors.New("b")), want: "a\nb"},
		{name: "nil", err: nil, want: "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := sl.Err(tt.err)
			assert.Equal(t, "error", attr.Key)
			assert.Equal(t, tt.want, attr.Value.String())
		})
	}
}

func TestStep_TagsRecords(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	sl.Step(log, "roles").Info("role rows loaded")

	assert.Contains(t, buf.String(), "step=roles")
	assert.Contains(t, buf.String(), "role rows loaded")
}

func TestNew(t *testing.T) {
	tests := []struct {
		env       string
		json      bool
		debugSeen bool
	}{
		{env: sl.EnvLocal, json: false, debugSeen: true},
		{env: "", json: false, debugSeen: true},
		{env: sl.EnvDev, json: true, debugSeen: true},
		{env: sl.EnvProd, json: true, debugSeen: false},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			log := sl.New(tt.env, &buf)

			log.Debug("debug record")
			log.Info("info record", slog.String("k", "v"))

			out := buf.String()
			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte("debug record")))
			assert.Contains(t, out, "info record")

			lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
			last := lines[len(lines)-1]
			var rec map[string]any
			if tt.json {
				require.NoError(t, json.Unmarshal(last, &rec))
				assert.Equal(t, "v", rec["k"])
			} else {
				assert.Error(t, json.Unmarshal(last, &rec))
				assert.Contains(t, string(last), "k=v")
			}
		})
	}
}
