package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func fakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("/cabinet/admin/roles/preview", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		var body struct {
			Permissions []string `json:"permissions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rows": []map[string]any{{
				"section": "tickets", "state": "all", "selected_count": 2, "total": 2,
				"actions": []map[string]any{
					{"action": "read", "selected": true, "implied": true},
					{"action": "reply", "selected": true, "implied": true},
				},
			}},
			"unknown": []string{"bogus:x"},
		})
	})
	mux.HandleFunc("/cabinet/admin/roles", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":"FORBIDDEN","message":"Permission denied: roles:read"}}`)
	})
	mux.HandleFunc("/cabinet/admin/roles/presets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"support":["tickets:read"]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(nil, &out))
	assert.Contains(t, out.String(), "Usage: cabinetctl")
	assert.Contains(t, out.String(), "policies")

	err := run([]string{"bogus"}, &out)
	assert.ErrorContains(t, err, `unknown command "bogus"`)
}

func TestRunMatrix(t *testing.T) {
	srv, seen := fakeServer(t)
	var out bytes.Buffer
	err := run([]string{"--server", srv.URL, "--token", "tok", "matrix", "tickets:*", "bogus:x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer tok"}, *seen)
	assert.Contains(t, out.String(), "tickets")
	assert.Contains(t, out.String(), "read*,reply*")
	assert.Contains(t, out.String(), "unknown: bogus:x")
}

func TestRunPresetsYAMLAndJSON(t *testing.T) {
	srv, _ := fakeServer(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"--server", srv.URL, "presets"}, &out))
	var parsed map[string][]string
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &parsed))
	assert.Equal(t, []string{"tickets:read"}, parsed["support"])

	out.Reset()
	require.NoError(t, run([]string{"--server", srv.URL, "--json", "presets"}, &out))
	assert.JSONEq(t, `{"support":["tickets:read"]}`, out.String())
}

func TestRunSurfacesAPIErrors(t *testing.T) {
	srv, _ := fakeServer(t)
	var out bytes.Buffer
	err := run([]string{"--server", srv.URL, "roles", "list"}, &out)
	assert.ErrorContains(t, err, "FORBIDDEN")
}

func TestArgID(t *testing.T) {
	id, err := argID([]string{"42"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = argID(nil)
	assert.Error(t, err)
	_, err = argID([]string{"-1"})
	assert.Error(t, err)
}
