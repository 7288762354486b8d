package transport

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRouteYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routes:
  - name: demo
    path: /
    recv_topic: tir.demo.requests
    send_topic: tir.demo.responses
  - name: admin
    path: /admin
    recv_topic: tir.admin.requests
    send_topic: tir.admin.responses
`), 0o644))

	route, err := LoadRouteYAML(path, "admin")
	require.NoError(t, err)
	require.Equal(t, "/admin", route.Path)
	require.Equal(t, "tir.admin.requests", route.RecvTopic)
	require.Equal(t, "tir.admin.responses", route.SendTopic)

	_, err = LoadRouteYAML(path, "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestLoadRouteSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "config.sqlite")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE routes (name TEXT, path TEXT, recv_topic TEXT, send_topic TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO routes VALUES ('demo', '/', 'tir.demo.requests', 'tir.demo.responses')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	route, err := LoadRoute(dbPath, "demo")
	require.NoError(t, err)
	require.Equal(t, "demo", route.Name)
	require.Equal(t, "tir.demo.requests", route.RecvTopic)

	_, err = LoadRoute(dbPath, "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}
