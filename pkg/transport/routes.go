package transport

import (
	"database/sql"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Route holds the topic addresses one handler is wired to. Routes are
// resolved once at process start from static configuration.
type Route struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	RecvTopic string `yaml:"recv_topic"`
	SendTopic string `yaml:"send_topic"`
}

// LoadRoute looks up a named route in a sqlite configuration database with a
// `routes(name, path, recv_topic, send_topic)` table.
func LoadRoute(dbPath, name string) (Route, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return Route{}, errors.Wrapf(err, "open routes db %q", dbPath)
	}
	defer func() { _ = db.Close() }()

	var route Route
	row := db.QueryRow(
		`SELECT name, path, recv_topic, send_topic FROM routes WHERE name = ?`, name)
	if err := row.Scan(&route.Name, &route.Path, &route.RecvTopic, &route.SendTopic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Route{}, errors.Errorf("route %q not found in %q", name, dbPath)
		}
		return Route{}, errors.Wrapf(err, "query route %q", name)
	}
	return route, nil
}

// LoadRouteYAML looks up a named route in a YAML file holding a list of
// routes; the static-file fallback for setups without a config database.
func LoadRouteYAML(path, name string) (Route, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Route{}, errors.Wrapf(err, "read routes file %q", path)
	}
	var doc struct {
		Routes []Route `yaml:"routes"`
	}
	if err := yaml.Unmarshal(blob, &doc); err != nil {
		return Route{}, errors.Wrapf(err, "parse routes file %q", path)
	}
	for _, route := range doc.Routes {
		if route.Name == name {
			return route, nil
		}
	}
	return Route{}, errors.Errorf("route %q not found in %q", name, path)
}
