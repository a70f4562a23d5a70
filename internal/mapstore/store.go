// Package mapstore is the SQLite-backed map provider: it persists occupancy
// grids keyed by small integer ids and serves them to the costmap generator.
package mapstore

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/navstack/internal/grid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no map exists under the requested id.
var ErrNotFound = errors.New("map not found")

// Store wraps the maps database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the map database and applies pending
// schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open map db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping map db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// migrateUp applies all pending migrations. Running against an up-to-date
// database is a no-op.
func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	// Note: we cannot call m.Close() when using WithInstance() because the
	// sqlite driver's Close() also closes the sql.DB we manage separately.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// GetMap loads the occupancy grid stored under id.
func (s *Store) GetMap(ctx context.Context, id int) (*grid.Grid, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT width, height, resolution, origin_x, origin_y, origin_yaw, data
		FROM maps WHERE map_id = ?`, id)

	g := &grid.Grid{}
	var blob []byte
	err := row.Scan(&g.Width, &g.Height, &g.Resolution, &g.OriginX, &g.OriginY, &g.OriginYaw, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("map %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load map %d: %w", id, err)
	}

	g.Data = make([]int8, len(blob))
	for i, b := range blob {
		g.Data[i] = int8(b)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("map %d: %w", id, err)
	}
	return g, nil
}

// SaveMap stores a grid under id, replacing any previous map with that id.
func (s *Store) SaveMap(ctx context.Context, id int, g *grid.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("save map %d: %w", id, err)
	}
	blob := make([]byte, len(g.Data))
	for i, v := range g.Data {
		blob[i] = byte(v)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maps (map_id, width, height, resolution, origin_x, origin_y, origin_yaw, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(map_id) DO UPDATE SET
			width=excluded.width, height=excluded.height, resolution=excluded.resolution,
			origin_x=excluded.origin_x, origin_y=excluded.origin_y,
			origin_yaw=excluded.origin_yaw, data=excluded.data`,
		id, g.Width, g.Height, g.Resolution, g.OriginX, g.OriginY, g.OriginYaw, blob)
	if err != nil {
		return fmt.Errorf("save map %d: %w", id, err)
	}
	return nil
}

// ListMaps returns the stored map ids in ascending order.
func (s *Store) ListMaps(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT map_id FROM maps ORDER BY map_id`)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeedFromASCII loads a map from a whitespace-separated text file and stores
// it under id. The first line holds "width height resolution origin_x
// origin_y origin_yaw"; each following line holds one row of cell values,
// each in -1..100. Lines starting with '#' are comments.
func (s *Store) SeedFromASCII(ctx context.Context, id int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed map: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	var g *grid.Grid
	row := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		if g == nil {
			if len(fields) != 6 {
				return fmt.Errorf("seed map header wants 6 fields, got %d", len(fields))
			}
			w, err1 := strconv.Atoi(fields[0])
			h, err2 := strconv.Atoi(fields[1])
			res, err3 := strconv.ParseFloat(fields[2], 64)
			ox, err4 := strconv.ParseFloat(fields[3], 64)
			oy, err5 := strconv.ParseFloat(fields[4], 64)
			oyaw, err6 := strconv.ParseFloat(fields[5], 64)
			for _, e := range []error{err1, err2, err3, err4, err5, err6} {
				if e != nil {
					return fmt.Errorf("seed map header: %w", e)
				}
			}
			g = grid.New(w, h, res)
			g.OriginX, g.OriginY, g.OriginYaw = ox, oy, oyaw
			continue
		}

		if row >= g.Height {
			return fmt.Errorf("seed map has more than %d rows", g.Height)
		}
		if len(fields) != g.Width {
			return fmt.Errorf("seed map row %d wants %d cells, got %d", row, g.Width, len(fields))
		}
		for col, fv := range fields {
			v, err := strconv.Atoi(fv)
			if err != nil {
				return fmt.Errorf("seed map row %d col %d: %w", row, col, err)
			}
			if v < -1 || v > 100 {
				return fmt.Errorf("seed map row %d col %d: cell value %d out of range", row, col, v)
			}
			g.Set(col, row, int8(v))
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read seed map: %w", err)
	}
	if g == nil {
		return errors.New("seed map file is empty")
	}
	if row != g.Height {
		return fmt.Errorf("seed map wants %d rows, got %d", g.Height, row)
	}
	return s.SaveMap(ctx, id, g)
}
