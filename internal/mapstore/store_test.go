package mapstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/navstack/internal/grid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "maps.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g := grid.New(4, 3, 0.05)
	g.OriginX, g.OriginY, g.OriginYaw = -1, 2, 0.5
	g.Set(1, 1, grid.CostOccupied)
	g.Set(0, 2, grid.CostUnknown)

	if err := s.SaveMap(ctx, 3, g); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetMap(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(g, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMissingMap(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetMap(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := grid.New(2, 2, 0.1)
	if err := s.SaveMap(ctx, 1, first); err != nil {
		t.Fatal(err)
	}
	second := grid.New(3, 3, 0.2)
	second.Set(1, 1, grid.CostOccupied)
	if err := s.SaveMap(ctx, 1, second); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMap(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 3 || got.At(1, 1) != grid.CostOccupied {
		t.Fatalf("overwrite not applied: %+v", got)
	}
}

func TestListMaps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []int{5, 1, 3} {
		if err := s.SaveMap(ctx, id, grid.New(2, 2, 0.1)); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.ListMaps(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 3, 5}, ids); diff != "" {
		t.Fatalf("ListMaps mismatch:\n%s", diff)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.SaveMap(context.Background(), 1, grid.New(2, 2, 0.1)); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	// Re-opening runs migrations again as a no-op and keeps the data.
	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.GetMap(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
}

func TestSeedFromASCII(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := `# 3x2 test map
3 2 0.05 -1.0 -2.0 0
0 100 0
-1 0 100
`
	path := filepath.Join(t.TempDir(), "seed.txt")
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.SeedFromASCII(ctx, 9, path); err != nil {
		t.Fatal(err)
	}

	g, err := s.GetMap(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if g.Width != 3 || g.Height != 2 || g.Resolution != 0.05 {
		t.Fatalf("seeded grid header wrong: %+v", g)
	}
	if g.OriginX != -1.0 || g.OriginY != -2.0 {
		t.Fatalf("seeded origin wrong: %+v", g)
	}
	if g.At(1, 0) != grid.CostOccupied || g.At(0, 1) != grid.CostUnknown || g.At(2, 1) != grid.CostOccupied {
		t.Fatalf("seeded cells wrong: %v", g.Data)
	}
}

func TestSeedFromASCIIRejectsMalformed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	cases := map[string]string{
		"short header": "3 2 0.05\n0 0 0\n0 0 0\n",
		"bad cell":     "2 1 0.05 0 0 0\n0 cat\n",
		"row too wide": "2 1 0.05 0 0 0\n0 0 0\n",
		"too few rows": "2 2 0.05 0 0 0\n0 0\n",
		"value range":  "2 1 0.05 0 0 0\n0 101\n",
		"empty":        "",
	}
	i := 0
	for name, content := range cases {
		path := filepath.Join(dir, name+".txt")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := s.SeedFromASCII(ctx, 100+i, path); err == nil {
			t.Errorf("%s: expected error", name)
		}
		i++
	}
}
