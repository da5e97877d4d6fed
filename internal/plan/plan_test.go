package plan

import (
	"testing"

	"github.com/mking01/spark-data-lakes/pkg/star"
)

func indexOf(slice []string, s string) int {
	for i, v := range slice {
		if v == s {
			return i
		}
	}
	return -1
}

func TestOrder_AllTables(t *testing.T) {
	order, err := Order(nil, false)
	if err != nil {
		t.Fatalf("Order() error: %v", err)
	}
	if len(order) != len(star.AllTables) {
		t.Fatalf("Order() returned %d tables, want %d", len(order), len(star.AllTables))
	}

	// The fact table comes after both catalog dimensions.
	plays := indexOf(order, star.TableSongplays)
	if indexOf(order, star.TableSongs) > plays || indexOf(order, star.TableArtists) > plays {
		t.Errorf("songplays ordered before its dependencies: %v", order)
	}
}

func TestOrder_Selection(t *testing.T) {
	order, err := Order([]string{"users", "time"}, false)
	if err != nil {
		t.Fatalf("Order() error: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("Order() = %v, want two tables", order)
	}
}

func TestOrder_DownstreamExpandsToFact(t *testing.T) {
	order, err := Order([]string{"songs"}, true)
	if err != nil {
		t.Fatalf("Order() error: %v", err)
	}
	if indexOf(order, star.TableSongplays) == -1 {
		t.Errorf("downstream of songs should include songplays, got %v", order)
	}
	if indexOf(order, star.TableSongs) != 0 {
		t.Errorf("songs should come first, got %v", order)
	}
}

func TestOrder_UnknownTable(t *testing.T) {
	_, err := Order([]string{"plays"}, false)
	if err == nil {
		t.Fatal("Order() should reject unknown table names")
	}
}

func TestGraph_CycleDetection(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")
	g.AddNode("b")
	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge("b", "a"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Fatal("HasCycle() = false, want true")
	}
	if len(path) < 3 {
		t.Errorf("cycle path too short: %v", path)
	}

	if _, err := g.TopologicalSort(); err == nil {
		t.Error("TopologicalSort() should fail on a cyclic graph")
	}
}

func TestGraph_SelfLoopRejected(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")
	if err := g.AddEdge("a", "a"); err == nil {
		t.Error("AddEdge() should reject self-loops")
	}
}

func TestDefault_IsAcyclic(t *testing.T) {
	if hasCycle, path := Default().HasCycle(); hasCycle {
		t.Errorf("built-in plan has a cycle: %v", path)
	}
}
