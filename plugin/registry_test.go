package plugin

import (
	"context"
	"log/slog"
	"testing"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
)

// testPlugin implements Plugin + NodeCreated + ActionLogged.
type testPlugin struct {
	nodeCreatedCalled  bool
	actionLoggedCalled bool
}

func (t *testPlugin) Name() string { return "test-plugin" }

func (t *testPlugin) OnNodeCreated(_ context.Context, _ *node.Node) error {
	t.nodeCreatedCalled = true
	return nil
}

func (t *testPlugin) OnActionLogged(_ context.Context, _ *actionlog.Entry) error {
	t.actionLoggedCalled = true
	return nil
}

// minimalPlugin only implements Plugin (no hooks).
type minimalPlugin struct{}

func (m *minimalPlugin) Name() string { return "minimal" }

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	tp := &testPlugin{}
	reg.Register(tp)
	reg.Register(&minimalPlugin{})

	if len(reg.Plugins()) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(reg.Plugins()))
	}

	// Should dispatch NodeCreated to testPlugin only.
	reg.EmitNodeCreated(ctx, &node.Node{ID: id.NewNodeID(), Title: "Crater Counts"})
	if !tp.nodeCreatedCalled {
		t.Fatal("OnNodeCreated was not called")
	}

	// Should dispatch ActionLogged.
	reg.EmitActionLogged(ctx, &actionlog.Entry{Action: actionlog.ActionNodeCreated})
	if !tp.actionLoggedCalled {
		t.Fatal("OnActionLogged was not called")
	}

	// Should not panic on hooks with no listeners.
	reg.EmitUsersMerged(ctx, id.NewUserID(), id.NewUserID())
	reg.EmitNodeDeleted(ctx, id.NewNodeID())
	reg.EmitShutdown(ctx)
}
