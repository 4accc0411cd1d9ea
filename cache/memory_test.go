package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/steward"
	"github.com/xraph/steward/id"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	userID := id.NewUserID()
	nodeID := id.NewNodeID()

	if _, _, hit := c.Get(ctx, userID, nodeID, false); hit {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(ctx, userID, nodeID, false, steward.LevelWrite, true)

	lvl, held, hit := c.Get(ctx, userID, nodeID, false)
	if !hit || !held || lvl != steward.LevelWrite {
		t.Fatalf("got %q held=%v hit=%v", lvl, held, hit)
	}

	// The inheritance flag is part of the key.
	if _, _, hit := c.Get(ctx, userID, nodeID, true); hit {
		t.Fatal("flagged lookup must not hit the unflagged entry")
	}

	// Negative results are cached too.
	c.Set(ctx, userID, nodeID, true, "", false)
	lvl, held, hit = c.Get(ctx, userID, nodeID, true)
	if !hit || held || lvl != "" {
		t.Fatalf("expected cached negative, got %q held=%v hit=%v", lvl, held, hit)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(10 * time.Millisecond))

	userID := id.NewUserID()
	nodeID := id.NewNodeID()

	c.Set(ctx, userID, nodeID, false, steward.LevelRead, true)
	if _, _, hit := c.Get(ctx, userID, nodeID, false); !hit {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, _, hit := c.Get(ctx, userID, nodeID, false); hit {
		t.Fatal("expected miss after expiry")
	}
}

func TestMemoryInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	u1, u2 := id.NewUserID(), id.NewUserID()
	n1, n2 := id.NewNodeID(), id.NewNodeID()

	c.Set(ctx, u1, n1, false, steward.LevelAdmin, true)
	c.Set(ctx, u1, n2, false, steward.LevelRead, true)
	c.Set(ctx, u2, n1, false, steward.LevelWrite, true)

	c.InvalidateUser(ctx, u1)
	if _, _, hit := c.Get(ctx, u1, n1, false); hit {
		t.Fatal("u1/n1 should be invalidated")
	}
	if _, _, hit := c.Get(ctx, u1, n2, false); hit {
		t.Fatal("u1/n2 should be invalidated")
	}
	if _, _, hit := c.Get(ctx, u2, n1, false); !hit {
		t.Fatal("u2's entry should survive user invalidation")
	}

	c.Set(ctx, u1, n1, false, steward.LevelAdmin, true)
	c.InvalidateNode(ctx, n1)
	if _, _, hit := c.Get(ctx, u1, n1, false); hit {
		t.Fatal("u1/n1 should be invalidated by node")
	}
	if _, _, hit := c.Get(ctx, u2, n1, false); hit {
		t.Fatal("u2/n1 should be invalidated by node")
	}

	c.Set(ctx, u1, n1, false, steward.LevelAdmin, true)
	c.Set(ctx, u2, n2, true, steward.LevelRead, true)
	c.InvalidateAll(ctx)
	if _, _, hit := c.Get(ctx, u1, n1, false); hit {
		t.Fatal("expected empty cache after InvalidateAll")
	}
	if _, _, hit := c.Get(ctx, u2, n2, true); hit {
		t.Fatal("expected empty cache after InvalidateAll")
	}
}

func TestMemoryMaxSizeEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(2))

	u1, u2, u3 := id.NewUserID(), id.NewUserID(), id.NewUserID()
	nodeID := id.NewNodeID()

	c.Set(ctx, u1, nodeID, false, steward.LevelRead, true)
	c.Set(ctx, u2, nodeID, false, steward.LevelRead, true)
	c.Set(ctx, u3, nodeID, false, steward.LevelRead, true)

	// Capacity holds; the newest entry is always present.
	hits := 0
	for _, u := range []id.UserID{u1, u2, u3} {
		if _, _, hit := c.Get(ctx, u, nodeID, false); hit {
			hits++
		}
	}
	if hits != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", hits)
	}
	if _, _, hit := c.Get(ctx, u3, nodeID, false); !hit {
		t.Fatal("most recent entry must survive eviction")
	}
}
